package stagegraph

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Meta is an ordered annotation record attached to stages for provenance
// (layer index, chunk index, stage role and so on). It marshals to a JSON
// object whose keys appear in insertion order, which keeps emitted documents
// byte-identical across builds. Values are limited to integers, floats,
// strings and integer sequences.
type Meta struct {
	entries []metaEntry
}

type metaEntry struct {
	key   string
	value any
}

// NewMeta returns an empty record ready for chained Set calls.
func NewMeta() *Meta {
	return &Meta{}
}

func (m *Meta) set(key string, value any) *Meta {
	for i := range m.entries {
		if m.entries[i].key == key {
			m.entries[i].value = value
			return m
		}
	}
	m.entries = append(m.entries, metaEntry{key: key, value: value})
	return m
}

// Int records an integer annotation.
func (m *Meta) Int(key string, value int) *Meta { return m.set(key, value) }

// Float records a float annotation.
func (m *Meta) Float(key string, value float64) *Meta { return m.set(key, value) }

// Str records a string annotation.
func (m *Meta) Str(key, value string) *Meta { return m.set(key, value) }

// Ints records an integer-sequence annotation.
func (m *Meta) Ints(key string, values []int) *Meta {
	copied := make([]int, len(values))
	copy(copied, values)
	return m.set(key, copied)
}

// Len reports the number of recorded annotations.
func (m *Meta) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// GetInt returns the integer annotation stored under key.
func (m *Meta) GetInt(key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	for _, e := range m.entries {
		if e.key == key {
			if v, ok := e.value.(int); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// GetStr returns the string annotation stored under key.
func (m *Meta) GetStr(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, e := range m.entries {
		if e.key == key {
			if v, ok := e.value.(string); ok {
				return v, true
			}
		}
	}
	return "", false
}

// MarshalJSON encodes the record as an object with keys in insertion order.
func (m *Meta) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(e.value)
		if err != nil {
			return nil, fmt.Errorf("meta %q: %w", e.key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts a plain object, preserving the decoder's key order.
func (m *Meta) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("meta: expected object, got %v", tok)
	}
	m.entries = nil
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("meta: non-string key %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		value, err := decodeMetaValue(raw)
		if err != nil {
			return fmt.Errorf("meta %q: %w", key, err)
		}
		m.entries = append(m.entries, metaEntry{key: key, value: value})
	}
	_, err = dec.Token()
	return err
}

func decodeMetaValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return s, nil
	case '[':
		var ints []int
		if err := json.Unmarshal(trimmed, &ints); err != nil {
			return nil, fmt.Errorf("only integer sequences are supported: %w", err)
		}
		return ints, nil
	default:
		var i int
		if err := json.Unmarshal(trimmed, &i); err == nil {
			return i, nil
		}
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, err
		}
		return f, nil
	}
}
