package stagegraph

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestMetaMarshalPreservesOrder(t *testing.T) {
	m := NewMeta().
		Int("layer_index", 3).
		Str("stage", "attention_score").
		Int("chunk_index", 1).
		Ints("candidates", []int{0, 1, 2})
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"layer_index":3,"stage":"attention_score","chunk_index":1,"candidates":[0,1,2]}`
	if string(data) != want {
		t.Fatalf("got %s\nwant %s", data, want)
	}
}

func TestMetaSetOverwritesInPlace(t *testing.T) {
	m := NewMeta().Int("a", 1).Int("b", 2).Int("a", 9)
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"a":9,"b":2}` {
		t.Fatalf("got %s", data)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	m := NewMeta().
		Int("chunk_index", 2).
		Float("scale", 0.5).
		Str("projection", "q").
		Ints("chiplets", []int{1, 3})
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Meta
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	again, err := json.Marshal(&back)
	if err != nil {
		t.Fatalf("remarshal: %v", err)
	}
	if string(again) != string(data) {
		t.Fatalf("round trip changed encoding:\n%s\n%s", data, again)
	}
	if v, ok := back.GetInt("chunk_index"); !ok || v != 2 {
		t.Fatalf("chunk_index = %d,%v", v, ok)
	}
	if s, ok := back.GetStr("projection"); !ok || s != "q" {
		t.Fatalf("projection = %q,%v", s, ok)
	}
}

func TestMetaNilAccessors(t *testing.T) {
	var m *Meta
	if m.Len() != 0 {
		t.Fatalf("nil meta Len = %d", m.Len())
	}
	if _, ok := m.GetInt("x"); ok {
		t.Fatal("nil meta GetInt reported ok")
	}
}
