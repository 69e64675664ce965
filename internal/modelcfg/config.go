// Package modelcfg resolves a model description from an optional
// HuggingFace-style config.json, explicit overrides and built-in defaults
// into the immutable shape the graph builder consumes.
package modelcfg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

// ErrConfig marks fatal configuration failures. Resolution errors wrap it so
// callers can match with errors.Is.
var ErrConfig = errors.New("invalid model configuration")

type configError struct {
	msg string
}

func (e configError) Error() string { return e.msg }

func (e configError) Unwrap() error { return ErrConfig }

func newConfigError(format string, args ...any) error {
	return configError{msg: fmt.Sprintf(format, args...)}
}

// FileConfig carries the config.json fields we consume. Several aliases are
// accepted per quantity because checkpoint exporters have never agreed on
// names; resolution takes the first present in declaration order. Expert
// counts are pointers so an explicit zero in the file is distinguishable
// from an absent key.
type FileConfig struct {
	ModelType     string   `json:"model_type"`
	Architectures []string `json:"architectures"`

	HiddenSize int `json:"hidden_size"`
	NEmbd      int `json:"n_embd"`
	Dim        int `json:"dim"`

	MoEIntermediateSize int `json:"moe_intermediate_size"`
	IntermediateSize    int `json:"intermediate_size"`
	FFNHiddenSize       int `json:"ffn_hidden_size"`

	NumHiddenLayers int `json:"num_hidden_layers"`
	NLayer          int `json:"n_layer"`
	NumLayers       int `json:"num_layers"`

	NumLocalExperts *int `json:"num_local_experts"`
	MoENumExperts   *int `json:"moe_num_experts"`
	NumExperts      *int `json:"num_experts"`

	MoETopK    int `json:"moe_topk"`
	MoETopKAlt int `json:"moe_top_k"`

	UseMoE *FlexBool `json:"use_moe"`
}

// FlexBool decodes JSON booleans and the truthy strings historical configs
// use ("1", "true", "yes", "y", "on", case-insensitive).
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case bool:
		*b = FlexBool(value)
	case string:
		switch strings.ToLower(value) {
		case "1", "true", "yes", "y", "on":
			*b = true
		default:
			*b = false
		}
	default:
		return fmt.Errorf("use_moe: unsupported value %v", v)
	}
	return nil
}

// Load reads a config.json from disk. An empty path yields a nil config; a
// missing file at an explicitly given path is a fatal configuration error.
func Load(path string) (*FileConfig, error) {
	if path == "" {
		return nil, nil
	}
	clean := filepath.Clean(path)
	data, err := os.ReadFile(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newConfigError("config file not found: %s", clean)
		}
		return nil, fmt.Errorf("read config %s: %w", clean, err)
	}
	cfg := new(FileConfig)
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", clean, err)
	}
	return cfg, nil
}

// SpecName resolves the output document name: explicit override first, then
// model_type, then the first architecture, then a generic fallback.
func (c *FileConfig) SpecName(override string) string {
	if override != "" {
		return override
	}
	if c != nil {
		if c.ModelType != "" {
			return c.ModelType
		}
		if len(c.Architectures) > 0 && c.Architectures[0] != "" {
			return c.Architectures[0]
		}
	}
	return "moe_model"
}
