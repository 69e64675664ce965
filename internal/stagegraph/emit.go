package stagegraph

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// Document is the external JSON contract: the stage sequence in append order
// (already a valid topological order) plus an echo of the resolved shape and
// placement parameters. The emitter never reorders, filters or renumbers;
// stage indices equal their position in Sequence.
type Document struct {
	Name     string   `json:"name"`
	Sequence []Stage  `json:"sequence"`
	Metadata Metadata `json:"metadata"`
}

// Metadata mirrors the resolved model shape and placement parameters so a
// consumer can reproduce the build.
type Metadata struct {
	HiddenSize       int `json:"hidden_size"`
	IntermediateSize int `json:"intermediate_size"`
	Layers           int `json:"layers"`
	NumExperts       int `json:"num_experts"`
	ExpertsPerTok    int `json:"experts_per_tok"`
	SeqLength        int `json:"seq_length"`
	Batch            int `json:"batch"`
	DtypeBytes       int `json:"dtype_bytes"`
	DigitalChiplets  int `json:"digital_chiplets"`
	RRAMChiplets     int `json:"rram_chiplets"`
	ChunkBytes       int `json:"chunk_bytes"`
}

// Emit assembles the output document for an already-built sequence.
func Emit(name string, sequence []Stage, p Params) Document {
	return Document{
		Name:     name,
		Sequence: sequence,
		Metadata: Metadata{
			HiddenSize:       p.HiddenSize,
			IntermediateSize: p.IntermediateSize,
			Layers:           p.Layers,
			NumExperts:       p.NumExperts,
			ExpertsPerTok:    p.ExpertsPerToken,
			SeqLength:        p.SeqLength,
			Batch:            p.Batch,
			DtypeBytes:       p.DtypeBytes,
			DigitalChiplets:  p.DigitalChiplets,
			RRAMChiplets:     p.RRAMChiplets,
			ChunkBytes:       p.ChunkBytes,
		},
	}
}

// Encode serializes a document with two-space indentation and a trailing
// newline. Identical documents encode to identical bytes.
func Encode(doc Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode spec: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFile encodes the document fully in memory and then writes it in one
// shot, creating parent directories as needed. No partial writes.
func WriteFile(path string, doc Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write spec: %w", err)
	}
	return nil
}

// Load reads an emitted document back from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read spec: %w", err)
	}
	doc := new(Document)
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse spec %s: %w", path, err)
	}
	return doc, nil
}

// Validate checks the structural contract: every dependency references a
// strictly earlier stage, so the sequence order is a topological order.
func Validate(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("nil document")
	}
	for i, st := range doc.Sequence {
		if st.Type == "" {
			return fmt.Errorf("stage %d: missing type", i)
		}
		for _, dep := range st.Deps {
			if dep < 0 || dep >= i {
				return fmt.Errorf("stage %d (%s): dependency %d out of order", i, st.Name, dep)
			}
		}
	}
	return nil
}
