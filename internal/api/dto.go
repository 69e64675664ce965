package api

import "github.com/chipletsim/chipletc/internal/modelcfg"

// GenerateRequest asks the service to compile a workload into a stage-graph
// document. Config carries the same fields as an on-disk config.json;
// overrides win over config values, which win over defaults, exactly as in
// the CLI.
type GenerateRequest struct {
	Name      string               `json:"name,omitempty"`
	Config    *modelcfg.FileConfig `json:"config,omitempty"`
	Overrides ShapeOverrides       `json:"overrides"`
	Placement PlacementParams      `json:"placement"`
}

// ShapeOverrides are explicit scalar model parameters; zero means unset.
type ShapeOverrides struct {
	HiddenSize       int `json:"hidden_size,omitempty"`
	IntermediateSize int `json:"intermediate_size,omitempty"`
	Layers           int `json:"layers,omitempty"`
	NumExperts       int `json:"num_experts,omitempty"`
	ExpertsPerTok    int `json:"experts_per_tok,omitempty"`
	SeqLength        int `json:"seq_length,omitempty"`
	Batch            int `json:"batch,omitempty"`
	DtypeBytes       int `json:"dtype_bytes,omitempty"`
}

// PlacementParams tune resource placement and chunking; zero means unset.
type PlacementParams struct {
	DigitalChiplets     int     `json:"digital_chiplets,omitempty"`
	RRAMChiplets        int     `json:"rram_chiplets,omitempty"`
	DigitalLatencyScale float64 `json:"digital_latency_scale,omitempty"`
	ChunkBytes          int     `json:"chunk_bytes,omitempty"`
}

// RequestError is the JSON error payload.
type RequestError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
