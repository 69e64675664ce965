// Package stagegraph compiles a resolved Transformer+MoE workload shape into
// the chiplet stage-graph document consumed by the simulator. The package is
// a pure transformation: it builds the full DAG in memory and only then hands
// it to serialization, so a failed build never leaves a partial document.
package stagegraph

// Stage kinds understood by the simulator.
const (
	KindTokenPrep   = "token_prep"
	KindTransfer    = "transfer"
	KindRRAMLinear  = "rram_linear"
	KindAttention   = "attention"
	KindSoftmax     = "softmax"
	KindMoEGating   = "moe_gating"
	KindMoELinear   = "moe_linear"
	KindMoEMerge    = "moe_merge"
	KindPostprocess = "postprocess"
)

// Transfer directions across the fabric.
const (
	DirDigitalToRRAM = "digital_to_rram"
	DirRRAMToDigital = "rram_to_digital"
)

// Stage is one node of the task DAG. Field names are the wire contract read
// by the simulator's model loader and must not change. Deps always reference
// earlier positions in the sequence, so append order is a valid topological
// order by construction.
type Stage struct {
	Type             string   `json:"type"`
	Name             string   `json:"name,omitempty"`
	Direction        string   `json:"direction,omitempty"`
	Chiplet          int      `json:"chiplet,omitempty"`
	Queue            int      `json:"queue,omitempty"`
	Rows             int      `json:"rows,omitempty"`
	Cols             int      `json:"cols,omitempty"`
	K                int      `json:"k,omitempty"`
	Tokens           int      `json:"tokens,omitempty"`
	Features         int      `json:"features,omitempty"`
	Latency          int      `json:"latency,omitempty"`
	Bytes            int      `json:"bytes,omitempty"`
	ActivationBytes  int      `json:"activation_bytes,omitempty"`
	WeightBytes      int      `json:"weight_bytes,omitempty"`
	PulseCount       int      `json:"pulse_count,omitempty"`
	AdcSamples       int      `json:"adc_samples,omitempty"`
	PreCycles        int      `json:"pre_cycles,omitempty"`
	PostCycles       int      `json:"post_cycles,omitempty"`
	HostLoadKind     string   `json:"host_load_kind,omitempty"`
	HostStoreKind    string   `json:"host_store_kind,omitempty"`
	NonlinearKind    string   `json:"nonlinear_kind,omitempty"`
	RandomizeExperts bool     `json:"randomize_experts,omitempty"`
	Parallel         bool     `json:"parallel,omitempty"`
	Deps             []int    `json:"deps,omitempty"`
	Experts          []Expert `json:"experts,omitempty"`
	Metadata         *Meta    `json:"metadata,omitempty"`
	Aux              *Meta    `json:"aux,omitempty"`
}

// Expert is one sub-record of a moe_linear stage. The simulator fans the
// records out in parallel; each carries its own RRAM chiplet assignment and
// byte/latency estimate.
type Expert struct {
	Name            string `json:"name,omitempty"`
	Chiplet         int    `json:"chiplet,omitempty"`
	ActivationBytes int    `json:"activation_bytes,omitempty"`
	WeightBytes     int    `json:"weight_bytes,omitempty"`
	ExecuteLatency  int    `json:"execute_latency,omitempty"`
	ChunkIndex      int    `json:"chunk_index,omitempty"`
}
