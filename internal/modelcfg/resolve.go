package modelcfg

// Built-in defaults for quantities neither the config file nor the overrides
// supply.
const (
	DefaultHiddenSize = 4096
	DefaultLayers     = 32
	DefaultNumExperts = 16
	DefaultTopK       = 2
)

// Shape is the fully-resolved, immutable model description. All fields are
// positive and ExpertsPerToken never exceeds NumExperts.
type Shape struct {
	HiddenSize       int
	IntermediateSize int
	NumLayers        int
	NumExperts       int
	ExpertsPerToken  int
	SeqLength        int
	Batch            int
	DtypeBytes       int
}

// Overrides are explicit scalar parameters. Zero means "not set" for the
// model-shape fields; SeqLength, Batch and DtypeBytes always arrive set
// (the CLI supplies defaults) but are clamped to one regardless.
type Overrides struct {
	HiddenSize       int
	IntermediateSize int
	Layers           int
	NumExperts       int
	ExpertsPerToken  int
	SeqLength        int
	Batch            int
	DtypeBytes       int
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// Resolve merges overrides, config fields and defaults into a Shape.
// Overrides win over config fields, which win over defaults. A resolved
// expert count of zero or less without an explicit positive override is a
// fatal configuration error: a MoE graph needs at least one expert consumer
// before any stage is built. ExpertsPerToken greater than NumExperts is
// clamped, not rejected.
func Resolve(cfg *FileConfig, ov Overrides) (Shape, error) {
	hidden := ov.HiddenSize
	if hidden <= 0 && cfg != nil {
		hidden = firstPositive(cfg.HiddenSize, cfg.NEmbd, cfg.Dim)
	}
	if hidden <= 0 {
		hidden = DefaultHiddenSize
	}

	intermediate := ov.IntermediateSize
	if intermediate <= 0 && cfg != nil {
		intermediate = firstPositive(cfg.MoEIntermediateSize, cfg.IntermediateSize, cfg.FFNHiddenSize)
	}
	if intermediate <= 0 {
		intermediate = hidden * 4
	}

	layers := ov.Layers
	if layers <= 0 && cfg != nil {
		layers = firstPositive(cfg.NumHiddenLayers, cfg.NLayer, cfg.NumLayers)
	}
	if layers <= 0 {
		layers = DefaultLayers
	}

	experts, expertsExplicit := resolveExperts(cfg, ov)

	useMoE := true
	if cfg != nil && cfg.UseMoE != nil {
		useMoE = bool(*cfg.UseMoE)
	}
	if experts <= 0 && !expertsExplicit {
		if !useMoE {
			return Shape{}, newConfigError("model does not enable MoE; pass an explicit expert count > 0")
		}
		return Shape{}, newConfigError(
			"model resolves to %d experts; a MoE graph needs at least one, pass an explicit expert count > 0", experts)
	}
	if experts <= 0 {
		experts = 1
	}

	topK := ov.ExpertsPerToken
	if topK <= 0 && cfg != nil {
		topK = firstPositive(cfg.MoETopK, cfg.MoETopKAlt)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > experts {
		topK = experts
	}

	return Shape{
		HiddenSize:       hidden,
		IntermediateSize: intermediate,
		NumLayers:        layers,
		NumExperts:       experts,
		ExpertsPerToken:  topK,
		SeqLength:        max(ov.SeqLength, 1),
		Batch:            max(ov.Batch, 1),
		DtypeBytes:       max(ov.DtypeBytes, 1),
	}, nil
}

// resolveExperts applies the alias precedence for the expert count:
// override, then num_local_experts, moe_num_experts, num_experts in that
// order (first key present wins, even when its value is zero), then the
// default. The boolean reports whether an explicit positive override forced
// the count.
func resolveExperts(cfg *FileConfig, ov Overrides) (int, bool) {
	if ov.NumExperts > 0 {
		return ov.NumExperts, true
	}
	if cfg != nil {
		for _, field := range []*int{cfg.NumLocalExperts, cfg.MoENumExperts, cfg.NumExperts} {
			if field != nil {
				return *field, false
			}
		}
	}
	return DefaultNumExperts, false
}
