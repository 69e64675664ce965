package stagegraph

import (
	"fmt"
	"math"
)

// Params is the fully-resolved workload description consumed by Build. All
// counts are expected to be positive; anything that feeds a division or
// modulo is clamped to a safe minimum rather than rejected, since these are
// derived tuning parameters.
type Params struct {
	Layers              int
	HiddenSize          int
	IntermediateSize    int
	NumExperts          int
	ExpertsPerToken     int
	SeqLength           int
	Batch               int
	DtypeBytes          int
	DigitalChiplets     int
	RRAMChiplets        int
	DigitalLatencyScale float64
	ChunkBytes          int
}

// Default tuning parameters, shared by the CLI flags and the HTTP API.
const (
	DefaultSeqLength       = 2048
	DefaultBatch           = 1
	DefaultDtypeBytes      = 2
	DefaultDigitalChiplets = 2
	DefaultRRAMChiplets    = 8
	DefaultChunkBytes      = 32 << 20
)

// Builder owns the growing stage list. Stages are appended exactly once and
// never mutated after a later stage records a dependency on them; since
// dependencies can only reference already-appended stages, the list order is
// a valid topological order by construction.
type Builder struct {
	stages []Stage
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Append adds a stage and returns its index. A nil deps slice means "depend
// on the previously appended stage" when one exists; a non-nil empty slice
// marks an explicit root. Explicit dependencies must reference earlier
// indices only.
func (b *Builder) Append(st Stage, deps []int) int {
	if deps == nil {
		if len(b.stages) > 0 {
			st.Deps = []int{len(b.stages) - 1}
		}
	} else if len(deps) > 0 {
		st.Deps = deps
	}
	b.stages = append(b.stages, st)
	return len(b.stages) - 1
}

// Stages returns the accumulated stage list.
func (b *Builder) Stages() []Stage {
	return b.stages
}

// appendChunked appends one stage per chunk of the plan and returns their
// indices. Dependency resolution per chunk: the matching perChunk entry if
// supplied, the base deps for chunk 0 when nothing else applies, and the
// previous chunk's index when sequential ordering is enforced. A chunk left
// with no dependencies falls back to Append's previous-stage default.
func (b *Builder) appendChunked(
	build func(chunk, chunkTokens int) Stage,
	plan ChunkPlan,
	baseDeps []int,
	perChunk [][]int,
	enforceSequential bool,
) []int {
	if plan.NumChunks() == 0 {
		return nil
	}
	ids := make([]int, 0, plan.NumChunks())
	prev := -1
	for idx, chunkTokens := range plan.Tokens {
		var deps []int
		if perChunk != nil && idx < len(perChunk) {
			deps = append(deps, perChunk[idx]...)
		}
		if idx == 0 && len(deps) == 0 {
			deps = append(deps, baseDeps...)
		}
		if enforceSequential && prev >= 0 {
			deps = append(deps, prev)
		}
		var depArg []int
		if len(deps) > 0 {
			depArg = deps
		}
		id := b.Append(build(idx, chunkTokens), depArg)
		ids = append(ids, id)
		prev = id
	}
	return ids
}

// transferLatency models the fabric: one cycle per 4096 bytes, minimum 4.
func transferLatency(bytes int) int {
	return max(int(math.Ceil(float64(bytes)/4096)), 4)
}

func weightOnFirstChunk(chunk, weightBytes int) int {
	if chunk == 0 {
		return weightBytes
	}
	return 0
}

func singletons(ids []int) [][]int {
	deps := make([][]int, len(ids))
	for i, id := range ids {
		deps[i] = []int{id}
	}
	return deps
}

// Build synthesizes the full stage sequence for the workload. Per layer:
// chunked Q/K/V projections on RRAM, attention score/softmax/mix per chunk,
// chunked O projection, post-attention residual, MoE gating, per-chunk
// expert dispatch/compute/merge and postprocess. The final postprocess chunk
// of a layer roots the next layer.
func Build(p Params) []Stage {
	b := NewBuilder()

	dtypeBytes := max(p.DtypeBytes, 1)
	chunkBytes := max(p.ChunkBytes, dtypeBytes)

	tokens := p.SeqLength * p.Batch
	activationBytesTotal := tokens * p.HiddenSize * dtypeBytes
	projectionWeightBytes := p.HiddenSize * p.HiddenSize * dtypeBytes
	expertWeightBytes := p.HiddenSize * p.IntermediateSize * dtypeBytes
	expertsPerToken := max(p.ExpertsPerToken, 1)

	plan := PlanChunks(tokens, p.HiddenSize, dtypeBytes, chunkBytes)
	if plan.NumChunks() == 0 {
		plan = ChunkPlan{
			Tokens: []int{tokens},
			Bytes:  []int{max(tokens*p.HiddenSize*dtypeBytes, dtypeBytes)},
		}
	}
	numChunks := plan.NumChunks()

	place := NewPlacement(p.DigitalChiplets, p.RRAMChiplets)

	latencyBase := max(int(float64(p.HiddenSize)*p.DigitalLatencyScale), 1)

	embed := b.Append(Stage{
		Type:         KindTokenPrep,
		Name:         "embed",
		Tokens:       tokens,
		Features:     p.HiddenSize,
		Latency:      max(latencyBase/8, 2),
		HostLoadKind: "kv_cache",
	}, []int{})

	numExperts := max(p.NumExperts, 1)
	expertChips := make([]int, numExperts)
	for i := range expertChips {
		expertChips[i] = place.Expert(i)
	}

	// Projection sub-pipeline: per chunk a transfer-down, rram_linear,
	// transfer-up triple. Chaining through lastIdx keeps chunks of one
	// projection sequentially consistent while still exposing the chunk
	// granularity to the scheduler. Weight bytes are charged on the first
	// chunk only; later chunks reuse the resident array.
	addProjection := func(label string, layer, dependsIdx, weightBytes, rramID int) int {
		lastIdx := dependsIdx
		for chunk, chunkTokens := range plan.Tokens {
			chunkSize := plan.Bytes[chunk]
			chunkDigital := place.Digital(layer, chunk)
			down := b.Append(Stage{
				Type:      KindTransfer,
				Name:      fmt.Sprintf("%s_transfer_to_rram_L%d_C%d", label, layer, chunk),
				Direction: DirDigitalToRRAM,
				Bytes:     chunkSize,
				Latency:   transferLatency(chunkSize),
				Aux: NewMeta().
					Int("chunk_index", chunk).
					Int("chunk_total", numChunks).
					Str("projection", label),
				Chiplet: rramID,
				Queue:   chunkDigital,
			}, []int{lastIdx})
			linear := b.Append(Stage{
				Type:            KindRRAMLinear,
				Name:            fmt.Sprintf("%s_proj_rram_L%d_C%d", label, layer, chunk),
				Rows:            chunkTokens,
				Cols:            p.HiddenSize,
				K:               p.HiddenSize,
				ActivationBytes: chunkSize,
				WeightBytes:     weightOnFirstChunk(chunk, weightBytes),
				PulseCount:      max(p.HiddenSize/64, 16),
				AdcSamples:      p.HiddenSize,
				PreCycles:       12,
				PostCycles:      10,
				Aux: NewMeta().
					Int("chunk_index", chunk).
					Int("chunk_total", numChunks).
					Str("projection", label),
				Chiplet: rramID,
			}, []int{down})
			up := b.Append(Stage{
				Type:      KindTransfer,
				Name:      fmt.Sprintf("%s_transfer_to_digital_L%d_C%d", label, layer, chunk),
				Direction: DirRRAMToDigital,
				Bytes:     chunkSize,
				Latency:   transferLatency(chunkSize),
				Aux: NewMeta().
					Int("chunk_index", chunk).
					Int("chunk_total", numChunks).
					Str("projection", label),
				Chiplet: chunkDigital,
				Queue:   rramID,
			}, []int{linear})
			lastIdx = up
		}
		return lastIdx
	}

	prevStage := embed

	for layer := 0; layer < p.Layers; layer++ {
		qRRAM := place.ProjectionRRAM(layer, 0)
		kRRAM := place.ProjectionRRAM(layer, 1)
		vRRAM := place.ProjectionRRAM(layer, 2)

		qDone := addProjection("q", layer, prevStage, projectionWeightBytes, qRRAM)
		kDone := addProjection("k", layer, qDone, projectionWeightBytes, kRRAM)
		vDone := addProjection("v", layer, kDone, projectionWeightBytes, vRRAM)

		attnScoreChunks := b.appendChunked(func(chunk, chunkTokens int) Stage {
			owner := place.Digital(layer, chunk)
			return Stage{
				Type:        KindAttention,
				Name:        fmt.Sprintf("attn_score_L%d_C%d", layer, chunk),
				Rows:        chunkTokens,
				Cols:        p.HiddenSize,
				K:           p.HiddenSize,
				Latency:     latencyBase,
				Chiplet:     owner,
				Queue:       owner,
				WeightBytes: chunkTokens * p.HiddenSize * dtypeBytes,
				Metadata: NewMeta().
					Int("layer_index", layer).
					Str("stage", "attention_score").
					Int("chunk_index", chunk).
					Int("chunk_tokens", chunkTokens).
					Int("chunk_total", numChunks),
			}
		}, plan, []int{qDone, kDone}, nil, false)

		softmaxChunks := b.appendChunked(func(chunk, chunkTokens int) Stage {
			owner := place.Digital(layer, chunk)
			return Stage{
				Type:          KindSoftmax,
				Name:          fmt.Sprintf("softmax_L%d_C%d", layer, chunk),
				Rows:          chunkTokens,
				Cols:          p.HiddenSize,
				Latency:       max(latencyBase/4, 8),
				Chiplet:       owner,
				Queue:         owner,
				NonlinearKind: "softmax",
				Metadata: NewMeta().
					Int("layer_index", layer).
					Str("stage", "attention_norm").
					Int("chunk_index", chunk).
					Int("chunk_tokens", chunkTokens).
					Int("chunk_total", numChunks),
			}
		}, plan, nil, singletons(attnScoreChunks), false)

		// Mixing a chunk needs its own softmax plus the complete V
		// projection; chunks on disjoint token ranges stay independent.
		mixDeps := make([][]int, numChunks)
		for idx := range mixDeps {
			var dep []int
			if idx < len(softmaxChunks) {
				dep = append(dep, softmaxChunks[idx])
			}
			dep = append(dep, vDone)
			mixDeps[idx] = dep
		}

		attnMixChunks := b.appendChunked(func(chunk, chunkTokens int) Stage {
			owner := place.Digital(layer, chunk)
			return Stage{
				Type:        KindAttention,
				Name:        fmt.Sprintf("attn_mix_L%d_C%d", layer, chunk),
				Rows:        chunkTokens,
				Cols:        p.HiddenSize,
				K:           p.HiddenSize,
				Latency:     latencyBase,
				Chiplet:     owner,
				Queue:       owner,
				WeightBytes: chunkTokens * p.HiddenSize * dtypeBytes,
				Metadata: NewMeta().
					Int("layer_index", layer).
					Str("stage", "attention_mix").
					Int("chunk_index", chunk).
					Int("chunk_tokens", chunkTokens).
					Int("chunk_total", numChunks),
			}
		}, plan, nil, mixDeps, false)

		attnMixTail := prevStage
		switch {
		case len(attnMixChunks) > 0:
			attnMixTail = attnMixChunks[len(attnMixChunks)-1]
		case len(softmaxChunks) > 0:
			attnMixTail = softmaxChunks[len(softmaxChunks)-1]
		case len(attnScoreChunks) > 0:
			attnMixTail = attnScoreChunks[len(attnScoreChunks)-1]
		}

		oRRAM := place.ProjectionRRAM(layer, 3)
		oDone := addProjection("o", layer, attnMixTail, projectionWeightBytes, oRRAM)

		postAttentionChunks := b.appendChunked(func(chunk, chunkTokens int) Stage {
			owner := place.Digital(layer, chunk)
			return Stage{
				Type:          KindPostprocess,
				Name:          fmt.Sprintf("post_attention_L%d_C%d", layer, chunk),
				Rows:          chunkTokens,
				Cols:          p.HiddenSize,
				Latency:       max(latencyBase/5, 10),
				Chiplet:       owner,
				Queue:         owner,
				NonlinearKind: "residual",
				Metadata: NewMeta().
					Int("layer_index", layer).
					Str("stage", "post_attention").
					Int("chunk_index", chunk).
					Int("chunk_tokens", chunkTokens).
					Int("chunk_total", numChunks),
			}
		}, plan, []int{oDone}, nil, false)

		gatingChunks := b.appendChunked(func(chunk, chunkTokens int) Stage {
			owner := place.Digital(layer, chunk)
			return Stage{
				Type:    KindMoEGating,
				Name:    fmt.Sprintf("moe_gating_L%d_C%d", layer, chunk),
				Rows:    chunkTokens,
				Cols:    expertsPerToken,
				K:       numExperts,
				Latency: max(latencyBase/6, 6),
				Aux: NewMeta().
					Int("experts_per_tok", expertsPerToken).
					Int("chunk_index", chunk),
				Chiplet:          owner,
				Queue:            owner,
				RandomizeExperts: true,
			}
		}, plan, nil, singletons(postAttentionChunks), true)

		expertsTemplate := make([]Expert, numExperts)
		for e := range expertsTemplate {
			expertsTemplate[e] = Expert{
				Name:            fmt.Sprintf("expert_%d_%d", layer, e),
				Chiplet:         expertChips[e],
				ActivationBytes: activationBytesTotal / expertsPerToken,
				WeightBytes:     expertWeightBytes,
				ExecuteLatency:  max(p.IntermediateSize/16, 32),
			}
		}

		// Consecutive chunks round-robin onto a shared RRAM target, so the
		// previous chunk's transfer-up must complete before the next
		// transfer-down may overwrite the array.
		moePrev := -1
		var transferUpChunks []int
		for chunk := range plan.Tokens {
			chunkSize := plan.Bytes[chunk]
			targetRRAM := expertChips[(chunk*expertsPerToken)%numExperts]
			var downDeps []int
			if chunk < len(gatingChunks) {
				downDeps = append(downDeps, gatingChunks[chunk])
			}
			if moePrev >= 0 {
				downDeps = append(downDeps, moePrev)
			}
			chunkDigital := place.Digital(layer, chunk)

			var downDepArg []int
			if len(downDeps) > 0 {
				downDepArg = downDeps
			}
			transferDown := b.Append(Stage{
				Type:      KindTransfer,
				Name:      fmt.Sprintf("moe_transfer_to_rram_L%d_C%d", layer, chunk),
				Direction: DirDigitalToRRAM,
				Bytes:     chunkSize,
				Latency:   transferLatency(chunkSize),
				Aux: NewMeta().
					Int("chunk_index", chunk).
					Int("chunk_total", numChunks).
					Int("experts_per_tok", expertsPerToken),
				Chiplet: targetRRAM,
				Queue:   chunkDigital,
			}, downDepArg)

			experts := make([]Expert, numExperts)
			for e, tpl := range expertsTemplate {
				tpl.ActivationBytes = chunkSize / expertsPerToken
				tpl.WeightBytes = weightOnFirstChunk(chunk, tpl.WeightBytes)
				tpl.ChunkIndex = chunk
				experts[e] = tpl
			}

			moeStage := b.Append(Stage{
				Type:            KindMoELinear,
				Name:            fmt.Sprintf("moe_L%d_C%d", layer, chunk),
				Parallel:        true,
				PulseCount:      max(p.IntermediateSize/64, 16),
				AdcSamples:      p.HiddenSize,
				PreCycles:       12,
				PostCycles:      10,
				ActivationBytes: chunkSize,
				WeightBytes:     weightOnFirstChunk(chunk, expertWeightBytes),
				Experts:         experts,
			}, []int{transferDown})

			transferUp := b.Append(Stage{
				Type:      KindTransfer,
				Name:      fmt.Sprintf("moe_transfer_to_digital_L%d_C%d", layer, chunk),
				Direction: DirRRAMToDigital,
				Bytes:     chunkSize,
				Latency:   transferLatency(chunkSize),
				Aux: NewMeta().
					Int("chunk_index", chunk).
					Int("chunk_total", numChunks).
					Int("experts_per_tok", expertsPerToken),
				Chiplet: chunkDigital,
				Queue:   targetRRAM,
			}, []int{moeStage})

			moePrev = transferUp
			transferUpChunks = append(transferUpChunks, transferUp)
		}

		mergeChunks := b.appendChunked(func(chunk, chunkTokens int) Stage {
			return Stage{
				Type:    KindMoEMerge,
				Name:    fmt.Sprintf("moe_merge_L%d_C%d", layer, chunk),
				Rows:    chunkTokens,
				Cols:    p.HiddenSize,
				Latency: max(latencyBase/5, 10),
			}
		}, plan, nil, singletons(transferUpChunks), true)

		postprocessChunks := b.appendChunked(func(chunk, chunkTokens int) Stage {
			owner := place.Digital(layer, chunk)
			return Stage{
				Type:          KindPostprocess,
				Name:          fmt.Sprintf("postprocess_L%d_C%d", layer, chunk),
				Rows:          chunkTokens,
				Cols:          p.HiddenSize,
				Latency:       max(latencyBase/3, 12),
				NonlinearKind: "residual",
				HostStoreKind: "kv_cache",
				Chiplet:       owner,
				Queue:         owner,
			}
		}, plan, nil, singletons(mergeChunks), true)

		switch {
		case len(postprocessChunks) > 0:
			prevStage = postprocessChunks[len(postprocessChunks)-1]
		case len(mergeChunks) > 0:
			prevStage = mergeChunks[len(mergeChunks)-1]
		case len(transferUpChunks) > 0:
			prevStage = transferUpChunks[len(transferUpChunks)-1]
		case moePrev >= 0:
			prevStage = moePrev
		default:
			prevStage = oDone
		}
	}

	return b.Stages()
}
