package stagegraph

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func smallParams() Params {
	return Params{
		Layers:              1,
		HiddenSize:          8,
		IntermediateSize:    16,
		NumExperts:          2,
		ExpertsPerToken:     1,
		SeqLength:           4,
		Batch:               1,
		DtypeBytes:          2,
		DigitalChiplets:     1,
		RRAMChiplets:        1,
		DigitalLatencyScale: 1.0,
		ChunkBytes:          1024,
	}
}

func multiChunkParams() Params {
	p := smallParams()
	p.Layers = 2
	p.SeqLength = 64
	p.ChunkBytes = 256 // 16 tokens per chunk -> 4 chunks
	p.DigitalChiplets = 2
	p.RRAMChiplets = 3
	return p
}

func stageByName(t *testing.T, stages []Stage, name string) (int, Stage) {
	t.Helper()
	for i, st := range stages {
		if st.Name == name {
			return i, st
		}
	}
	t.Fatalf("no stage named %q", name)
	return -1, Stage{}
}

func TestBuildTopologicalOrder(t *testing.T) {
	for _, p := range []Params{smallParams(), multiChunkParams()} {
		stages := Build(p)
		if len(stages) == 0 {
			t.Fatal("empty sequence")
		}
		for i, st := range stages {
			for _, dep := range st.Deps {
				if dep >= i {
					t.Fatalf("stage %d (%s) depends on %d", i, st.Name, dep)
				}
				if dep < 0 {
					t.Fatalf("stage %d (%s) has negative dependency", i, st.Name)
				}
			}
		}
	}
}

func TestBuildSmallModelScenario(t *testing.T) {
	stages := Build(smallParams())

	if len(stages) != 23 {
		t.Fatalf("stage count = %d, want 23", len(stages))
	}
	root := stages[0]
	if root.Type != KindTokenPrep || len(root.Deps) != 0 {
		t.Fatalf("root stage: type=%s deps=%v", root.Type, root.Deps)
	}
	if root.Tokens != 4 || root.Features != 8 {
		t.Fatalf("root tokens=%d features=%d", root.Tokens, root.Features)
	}

	// Each projection is a complete transfer/compute/transfer triple.
	for _, proj := range []string{"q", "k", "v", "o"} {
		_, down := stageByName(t, stages, proj+"_transfer_to_rram_L0_C0")
		_, lin := stageByName(t, stages, proj+"_proj_rram_L0_C0")
		_, up := stageByName(t, stages, proj+"_transfer_to_digital_L0_C0")
		if down.Direction != DirDigitalToRRAM || up.Direction != DirRRAMToDigital {
			t.Fatalf("%s projection directions: %s / %s", proj, down.Direction, up.Direction)
		}
		if lin.Type != KindRRAMLinear {
			t.Fatalf("%s projection compute type = %s", proj, lin.Type)
		}
		if down.Latency != 4 || up.Latency != 4 {
			t.Fatalf("%s transfer latency floor not applied: %d / %d", proj, down.Latency, up.Latency)
		}
	}

	_, gating := stageByName(t, stages, "moe_gating_L0_C0")
	if gating.K != 2 {
		t.Fatalf("gating enumerates %d experts, want 2", gating.K)
	}
	if !gating.RandomizeExperts {
		t.Fatal("gating should request expert randomization")
	}

	_, moe := stageByName(t, stages, "moe_L0_C0")
	if len(moe.Experts) != 2 {
		t.Fatalf("moe_linear carries %d experts, want 2", len(moe.Experts))
	}
	for i, e := range moe.Experts {
		if e.Name != fmt.Sprintf("expert_0_%d", i) {
			t.Fatalf("expert %d name = %q", i, e.Name)
		}
		if e.WeightBytes != 8*16*2 {
			t.Fatalf("expert %d weight bytes = %d", i, e.WeightBytes)
		}
		if e.ExecuteLatency != 32 {
			t.Fatalf("expert %d execute latency = %d", i, e.ExecuteLatency)
		}
	}

	// The final postprocess stage terminates the graph.
	last := len(stages) - 1
	if stages[last].Type != KindPostprocess {
		t.Fatalf("final stage type = %s", stages[last].Type)
	}
	if stages[last].HostStoreKind != "kv_cache" {
		t.Fatalf("final stage host store = %q", stages[last].HostStoreKind)
	}
	for i, st := range stages {
		for _, dep := range st.Deps {
			if dep == last {
				t.Fatalf("stage %d depends on the final stage", i)
			}
		}
	}
}

func TestBuildWeightResidency(t *testing.T) {
	p := multiChunkParams()
	stages := Build(p)

	// Exactly the first chunk of each chunked sub-pipeline carries weights.
	for layer := 0; layer < p.Layers; layer++ {
		for _, proj := range []string{"q", "k", "v", "o"} {
			for chunk := 0; chunk < 4; chunk++ {
				name := fmt.Sprintf("%s_proj_rram_L%d_C%d", proj, layer, chunk)
				_, lin := stageByName(t, stages, name)
				if chunk == 0 && lin.WeightBytes == 0 {
					t.Fatalf("%s: first chunk has no weight bytes", name)
				}
				if chunk > 0 && lin.WeightBytes != 0 {
					t.Fatalf("%s: chunk %d carries %d weight bytes", name, chunk, lin.WeightBytes)
				}
			}
		}
		for chunk := 0; chunk < 4; chunk++ {
			name := fmt.Sprintf("moe_L%d_C%d", layer, chunk)
			_, moe := stageByName(t, stages, name)
			wantZero := chunk > 0
			if (moe.WeightBytes == 0) != wantZero {
				t.Fatalf("%s: weight bytes = %d", name, moe.WeightBytes)
			}
			for i, e := range moe.Experts {
				if (e.WeightBytes == 0) != wantZero {
					t.Fatalf("%s expert %d: weight bytes = %d", name, i, e.WeightBytes)
				}
			}
		}
	}
}

func TestBuildMoEChunksSequential(t *testing.T) {
	stages := Build(multiChunkParams())

	// A chunk's transfer to RRAM must wait for the previous chunk's results
	// to leave the shared target.
	for chunk := 1; chunk < 4; chunk++ {
		downIdx, down := stageByName(t, stages, fmt.Sprintf("moe_transfer_to_rram_L0_C%d", chunk))
		prevUpIdx, _ := stageByName(t, stages, fmt.Sprintf("moe_transfer_to_digital_L0_C%d", chunk-1))
		found := false
		for _, dep := range down.Deps {
			if dep == prevUpIdx {
				found = true
			}
		}
		if !found {
			t.Fatalf("stage %d (%s) does not wait for previous transfer-up %d: deps=%v",
				downIdx, down.Name, prevUpIdx, down.Deps)
		}
	}
}

func TestBuildAttentionChunkDeps(t *testing.T) {
	stages := Build(multiChunkParams())

	qDoneIdx, _ := stageByName(t, stages, "q_transfer_to_digital_L0_C3")
	kDoneIdx, _ := stageByName(t, stages, "k_transfer_to_digital_L0_C3")
	_, score0 := stageByName(t, stages, "attn_score_L0_C0")
	if len(score0.Deps) != 2 || score0.Deps[0] != qDoneIdx || score0.Deps[1] != kDoneIdx {
		t.Fatalf("first score chunk deps = %v, want [%d %d]", score0.Deps, qDoneIdx, kDoneIdx)
	}

	// Mixing needs the matching softmax and the completed V projection.
	vDoneIdx, _ := stageByName(t, stages, "v_transfer_to_digital_L0_C3")
	for chunk := 0; chunk < 4; chunk++ {
		smIdx, _ := stageByName(t, stages, fmt.Sprintf("softmax_L0_C%d", chunk))
		_, mix := stageByName(t, stages, fmt.Sprintf("attn_mix_L0_C%d", chunk))
		if len(mix.Deps) != 2 || mix.Deps[0] != smIdx || mix.Deps[1] != vDoneIdx {
			t.Fatalf("mix chunk %d deps = %v, want [%d %d]", chunk, mix.Deps, smIdx, vDoneIdx)
		}
	}
}

func TestBuildLayerChaining(t *testing.T) {
	stages := Build(multiChunkParams())

	lastPostIdx, _ := stageByName(t, stages, "postprocess_L0_C3")
	downIdx, down := stageByName(t, stages, "q_transfer_to_rram_L1_C0")
	if len(down.Deps) != 1 || down.Deps[0] != lastPostIdx {
		t.Fatalf("stage %d deps = %v, want [%d]", downIdx, down.Deps, lastPostIdx)
	}
}

func TestBuildIdempotent(t *testing.T) {
	p := multiChunkParams()
	first, err := Encode(Emit("moe_model", Build(p), p))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	second, err := Encode(Emit("moe_model", Build(p), p))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("two builds from identical inputs produced different documents")
	}
}

func TestBuildStageKindsAreKnown(t *testing.T) {
	known := map[string]bool{
		KindTokenPrep: true, KindTransfer: true, KindRRAMLinear: true,
		KindAttention: true, KindSoftmax: true, KindMoEGating: true,
		KindMoELinear: true, KindMoEMerge: true, KindPostprocess: true,
	}
	for _, st := range Build(multiChunkParams()) {
		if !known[st.Type] {
			t.Fatalf("unknown stage kind %q (%s)", st.Type, st.Name)
		}
		if st.Type == KindTransfer && !strings.HasPrefix(st.Direction, "digital") &&
			!strings.HasPrefix(st.Direction, "rram") {
			t.Fatalf("transfer %s has direction %q", st.Name, st.Direction)
		}
	}
}

func TestBuildClampsDerivedInputs(t *testing.T) {
	p := smallParams()
	p.DtypeBytes = 0
	p.ChunkBytes = -5
	p.DigitalChiplets = 0
	p.RRAMChiplets = 0
	stages := Build(p)
	if len(stages) == 0 {
		t.Fatal("clamped build produced no stages")
	}
	for i, st := range stages {
		for _, dep := range st.Deps {
			if dep >= i {
				t.Fatalf("stage %d (%s) depends on %d", i, st.Name, dep)
			}
		}
	}
}
