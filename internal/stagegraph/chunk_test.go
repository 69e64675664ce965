package stagegraph

import "testing"

func TestPlanChunksCoversAllTokens(t *testing.T) {
	cases := []struct {
		name       string
		tokens     int
		hidden     int
		dtype      int
		budget     int
		wantChunks int
	}{
		{"single chunk", 4, 8, 2, 1024, 1},
		{"exact split", 64, 16, 2, 1024, 2},
		{"ragged tail", 100, 16, 2, 1024, 4},
		{"budget below one token", 10, 4096, 2, 64, 10},
		{"zero budget clamps to one token", 5, 8, 2, 0, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan := PlanChunks(tc.tokens, tc.hidden, tc.dtype, tc.budget)
			if got := plan.NumChunks(); got != tc.wantChunks {
				t.Fatalf("chunks = %d, want %d", got, tc.wantChunks)
			}
			if got := plan.TotalTokens(); got != tc.tokens {
				t.Fatalf("token sum = %d, want %d", got, tc.tokens)
			}
			for i, n := range plan.Tokens {
				if n < 1 {
					t.Fatalf("chunk %d has %d tokens", i, n)
				}
				wantBytes := max(n*tc.hidden*tc.dtype, tc.dtype)
				if plan.Bytes[i] != wantBytes {
					t.Fatalf("chunk %d bytes = %d, want %d", i, plan.Bytes[i], wantBytes)
				}
			}
		})
	}
}

func TestPlanChunksDegenerate(t *testing.T) {
	if got := PlanChunks(0, 8, 2, 1024).NumChunks(); got != 0 {
		t.Fatalf("tokens=0: chunks = %d, want 0", got)
	}
	if got := PlanChunks(-3, 8, 2, 1024).NumChunks(); got != 0 {
		t.Fatalf("tokens<0: chunks = %d, want 0", got)
	}
}

func TestPlanChunksDeterministic(t *testing.T) {
	a := PlanChunks(1000, 64, 2, 4096)
	b := PlanChunks(1000, 64, 2, 4096)
	if a.NumChunks() != b.NumChunks() {
		t.Fatalf("chunk counts differ: %d vs %d", a.NumChunks(), b.NumChunks())
	}
	for i := range a.Tokens {
		if a.Tokens[i] != b.Tokens[i] || a.Bytes[i] != b.Bytes[i] {
			t.Fatalf("chunk %d differs: (%d,%d) vs (%d,%d)",
				i, a.Tokens[i], a.Bytes[i], b.Tokens[i], b.Bytes[i])
		}
	}
}
