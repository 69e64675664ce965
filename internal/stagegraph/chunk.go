package stagegraph

// ChunkPlan is an ordered partition of the token stream. Tokens holds the
// per-chunk token counts; Bytes the matching activation byte sizes. The
// counts always sum to the requested token total and every chunk is
// non-empty, so the final chunk may simply be smaller than the rest.
type ChunkPlan struct {
	Tokens []int
	Bytes  []int
}

// NumChunks reports how many chunks the plan holds.
func (p ChunkPlan) NumChunks() int {
	return len(p.Tokens)
}

// TotalTokens sums the per-chunk token counts.
func (p ChunkPlan) TotalTokens() int {
	total := 0
	for _, t := range p.Tokens {
		total += t
	}
	return total
}

// PlanChunks partitions tokens into chunks whose activation slice fits the
// byte budget. Inputs that would break the division are clamped to safe
// minima rather than rejected; the plan is fully determined by its
// arguments, which keeps simulation traces reproducible. tokens <= 0 yields
// an empty plan.
func PlanChunks(tokens, hiddenSize, dtypeBytes, chunkBytes int) ChunkPlan {
	if tokens <= 0 {
		return ChunkPlan{}
	}
	if dtypeBytes <= 0 {
		dtypeBytes = 1
	}
	perTokenBytes := max(hiddenSize*dtypeBytes, dtypeBytes)
	tokensPerChunk := max(chunkBytes/perTokenBytes, 1)

	var plan ChunkPlan
	remaining := tokens
	for remaining > 0 {
		take := min(tokensPerChunk, remaining)
		plan.Tokens = append(plan.Tokens, take)
		plan.Bytes = append(plan.Bytes, max(take*hiddenSize*dtypeBytes, dtypeBytes))
		remaining -= take
	}
	return plan
}
