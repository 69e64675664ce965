package stagegraph

// Placement is the round-robin resource placement strategy. It is a pure
// value: identical arguments always map to identical chiplet ids, so graph
// construction and downstream scheduling stay reproducible without any
// randomness. Alternative policies can replace it without touching the
// builder, which only calls through these methods.
type Placement struct {
	digital int
	rram    int
}

// NewPlacement clamps both pool sizes to at least one chiplet.
func NewPlacement(digitalChiplets, rramChiplets int) Placement {
	return Placement{
		digital: max(digitalChiplets, 1),
		rram:    max(rramChiplets, 1),
	}
}

// Digital returns the digital chiplet owning a (layer, chunk) slice.
// This is the canonical placement formula for every digital-side stage.
func (p Placement) Digital(layer, chunk int) int {
	return (layer + chunk) % p.digital
}

// Expert returns the RRAM chiplet hosting an expert's weights.
func (p Placement) Expert(expert int) int {
	return expert % p.rram
}

// ProjectionRRAM spreads the four attention projections of a layer across
// the RRAM pool: Q, K, V and O take consecutive slots starting at layer*4.
func (p Placement) ProjectionRRAM(layer, slot int) int {
	return (layer*4 + slot) % p.rram
}

// DigitalCount reports the clamped digital pool size.
func (p Placement) DigitalCount() int { return p.digital }

// RRAMCount reports the clamped RRAM pool size.
func (p Placement) RRAMCount() int { return p.rram }
