package stagegraph

import "testing"

func TestPlacementDeterministic(t *testing.T) {
	p := NewPlacement(3, 5)
	for layer := 0; layer < 8; layer++ {
		for chunk := 0; chunk < 8; chunk++ {
			first := p.Digital(layer, chunk)
			if again := p.Digital(layer, chunk); again != first {
				t.Fatalf("Digital(%d,%d) not deterministic: %d then %d", layer, chunk, first, again)
			}
		}
	}
	for e := 0; e < 16; e++ {
		first := p.Expert(e)
		if again := p.Expert(e); again != first {
			t.Fatalf("Expert(%d) not deterministic: %d then %d", e, first, again)
		}
	}
}

func TestPlacementCoversAllChiplets(t *testing.T) {
	const digital, rram = 4, 6
	p := NewPlacement(digital, rram)

	seen := make(map[int]bool)
	for layer := 0; layer < digital; layer++ {
		for chunk := 0; chunk < digital; chunk++ {
			id := p.Digital(layer, chunk)
			if id < 0 || id >= digital {
				t.Fatalf("Digital(%d,%d) = %d out of range", layer, chunk, id)
			}
			seen[id] = true
		}
	}
	if len(seen) != digital {
		t.Fatalf("digital sweep used %d of %d chiplets", len(seen), digital)
	}

	seen = make(map[int]bool)
	for e := 0; e < rram; e++ {
		id := p.Expert(e)
		if id < 0 || id >= rram {
			t.Fatalf("Expert(%d) = %d out of range", e, id)
		}
		seen[id] = true
	}
	if len(seen) != rram {
		t.Fatalf("expert sweep used %d of %d chiplets", len(seen), rram)
	}
}

func TestPlacementClampsCounts(t *testing.T) {
	p := NewPlacement(0, -2)
	if p.DigitalCount() != 1 || p.RRAMCount() != 1 {
		t.Fatalf("counts = (%d,%d), want (1,1)", p.DigitalCount(), p.RRAMCount())
	}
	if got := p.Digital(7, 11); got != 0 {
		t.Fatalf("Digital on single chiplet = %d, want 0", got)
	}
	if got := p.Expert(9); got != 0 {
		t.Fatalf("Expert on single chiplet = %d, want 0", got)
	}
}

func TestProjectionRRAMSpread(t *testing.T) {
	p := NewPlacement(2, 8)
	ids := make(map[int]bool)
	for slot := 0; slot < 4; slot++ {
		ids[p.ProjectionRRAM(1, slot)] = true
	}
	if len(ids) != 4 {
		t.Fatalf("projections of one layer landed on %d chiplets, want 4", len(ids))
	}
	if got := p.ProjectionRRAM(2, 1); got != (2*4+1)%8 {
		t.Fatalf("ProjectionRRAM(2,1) = %d, want %d", got, (2*4+1)%8)
	}
}
