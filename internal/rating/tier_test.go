package rating

import "testing"

func TestClampTier(t *testing.T) {
	cases := map[int]int{-5: 1, 0: 1, 1: 1, 50: 50, 100: 100, 101: 100, 900: 100}
	for in, want := range cases {
		if got := ClampTier(in); got != want {
			t.Fatalf("ClampTier(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestBandFor(t *testing.T) {
	if b := BandFor(100); b.Index != 5 {
		t.Fatalf("tier 100 must be the last band, got %d", b.Index)
	}
	if b := BandFor(0); b.Index != 1 {
		t.Fatalf("tier 0 clamps into band 1, got %d", b.Index)
	}
	if b := BandFor(-3); b.Index != 1 {
		t.Fatalf("negative tier clamps into band 1, got %d", b.Index)
	}
	if b := BandFor(20); b.Index != 1 {
		t.Fatalf("tier 20 belongs to band 1, got %d", b.Index)
	}
	if b := BandFor(21); b.Index != 2 {
		t.Fatalf("tier 21 belongs to band 2, got %d", b.Index)
	}
}

func TestOperandRangeInterpolation(t *testing.T) {
	b := BandFor(1)
	min, max := OperandRange(b.Start)
	if min != b.StartMin || max != b.StartMax {
		t.Fatalf("band start must use start range, got %d-%d", min, max)
	}
	min, max = OperandRange(b.End)
	if min != b.EndMin || max != b.EndMax {
		t.Fatalf("band end must use end range, got %d-%d", min, max)
	}
	midMin, midMax := OperandRange((b.Start + b.End) / 2)
	if midMin < b.StartMin || midMax > b.EndMax {
		t.Fatalf("mid-band range out of bounds: %d-%d", midMin, midMax)
	}
}

func TestAdvanceTierNeverCrossesCheckpoint(t *testing.T) {
	// tier 9 + perfect session would be +3, but 10 is a mastery checkpoint
	if got := AdvanceTier(9, 1.0, 10); got != 10 {
		t.Fatalf("advance from 9 must stop at checkpoint 10, got %d", got)
	}
	// tier 19 may reach the band boundary 20, not cross it
	if got := AdvanceTier(19, 1.0, 10); got != 20 {
		t.Fatalf("advance from 19 must stop at band boundary 20, got %d", got)
	}
	// mid-decade advancement of up to 3 is allowed
	if got := AdvanceTier(42, 1.0, 10); got != 45 {
		t.Fatalf("advance from 42 with perfect run must be +3, got %d", got)
	}
	if got := AdvanceTier(42, 0.5, 0); got != 42 {
		t.Fatalf("weak session must not advance, got %d", got)
	}
}

func TestMasteryRequirement(t *testing.T) {
	if q, acc, ok := MasteryRequirement(30); !ok || q != 5 || acc != 0.80 {
		t.Fatalf("within-band checkpoint: got q=%d acc=%f ok=%v", q, acc, ok)
	}
	if q, acc, ok := MasteryRequirement(40); !ok || q != 10 || acc != 0.90 {
		t.Fatalf("band boundary: got q=%d acc=%f ok=%v", q, acc, ok)
	}
	if _, _, ok := MasteryRequirement(33); ok {
		t.Fatalf("33 is not a checkpoint")
	}
}

func TestPassesMastery(t *testing.T) {
	if !PassesMastery(30, 4, 5) {
		t.Fatalf("4/5 clears an 80%% checkpoint")
	}
	if PassesMastery(30, 3, 5) {
		t.Fatalf("3/5 must fail an 80%% checkpoint")
	}
	if !PassesMastery(40, 9, 10) {
		t.Fatalf("9/10 clears a 90%% band boundary")
	}
	if PassesMastery(40, 9, 9) {
		t.Fatalf("too few questions must fail the boundary test")
	}
}
