package message

import "testing"

func TestReceptionWindowBounds(t *testing.T) {
	tests := []struct {
		seq  uint32
		want bool
	}{
		{84, true},
		{83, false},
		{115, true},
		{116, false},
		{100, true},
		{0, true},
	}
	for _, tc := range tests {
		w := NewReceptionWindow()
		w.Reset(100)
		if got := w.Accept(tc.seq); got != tc.want {
			t.Errorf("Accept(%d) with last=100 = %v, want %v", tc.seq, got, tc.want)
		}
	}
}

func TestReceptionWindowAdvances(t *testing.T) {
	w := NewReceptionWindow()
	for seq := uint32(1); seq <= 40; seq++ {
		if !w.Accept(seq) {
			t.Fatalf("Accept(%d) = false, want true", seq)
		}
	}
	if w.Last() != 40 {
		t.Errorf("Last() = %d, want 40", w.Last())
	}

	// Older numbers inside the window do not move it back.
	if !w.Accept(30) {
		t.Error("Accept(30) = false, want true")
	}
	if w.Last() != 40 {
		t.Errorf("Last() = %d after older seq, want 40", w.Last())
	}

	// Sequence 0 never moves the window.
	w.Accept(0)
	if w.Last() != 40 {
		t.Errorf("Last() = %d after seq 0, want 40", w.Last())
	}

	if w.Accept(23) {
		t.Error("Accept(23) = true, want false")
	}
}

func TestReceptionWindowFreshSession(t *testing.T) {
	// A fresh window is anchored at 0, not at the first number it sees.
	w := NewReceptionWindow()
	if w.Accept(16) {
		t.Error("Accept(16) on a fresh window = true, want false")
	}
	if w.Last() != 0 {
		t.Errorf("Last() = %d after a rejected first seq, want 0", w.Last())
	}
	if !w.Accept(15) {
		t.Error("Accept(15) on a fresh window = false, want true")
	}

	w.Reset(0)
	if w.Accept(100) {
		t.Error("Accept(100) after Reset(0) = true, want false")
	}
	w.Reset(100)
	if !w.Accept(110) {
		t.Error("Accept(110) after Reset(100) = false, want true")
	}
	if w.Last() != 110 {
		t.Errorf("Last() = %d, want 110", w.Last())
	}
}
