package eviction

import "testing"

// TestARC_AdaptationFormula: starting p=c/2, a hit on B1 with |B1|=2,
// |B2|=4 moves p to c/2 + 2 (delta = max(1, |B2|/|B1|) = max(1, 2) = 2).
func TestARC_AdaptationFormula(t *testing.T) {
	t.Parallel()

	a := NewARC(40960) // c = 40960/4096 = 10, p starts at 5
	a.b1 = []string{"g1", "g2"}
	a.b2 = []string{"g3", "g4", "g5", "g6"}

	startP := a.p
	a.OnInsert("g1", 100)

	if got, want := a.p, startP+2; got != want {
		t.Fatalf("p = %d, want %d", got, want)
	}

	if contains(a.b1, "g1") {
		t.Fatalf("g1 should have been removed from B1")
	}

	if !contains(a.t2, "g1") {
		t.Fatalf("g1 should have been promoted to T2")
	}
}

func TestARC_PClampedToCapacity(t *testing.T) {
	t.Parallel()

	a := NewARC(4096 * 4) // c = 4
	a.p = a.c

	a.b1 = []string{"g1"}
	a.b2 = []string{"g2", "g3", "g4", "g5", "g6", "g7", "g8", "g9"}

	a.OnInsert("g1", 10)

	if a.p != a.c {
		t.Fatalf("p = %d, want clamped to c = %d", a.p, a.c)
	}
}
