package model

import "testing"

func TestNextUpstreamIndexRoundRobin(t *testing.T) {
	r := &Route{}
	seen := make([]int, 7)
	for i := range seen {
		seen[i] = r.NextUpstreamIndex(3)
	}
	want := []int{0, 1, 2, 0, 1, 2, 0}
	for i, v := range want {
		if seen[i] != v {
			t.Fatalf("call %d: got %d, want %d (sequence %v)", i, seen[i], v, seen)
		}
	}
}

func TestNextUpstreamIndexSharedAcrossCallers(t *testing.T) {
	r := &Route{}
	a := r.NextUpstreamIndex(2)
	b := r.NextUpstreamIndex(2)
	if a == b {
		t.Fatalf("two sequential calls on the same route must advance the shared counter, got %d then %d", a, b)
	}
}
