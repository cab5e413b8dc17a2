package rng_test

import (
	"testing"

	"github.com/jihwankim/glitch/pkg/rng"
)

func TestUniformDurationBounds(t *testing.T) {
	s := rng.New(1)
	for i := 0; i < 1000; i++ {
		v := s.UniformDuration(10, 20)
		if v < 10 || v >= 20 {
			t.Fatalf("UniformDuration(10, 20) = %d, want in [10, 20)", v)
		}
	}
}

func TestUniformDurationDegenerate(t *testing.T) {
	s := rng.New(1)
	if got := s.UniformDuration(5, 5); got != 5 {
		t.Fatalf("UniformDuration(5, 5) = %d, want 5", got)
	}
	if got := s.UniformDuration(5, 3); got != 5 {
		t.Fatalf("UniformDuration(5, 3) = %d, want lo (5)", got)
	}
}

func TestBernoulliExtremes(t *testing.T) {
	s := rng.New(1)
	for i := 0; i < 100; i++ {
		if s.Bernoulli(0) {
			t.Fatal("Bernoulli(0) returned true")
		}
		if !s.Bernoulli(1) {
			t.Fatal("Bernoulli(1) returned false")
		}
	}
}

func TestExponentialDisabled(t *testing.T) {
	s := rng.New(1)
	if got := s.Exponential(0); got != 0 {
		t.Fatalf("Exponential(0) = %d, want 0", got)
	}
	if got := s.Exponential(-5); got != 0 {
		t.Fatalf("Exponential(-5) = %d, want 0", got)
	}
}

func TestSameSeedSameSequence(t *testing.T) {
	a := rng.New(42)
	b := rng.New(42)
	for i := 0; i < 50; i++ {
		va := a.UniformDuration(0, 1_000_000)
		vb := b.UniformDuration(0, 1_000_000)
		if va != vb {
			t.Fatalf("draw %d diverged: %d != %d", i, va, vb)
		}
	}
}

func TestDifferentSeedsDiverge(t *testing.T) {
	a := rng.New(1)
	b := rng.New(2)
	same := true
	for i := 0; i < 20; i++ {
		if a.UniformDuration(0, 1<<30) != b.UniformDuration(0, 1<<30) {
			same = false
			break
		}
	}
	if same {
		t.Fatal("two different seeds produced an identical draw sequence")
	}
}

func TestUniformPartitionNonEmptyGroups(t *testing.T) {
	s := rng.New(7)
	for i := 0; i < 200; i++ {
		groups := s.UniformPartition([]int{0, 1, 2, 3})
		if len(groups) != 2 {
			t.Fatalf("expected 2 groups, got %d", len(groups))
		}
		if len(groups[0]) == 0 || len(groups[1]) == 0 {
			t.Fatalf("partition produced an empty group: %v", groups)
		}
		total := len(groups[0]) + len(groups[1])
		if total != 4 {
			t.Fatalf("partition dropped nodes: got %d total, want 4", total)
		}
	}
}

func TestUniformPartitionSingleNode(t *testing.T) {
	s := rng.New(1)
	groups := s.UniformPartition([]int{0})
	if len(groups) != 1 || len(groups[0]) != 1 {
		t.Fatalf("UniformPartition([0]) = %v, want a single group of one", groups)
	}
}
