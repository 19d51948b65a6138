package budget

import "testing"

func TestReserveAllowsWithinBudget(t *testing.T) {
	tr := NewTracker(1000, 10)
	if err := tr.Reserve(100); err != nil {
		t.Fatalf("expected reservation to succeed, got %v", err)
	}
	tokens, requests := tr.Usage()
	if tokens != 100 || requests != 1 {
		t.Fatalf("expected usage (100,1), got (%d,%d)", tokens, requests)
	}
}

func TestReserveFailsFastOnRequestLimit(t *testing.T) {
	tr := NewTracker(0, 1)
	if err := tr.Reserve(1); err != nil {
		t.Fatalf("first reservation should succeed: %v", err)
	}
	if err := tr.Reserve(1); err == nil {
		t.Fatalf("expected second reservation to fail with Budget")
	}
}

func TestReserveFailsFastOnTokenBudget(t *testing.T) {
	tr := NewTracker(50, 0)
	if err := tr.Reserve(40); err != nil {
		t.Fatalf("first reservation should succeed: %v", err)
	}
	if err := tr.Reserve(20); err == nil {
		t.Fatalf("expected reservation exceeding token budget to fail")
	}
}

func TestZeroLimitsAreUnbounded(t *testing.T) {
	tr := NewTracker(0, 0)
	for i := 0; i < 100; i++ {
		if err := tr.Reserve(1_000_000); err != nil {
			t.Fatalf("expected unbounded tracker to never fail, got %v", err)
		}
	}
}

func TestEstimateTokenCount(t *testing.T) {
	n := EstimateTokenCount("a simple short sentence")
	if n <= 0 {
		t.Fatalf("expected positive token estimate, got %d", n)
	}
}
