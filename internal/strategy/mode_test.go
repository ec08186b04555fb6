package strategy

import "testing"

func testPolicy() ModePolicy {
	return ModePolicy{
		ConservativeThreshold: 0.30,
		AggressiveThreshold:   0.70,
		ConservativeMinEdge:   0.05,
		NormalMinEdge:         0.02,
		AggressiveMinEdge:     0.01,
	}
}

func TestModeForRanges(t *testing.T) {
	policy := testPolicy()
	cases := []struct {
		fraction float64
		want     Mode
	}{
		{0.95, ModeAggressive},
		{0.71, ModeAggressive},
		{0.70, ModeNormal}, // boundary resolves to the lower-risk mode
		{0.50, ModeNormal},
		{0.31, ModeNormal},
		{0.30, ModeConservative}, // boundary resolves to the lower-risk mode
		{0.10, ModeConservative},
		{0.0, ModeConservative},
	}
	for _, tc := range cases {
		if got := policy.ModeFor(tc.fraction); got != tc.want {
			t.Fatalf("fraction %f: expected %s, got %s", tc.fraction, tc.want, got)
		}
	}
}

func TestMinEdgePerMode(t *testing.T) {
	policy := testPolicy()
	if got := policy.MinEdge(ModeAggressive); got != 0.01 {
		t.Fatalf("aggressive min edge: expected 0.01, got %f", got)
	}
	if got := policy.MinEdge(ModeNormal); got != 0.02 {
		t.Fatalf("normal min edge: expected 0.02, got %f", got)
	}
	if got := policy.MinEdge(ModeConservative); got != 0.05 {
		t.Fatalf("conservative min edge: expected 0.05, got %f", got)
	}
}
