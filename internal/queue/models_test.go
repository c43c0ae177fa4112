package queue

import (
	"math"
	"testing"
)

func TestParseStatus(t *testing.T) {
	if got, ok := ParseStatus(" Processing "); !ok || got != StatusProcessing {
		t.Fatalf("ParseStatus = %q, %v", got, ok)
	}
	if _, ok := ParseStatus("ripping"); ok {
		t.Fatal("unknown status accepted")
	}
	if !StatusFailed.IsTerminal() || StatusPending.IsTerminal() {
		t.Fatal("unexpected terminal classification")
	}
}

func TestClampProgress(t *testing.T) {
	tests := map[float64]float64{-1: 0, 0.25: 0.25, 3: 1, math.NaN(): 0}
	for in, want := range tests {
		if got := ClampProgress(in); got != want {
			t.Fatalf("ClampProgress(%v) = %v, want %v", in, got, want)
		}
	}
}
