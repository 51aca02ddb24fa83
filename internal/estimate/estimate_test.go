package estimate

import (
	"strings"
	"testing"
)

func TestEstimateExactSmallFile(t *testing.T) {
	data := []byte("header\n" + strings.Repeat("a,b\n", 50))
	dataStart := int64(len("header\n"))
	fileSize := int64(len(data))

	got := Estimate(data, dataStart, fileSize)
	if !got.IsExact {
		t.Fatalf("expected exact estimate for small file")
	}
	if got.EstimatedRows != 50 {
		t.Fatalf("EstimatedRows = %d, want 50", got.EstimatedRows)
	}
}

func TestEstimateExactNoTrailingNewline(t *testing.T) {
	data := []byte("header\na,b\nc,d")
	dataStart := int64(len("header\n"))
	got := Estimate(data, dataStart, int64(len(data)))
	if got.EstimatedRows != 2 {
		t.Fatalf("EstimatedRows = %d, want 2", got.EstimatedRows)
	}
}

func TestSampleBudgetTiers(t *testing.T) {
	tests := []struct {
		size int64
		want int64
	}{
		{1024, budgetSmall},
		{thresholdSmall - 1, budgetSmall},
		{thresholdSmall, budgetMedium},
		{thresholdMedium - 1, budgetMedium},
		{thresholdMedium, budgetLarge},
		{thresholdMedium * 10, budgetLarge},
	}
	for _, tt := range tests {
		if got := SampleBudget(tt.size); got != tt.want {
			t.Errorf("SampleBudget(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestEstimateNoNewlinesInSample(t *testing.T) {
	// A region larger than the sample budget with zero newlines in the
	// sampled prefix must fall back to 1, per spec §4.5.
	dataStart := int64(0)
	fileSize := thresholdSmall + 1
	data := make([]byte, budgetSmall) // all zero bytes, no '\n'

	got := Estimate(data, dataStart, fileSize)
	if got.IsExact {
		t.Fatalf("expected inexact estimate for large file")
	}
	if got.EstimatedRows != 1 {
		t.Fatalf("EstimatedRows = %d, want 1", got.EstimatedRows)
	}
}
