// Package estimate implements the row-count estimator (C5): a fast
// approximation of a source's total row count from a bounded byte sample,
// used by the reader's open_fast path before a full or partial index is
// available.
//
// Grounded on the original Rust reader's estimate_row_count (sample-budget
// tiers, ceil-based extrapolation) in original_source/src/csv/reader.rs.
package estimate

import (
	"github.com/tablescan/tablescan/internal/simd"
)

// Size-tiered sample budgets from spec §4.5.
const (
	budgetSmall  = 256 * 1024
	budgetMedium = 128 * 1024
	budgetLarge  = 64 * 1024

	thresholdSmall  = 10 * 1024 * 1024
	thresholdMedium = 100 * 1024 * 1024
)

// SampleBudget returns the byte budget B to sample for a source of the given
// total file size.
func SampleBudget(fileSize int64) int64 {
	switch {
	case fileSize < thresholdSmall:
		return budgetSmall
	case fileSize < thresholdMedium:
		return budgetMedium
	default:
		return budgetLarge
	}
}

// RowEstimate is the result described in spec §3.
type RowEstimate struct {
	EstimatedRows int64
	IsExact       bool
	SampledBytes  int64
	TotalBytes    int64
}

// Estimate computes a RowEstimate for the data region [dataStart, fileSize)
// of data, using budget B bytes of sample when the region is larger than B.
func Estimate(data []byte, dataStart, fileSize int64) RowEstimate {
	dataSize := fileSize - dataStart
	budget := SampleBudget(fileSize)

	if dataSize <= budget {
		r := simd.CountByte(data[dataStart:fileSize], '\n')
		rows := int64(r)
		if tail := data[dataStart:fileSize]; len(tail) > 0 && tail[len(tail)-1] != '\n' {
			rows++
		}
		return RowEstimate{
			EstimatedRows: rows,
			IsExact:       true,
			SampledBytes:  dataSize,
			TotalBytes:    dataSize,
		}
	}

	sampleEnd := dataStart + budget
	if sampleEnd > fileSize {
		sampleEnd = fileSize
	}
	r := simd.CountByte(data[dataStart:sampleEnd], '\n')
	s := sampleEnd - dataStart

	if r == 0 {
		return RowEstimate{
			EstimatedRows: 1,
			IsExact:       false,
			SampledBytes:  s,
			TotalBytes:    dataSize,
		}
	}

	estimated := ceilDiv(dataSize*int64(r), s)
	return RowEstimate{
		EstimatedRows: estimated,
		IsExact:       false,
		SampledBytes:  s,
		TotalBytes:    dataSize,
	}
}

func ceilDiv(numerator, denominator int64) int64 {
	if denominator == 0 {
		return 0
	}
	q := numerator / denominator
	if numerator%denominator != 0 {
		q++
	}
	return q
}
