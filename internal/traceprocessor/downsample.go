package traceprocessor

import (
	"math"

	"github.com/montanaflynn/stats"
)

// downsample reduces xs to ceil(len(xs)/k) samples
func downsample(xs []float64, k int, method DownsampleMethod) []float64 {
	if k <= 1 {
		return append([]float64(nil), xs...)
	}
	out := make([]float64, 0, (len(xs)+k-1)/k)
	for i := 0; i < len(xs); i += k {
		block := xs[i:min(i+k, len(xs))]
		if method == DownsampleDecimate {
			out = append(out, block[0])
			continue
		}
		out = append(out, blockMean(block))
	}
	return out
}

// blockMean averages the valid samples of a block; an all-NaN block is NaN
func blockMean(block []float64) float64 {
	valid := make(stats.Float64Data, 0, len(block))
	for _, v := range block {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	m, err := valid.Mean()
	if err != nil {
		return math.NaN()
	}
	return m
}
