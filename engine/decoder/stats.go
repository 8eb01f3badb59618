package decoder

import (
	"math"
	"sort"

	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"gonum.org/v1/gonum/stat"
)

// maxStatSamples caps the strided sample the statistics are computed from.
const maxStatSamples = 1 << 20

// computeStats summarises the scalar distribution from an evenly strided sample.
func computeStats(values []float32) model.ScalarStats {
	if len(values) == 0 {
		return model.ScalarStats{}
	}
	stride := max(1, len(values)/maxStatSamples)
	sample := make([]float64, 0, len(values)/stride+1)
	for i := 0; i < len(values); i += stride {
		v := float64(values[i])
		if !math.IsNaN(v) {
			sample = append(sample, v)
		}
	}
	if len(sample) == 0 {
		return model.ScalarStats{}
	}

	mean, std := stat.MeanStdDev(sample, nil)
	if len(sample) == 1 {
		std = 0
	}
	sort.Float64s(sample)
	return model.ScalarStats{
		Mean:    mean,
		StdDev:  std,
		P01:     stat.Quantile(0.01, stat.Empirical, sample, nil),
		P99:     stat.Quantile(0.99, stat.Empirical, sample, nil),
		Median:  stat.Quantile(0.5, stat.Empirical, sample, nil),
		Samples: len(sample),
	}
}
