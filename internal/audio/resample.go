package audio

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// resample converts mono samples from srcRate to dstRate. The result always
// holds round(len(samples)*dstRate/srcRate) samples, so no speech is cut.
func resample(samples []int16, srcRate, dstRate int) ([]int16, error) {
	if srcRate == dstRate {
		return samples, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s) / 32768.0
	}
	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample %d->%d: %w", srcRate, dstRate, err)
	}
	tail, err := rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("flush resampler %d->%d: %w", srcRate, dstRate, err)
	}
	output = append(output, tail...)

	want := resampledLen(len(samples), srcRate, dstRate)
	out := make([]int16, want)
	// Past the filter output the remainder stays silent.
	for i := 0; i < want && i < len(output); i++ {
		out[i] = clampInt16(output[i] * 32768.0)
	}
	return out, nil
}

func resampledLen(n, srcRate, dstRate int) int {
	return int(math.Round(float64(n) * float64(dstRate) / float64(srcRate)))
}

func clampInt16(v float64) int16 {
	v = math.Round(v)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
