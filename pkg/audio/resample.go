package audio

import "math"

// Resample converts samples from rate from to rate to using linear
// interpolation between the two nearest input samples. The output length is
// round(len(samples) * to / from). When from == to the input is returned
// unchanged. A zero-length input yields a zero-length output.
//
// Resample is deterministic and has no internal state.
func Resample(samples []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 {
		return nil
	}
	if from == to || len(samples) == 0 {
		return samples
	}

	n := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	if n == 0 {
		return nil
	}

	out := make([]float32, n)
	ratio := float64(from) / float64(to)
	last := len(samples) - 1

	for i := range n {
		pos := float64(i) * ratio
		if pos > float64(last) {
			pos = float64(last)
		}
		idx := int(pos)
		frac := float32(pos - float64(idx))

		s0 := samples[idx]
		s1 := s0
		if idx < last {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}
