// Package audio provides the core audio types and sample-level operations for
// the standin pipeline: float32 mono chunks, linear-interpolation resampling,
// float ↔ 16-bit PCM conversion, channel downmixing, and a fixed-capacity
// ring buffer of recent audio.
//
// Everything in this package is allocation-light and safe to call from a
// real-time capture callback, except where noted.
package audio

import "time"

// Chunk is a short fixed-duration slice of mono float32 samples at the
// pipeline's target rate. A Chunk is immutable once produced; ownership
// transfers to whichever stage receives it.
type Chunk struct {
	// Samples are mono float32 samples in the range [-1.0, 1.0].
	Samples []float32

	// Rate is the sample rate in Hz.
	Rate int

	// Timestamp marks when this chunk was captured, relative to session start.
	Timestamp time.Duration
}

// Duration returns the wall-clock length of the chunk.
func (c Chunk) Duration() time.Duration {
	if c.Rate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.Rate)
}
