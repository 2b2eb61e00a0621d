package vad

import (
	"fmt"
	"math"
)

// Compile-time interface assertion.
var _ Classifier = (*EnergyClassifier)(nil)

// EnergyClassifier is a pure-Go frame classifier based on RMS energy with a
// short smoothing history. It maps frame energy onto a pseudo-probability so
// it can stand in for a model-backed classifier: frames well above the noise
// floor approach 1.0, frames at or below it approach 0.0.
type EnergyClassifier struct {
	// NoiseFloor is the RMS level treated as certain silence.
	NoiseFloor float64

	// SpeechLevel is the RMS level treated as certain speech.
	SpeechLevel float64

	history [4]float64
	idx     int
	filled  int
}

// NewEnergyClassifier returns a classifier tuned for 16 kHz capture from a
// typical meeting loopback.
func NewEnergyClassifier() *EnergyClassifier {
	return &EnergyClassifier{
		NoiseFloor:  0.008,
		SpeechLevel: 0.03,
	}
}

// Probability implements [Classifier].
func (c *EnergyClassifier) Probability(frame []float32) (float64, error) {
	if len(frame) != FrameSize {
		return 0, fmt.Errorf("vad: frame must be %d samples, got %d", FrameSize, len(frame))
	}

	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	level := math.Sqrt(sum / float64(len(frame)))

	c.history[c.idx] = level
	c.idx = (c.idx + 1) % len(c.history)
	if c.filled < len(c.history) {
		c.filled++
	}

	var avg float64
	for i := range c.filled {
		avg += c.history[i]
	}
	avg /= float64(c.filled)

	// Linear ramp between the noise floor and the speech level.
	switch {
	case avg <= c.NoiseFloor:
		return 0, nil
	case avg >= c.SpeechLevel:
		return 1, nil
	default:
		return (avg - c.NoiseFloor) / (c.SpeechLevel - c.NoiseFloor), nil
	}
}

// Reset implements [Classifier].
func (c *EnergyClassifier) Reset() {
	c.idx = 0
	c.filled = 0
}
