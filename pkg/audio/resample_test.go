package audio_test

import (
	"math"
	"testing"

	"github.com/standin-ai/standin/pkg/audio"
)

func TestResample_Identity(t *testing.T) {
	t.Parallel()
	in := []float32{0.1, 0.2, 0.3}
	out := audio.Resample(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: got %f, want %f", i, out[i], in[i])
		}
	}
}

func TestResample_OutputLength(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		n        int
		from, to int
		want     int
	}{
		{"downsample 48k to 16k", 480, 48000, 16000, 160},
		{"upsample 16k to 48k", 160, 16000, 48000, 480},
		{"downsample 44.1k to 16k", 441, 44100, 16000, 160},
		{"empty input", 0, 48000, 16000, 0},
		{"single sample up", 1, 16000, 48000, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			in := make([]float32, tc.n)
			out := audio.Resample(in, tc.from, tc.to)
			if len(out) != tc.want {
				t.Fatalf("got %d samples, want %d", len(out), tc.want)
			}
		})
	}
}

func TestResample_RoundTripPreservesPeak(t *testing.T) {
	t.Parallel()

	// A 440 Hz sine at 48 kHz, downsampled to 16 kHz and back. Linear
	// interpolation loses a little energy at the peaks but the amplitude
	// should survive within a few percent.
	const rate = 48000
	in := make([]float32, rate/10)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / rate))
	}

	down := audio.Resample(in, rate, 16000)
	up := audio.Resample(down, 16000, rate)

	if got := peak(up); math.Abs(float64(got)-1.0) > 0.05 {
		t.Fatalf("round-trip peak %f, want ≈1.0", got)
	}
}

func TestResample_Interpolates(t *testing.T) {
	t.Parallel()
	// Doubling the rate of a two-sample ramp must produce the midpoint.
	out := audio.Resample([]float32{0, 1}, 16000, 32000)
	if len(out) != 4 {
		t.Fatalf("got %d samples, want 4", len(out))
	}
	if math.Abs(float64(out[1])-0.5) > 1e-6 {
		t.Errorf("midpoint: got %f, want 0.5", out[1])
	}
}

func peak(samples []float32) float32 {
	var p float32
	for _, s := range samples {
		if s > p {
			p = s
		} else if -s > p {
			p = -s
		}
	}
	return p
}
