// Package device defines the interfaces for audio hardware access: device
// discovery, capture streams, and playback.
//
// The three abstractions are:
//
//   - [Provider] — enumerates and resolves audio devices.
//   - [CaptureStream] — delivers raw interleaved float32 blocks from an input
//     device at its native rate and channel count, via a callback invoked on
//     the audio thread.
//   - [Player] — plays mono float32 samples on an output device and supports
//     immediate stop.
//
// Implementations wrap a concrete audio backend (see internal/device for the
// miniaudio adapter). The interfaces are intentionally narrow so the capture
// engine and orchestrator stay decoupled from hardware details, and so tests
// can substitute fakes.
package device

import "errors"

// ErrNotFound is returned by [Provider.Resolve] when no device matches.
var ErrNotFound = errors.New("device: no matching audio device")

// Kind selects the device direction for discovery.
type Kind int

const (
	// Input selects capture-capable devices.
	Input Kind = iota

	// Output selects playback-capable devices.
	Output
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	if k == Output {
		return "output"
	}
	return "input"
}

// Info describes one audio device as reported by the backend.
type Info struct {
	// Index is the backend-assigned device index.
	Index int

	// Name is the device's display name.
	Name string

	// MaxInputChannels is the number of capture channels, 0 for pure outputs.
	MaxInputChannels int

	// MaxOutputChannels is the number of playback channels, 0 for pure inputs.
	MaxOutputChannels int

	// DefaultSampleRate is the device's native sample rate in Hz.
	DefaultSampleRate int
}

// BlockFunc receives one block of interleaved float32 samples at the device's
// native rate and channel count. It is invoked on the audio thread and must
// not block.
type BlockFunc func(samples []float32)

// CaptureStream is an open capture session on one input device.
type CaptureStream interface {
	// Start begins delivering blocks to the callback registered at open time.
	Start() error

	// Stop halts the device. Stop is idempotent.
	Stop() error
}

// Player plays mono float32 samples on an output device.
//
// Implementations must be safe for concurrent use: Stop may be called from a
// different goroutine while Play is blocked.
type Player interface {
	// Play plays samples at the given rate and blocks until playback
	// completes or Stop is called.
	Play(samples []float32, rate int) error

	// Stop aborts any in-progress playback immediately. Safe to call when
	// nothing is playing.
	Stop()
}

// Provider enumerates audio devices and opens capture streams.
type Provider interface {
	// List returns all devices of the given kind.
	List(kind Kind) ([]Info, error)

	// Resolve finds a device by case-insensitive name substring match.
	// An empty name resolves to the system default device for the kind.
	// Returns [ErrNotFound] if no device matches.
	Resolve(name string, kind Kind) (Info, error)

	// OpenCapture opens a capture stream on the device, delivering blocks of
	// blockSize frames at the device's native rate and channel count.
	OpenCapture(dev Info, blockSize int, fn BlockFunc) (CaptureStream, error)

	// OpenPlayer opens a player on the output device.
	OpenPlayer(dev Info) (Player, error)
}
