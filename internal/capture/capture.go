// Package capture owns one audio input device and turns its native-format
// callback stream into a continuous sequence of target-rate mono chunks.
//
// Each native block is downmixed to mono, resampled to the target rate,
// appended to a ring buffer of recent audio, and delivered non-blocking to a
// bounded consumer channel. When the consumer falls behind, the oldest queued
// chunk is dropped in favour of the new one: a live pipeline must never block
// the audio thread, and bounded staleness beats completeness.
package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standin-ai/standin/pkg/audio"
	"github.com/standin-ai/standin/pkg/audio/device"
)

const (
	// DefaultTargetRate is the pipeline rate expected by the recognizer and
	// the boundary detector.
	DefaultTargetRate = 16000

	// DefaultChunkSize is 30 ms at the default target rate.
	DefaultChunkSize = 480

	// DefaultRingSeconds of recent audio retained for recognizer re-feeds.
	DefaultRingSeconds = 120

	// DefaultQueueDepth bounds the capture → consumer channel.
	DefaultQueueDepth = 500
)

// Config holds capture engine settings. Zero values take the defaults above.
type Config struct {
	// DeviceName is a substring matched against input device names.
	// Empty means: probe for LoopbackName, then fall back to the default
	// input device.
	DeviceName string

	// LoopbackName is the designated loopback device probed when DeviceName
	// is empty (e.g. "BlackHole 2ch" on macOS).
	LoopbackName string

	// TargetRate is the output sample rate in Hz.
	TargetRate int

	// ChunkSize is the number of target-rate samples per delivered chunk.
	ChunkSize int

	// RingSeconds is the ring buffer depth in seconds of audio.
	RingSeconds int

	// QueueDepth bounds the consumer channel.
	QueueDepth int
}

func (c *Config) applyDefaults() {
	if c.TargetRate <= 0 {
		c.TargetRate = DefaultTargetRate
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.RingSeconds <= 0 {
		c.RingSeconds = DefaultRingSeconds
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = DefaultQueueDepth
	}
}

// Engine is the audio capture engine. Create with [New], then [Engine.Start].
// All exported methods are safe for concurrent use.
type Engine struct {
	cfg      Config
	provider device.Provider

	ring *audio.RingBuffer
	out  chan audio.Chunk

	nativeRate     int
	nativeChannels int

	started time.Time
	dropped atomic.Int64
	running atomic.Bool

	mu     sync.Mutex
	stream device.CaptureStream
}

// New creates an Engine. The provider supplies hardware access; inject a fake
// in tests.
func New(provider device.Provider, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:      cfg,
		provider: provider,
		ring:     audio.NewRingBuffer(cfg.RingSeconds, cfg.TargetRate, cfg.ChunkSize),
		out:      make(chan audio.Chunk, cfg.QueueDepth),
	}
}

// Start resolves the input device, opens the native-rate capture stream, and
// begins producing chunks. Calling Start on a running engine is a no-op.
func (e *Engine) Start() error {
	if e.running.Load() {
		return nil
	}

	info, err := e.resolveDevice()
	if err != nil {
		return err
	}

	e.nativeRate = info.DefaultSampleRate
	e.nativeChannels = info.MaxInputChannels
	if e.nativeChannels <= 0 {
		e.nativeChannels = 1
	}

	// Scale the block size to the native rate so each block covers the same
	// duration as one target-rate chunk.
	nativeBlock := e.cfg.ChunkSize * e.nativeRate / e.cfg.TargetRate

	stream, err := e.provider.OpenCapture(info, nativeBlock, e.onBlock)
	if err != nil {
		return fmt.Errorf("capture: open device %q: %w", info.Name, err)
	}

	e.started = time.Now()
	e.running.Store(true)

	if err := stream.Start(); err != nil {
		e.running.Store(false)
		return fmt.Errorf("capture: start device %q: %w", info.Name, err)
	}

	e.mu.Lock()
	e.stream = stream
	e.mu.Unlock()

	slog.Info("audio capture started",
		"device", info.Name,
		"native_rate", e.nativeRate,
		"native_channels", e.nativeChannels,
		"target_rate", e.cfg.TargetRate,
		"native_block", nativeBlock,
	)
	return nil
}

// resolveDevice applies the discovery policy: explicit name, else the
// designated loopback device, else the system default input.
func (e *Engine) resolveDevice() (device.Info, error) {
	if e.cfg.DeviceName != "" {
		info, err := e.provider.Resolve(e.cfg.DeviceName, device.Input)
		if err != nil {
			return device.Info{}, fmt.Errorf("capture: resolve device %q: %w", e.cfg.DeviceName, err)
		}
		return info, nil
	}

	if e.cfg.LoopbackName != "" {
		if info, err := e.provider.Resolve(e.cfg.LoopbackName, device.Input); err == nil {
			slog.Info("using loopback capture device", "device", info.Name)
			return info, nil
		}
		slog.Warn("loopback device not found, falling back to default input",
			"loopback", e.cfg.LoopbackName)
	}

	info, err := e.provider.Resolve("", device.Input)
	if err != nil {
		return device.Info{}, fmt.Errorf("capture: resolve default input: %w", err)
	}
	return info, nil
}

// onBlock runs on the audio thread for each native block. It must not block.
func (e *Engine) onBlock(samples []float32) {
	if !e.running.Load() {
		return
	}

	mono := audio.DownmixAverage(samples, e.nativeChannels)
	resampled := audio.Resample(mono, e.nativeRate, e.cfg.TargetRate)

	e.ring.Push(resampled)

	chunk := audio.Chunk{
		Samples:   resampled,
		Rate:      e.cfg.TargetRate,
		Timestamp: time.Since(e.started),
	}

	select {
	case e.out <- chunk:
	default:
		// Queue full: drop the single oldest chunk, then insert the new one.
		select {
		case <-e.out:
			e.dropped.Add(1)
		default:
		}
		select {
		case e.out <- chunk:
		default:
		}
	}
}

// Chunks returns the consumer channel. It is closed by [Engine.Stop] after
// the device has been halted, so ranging over it terminates cleanly.
func (e *Engine) Chunks() <-chan audio.Chunk {
	return e.out
}

// Recent returns the last seconds of captured target-rate audio from the
// ring buffer.
func (e *Engine) Recent(seconds float64) []float32 {
	return e.ring.Recent(seconds)
}

// Dropped reports how many chunks were discarded due to a stalled consumer.
func (e *Engine) Dropped() int64 {
	return e.dropped.Load()
}

// Running reports whether the engine is capturing.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Stop halts the device and closes the chunk channel. Idempotent.
func (e *Engine) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}

	e.mu.Lock()
	stream := e.stream
	e.stream = nil
	e.mu.Unlock()

	var err error
	if stream != nil {
		// Halting the device first guarantees no further onBlock callbacks,
		// making the close below safe.
		err = stream.Stop()
	}
	close(e.out)

	slog.Info("audio capture stopped", "dropped_chunks", e.dropped.Load())
	if err != nil {
		return fmt.Errorf("capture: stop device: %w", err)
	}
	return nil
}
