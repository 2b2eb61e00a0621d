// Package recognizer manages a long-lived external speech-recognition
// process over a byte-stream protocol: raw little-endian 16-bit PCM mono
// audio goes to its stdin, incremental decoded text comes back on its stdout,
// and a sentinel line on stderr signals that the model has finished loading.
//
// The bridge batches small audio writes into ~1 second flushes to amortise
// pipe overhead, supports pause/resume via POSIX stop/continue signals to
// release shared compute, and shuts the process down gracefully with a
// bounded kill grace period.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standin-ai/standin/pkg/audio"
)

// ErrNotRunning is returned by operations requiring a live process.
var ErrNotRunning = errors.New("recognizer: process not running")

const (
	// DefaultSampleRate is the PCM rate the recognizer expects on stdin.
	DefaultSampleRate = 16000

	// DefaultReadySentinel is the stderr substring marking model-load
	// completion.
	DefaultReadySentinel = "Model loaded"

	// DefaultStopGrace bounds how long Stop waits for a graceful exit
	// before force-killing.
	DefaultStopGrace = 5 * time.Second

	// readBufSize is the stdout/stderr read granularity.
	readBufSize = 4096
)

// Config holds recognizer process settings.
type Config struct {
	// BinaryPath is the recognizer executable.
	BinaryPath string

	// ModelPath is passed via the -d flag.
	ModelPath string

	// ProcessingInterval, in seconds, is passed via the -I flag.
	ProcessingInterval float64

	// SampleRate of the PCM fed to stdin. Default 16000.
	SampleRate int

	// ReadySentinel is the stderr substring signalling model readiness.
	ReadySentinel string

	// StopGrace bounds graceful termination. Default 5 s.
	StopGrace time.Duration
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.ReadySentinel == "" {
		c.ReadySentinel = DefaultReadySentinel
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
	if c.ProcessingInterval <= 0 {
		c.ProcessingInterval = 2.0
	}
}

// Listener receives decoded text fragments in arrival order.
type Listener func(text string)

// process is the handle the bridge drives. The real implementation wraps
// os/exec; tests substitute a fake.
type process interface {
	// Write sends audio bytes to the recognizer's stdin.
	Write(p []byte) (int, error)

	// CloseInput closes stdin to signal end of audio.
	CloseInput() error

	// Suspend and Resume map to SIGSTOP / SIGCONT where the platform
	// supports them.
	Suspend() error
	Resume() error

	// Terminate requests a graceful exit; Kill forces one.
	Terminate() error
	Kill() error

	// Wait blocks until the process exits.
	Wait() error

	// PID for logging.
	PID() int
}

// launcher starts the external process and returns its handle plus its
// stdout and stderr streams. Injectable for tests.
type launcher func(cfg Config) (process, io.Reader, io.Reader, error)

// Bridge manages one recognizer process. All exported methods are safe for
// concurrent use. A Bridge may be stopped and started repeatedly; each start
// launches a fresh process.
type Bridge struct {
	cfg    Config
	launch launcher

	running atomic.Bool
	warming atomic.Bool
	paused  atomic.Bool

	mu       sync.Mutex
	proc     process
	ready    chan struct{}
	writeBuf []byte

	lmu       sync.Mutex
	listeners []Listener
}

// New creates a Bridge that launches the configured external binary.
func New(cfg Config) *Bridge {
	cfg.applyDefaults()
	return &Bridge{cfg: cfg, launch: launchExec}
}

// launchExec starts the real subprocess in raw-stdin streaming mode.
func launchExec(cfg Config) (process, io.Reader, io.Reader, error) {
	cmd := exec.Command(cfg.BinaryPath,
		"-d", cfg.ModelPath,
		"--stdin",
		"-I", strconv.FormatFloat(cfg.ProcessingInterval, 'f', -1, 64),
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("recognizer: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("recognizer: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("recognizer: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, fmt.Errorf("recognizer: start %q: %w", cfg.BinaryPath, err)
	}
	return &execProcess{cmd: cmd, stdin: stdin}, stdout, stderr, nil
}

// OnTranscript registers a listener for decoded text fragments.
func (b *Bridge) OnTranscript(l Listener) {
	b.lmu.Lock()
	defer b.lmu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Start launches the recognizer process. Audio fed before the model-load
// sentinel appears on stderr is discarded. Starting a running bridge is a
// no-op.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running.Load() {
		return nil
	}

	proc, stdout, stderr, err := b.launch(b.cfg)
	if err != nil {
		return err
	}

	b.proc = proc
	b.ready = make(chan struct{})
	// Stale audio from before a stop must not leak into the new process.
	b.writeBuf = b.writeBuf[:0]
	b.warming.Store(true)
	b.paused.Store(false)
	b.running.Store(true)

	go b.readOutput(stdout)
	go b.readDiagnostics(stderr, b.ready)

	slog.Info("recognizer started, loading model",
		"pid", proc.PID(),
		"binary", b.cfg.BinaryPath,
		"interval", b.cfg.ProcessingInterval,
	)
	return nil
}

// WaitReady suspends the caller until the model-load sentinel has been
// observed or the context is cancelled. Returns [ErrNotRunning] when the
// bridge has not been started.
func (b *Bridge) WaitReady(ctx context.Context) error {
	b.mu.Lock()
	ready := b.ready
	b.mu.Unlock()

	if ready == nil {
		return ErrNotRunning
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("recognizer: waiting for model load: %w", ctx.Err())
	}
}

// Ready reports whether the current process is live and its model-load
// sentinel has been observed. False while stopped, so a readiness check
// correctly fails for the duration of the synthesis swap.
func (b *Bridge) Ready() bool {
	b.mu.Lock()
	ready := b.ready
	b.mu.Unlock()
	if ready == nil || !b.running.Load() {
		return false
	}
	select {
	case <-ready:
		return true
	default:
		return false
	}
}

// Running reports whether the process is live.
func (b *Bridge) Running() bool {
	return b.running.Load()
}

// Feed accepts target-rate float32 mono audio, converts it to 16-bit PCM,
// and accumulates it; the buffer is flushed to the process once it holds
// about one second of audio. Audio is silently discarded while the model is
// still loading or the bridge is not running.
func (b *Bridge) Feed(samples []float32) error {
	if !b.running.Load() || b.warming.Load() {
		return nil
	}

	b.mu.Lock()
	b.writeBuf = append(b.writeBuf, audio.FloatToPCM16(samples)...)
	// Writing to a suspended process would block once its pipe fills; hold
	// audio until Resume.
	if b.paused.Load() || len(b.writeBuf) < b.writeThreshold() {
		b.mu.Unlock()
		return nil
	}
	out, proc := b.takeBufferLocked()
	b.mu.Unlock()

	return b.write(proc, out)
}

// writeThreshold is one second of s16le audio.
func (b *Bridge) writeThreshold() int {
	return b.cfg.SampleRate * 2
}

// Flush writes any buffered audio immediately.
func (b *Bridge) Flush() error {
	b.mu.Lock()
	out, proc := b.takeBufferLocked()
	b.mu.Unlock()

	return b.write(proc, out)
}

// takeBufferLocked hands ownership of the accumulated audio to the caller.
// Returns nils when there is nothing to write or no process to write to.
func (b *Bridge) takeBufferLocked() ([]byte, process) {
	if len(b.writeBuf) == 0 || b.proc == nil || !b.running.Load() {
		return nil, nil
	}
	out := b.writeBuf
	b.writeBuf = nil
	return out, b.proc
}

// write sends out to the process's stdin. Runs outside b.mu: a wedged pipe
// must block only the feeder, never Stop.
func (b *Bridge) write(proc process, out []byte) error {
	if proc == nil {
		return nil
	}
	if _, err := proc.Write(out); err != nil {
		// A broken pipe means the process is gone; do not retry.
		b.running.Store(false)
		slog.Warn("recognizer stdin pipe broken", "err", err)
		return fmt.Errorf("recognizer: write audio: %w", err)
	}
	return nil
}

// Pause suspends the external process without terminating it, releasing
// shared compute. Audio fed while paused still accumulates in the write
// buffer; the process consumes it after Resume.
func (b *Bridge) Pause() error {
	b.mu.Lock()
	proc := b.proc
	b.mu.Unlock()

	if proc == nil || !b.running.Load() {
		return ErrNotRunning
	}
	b.paused.Store(true)
	if err := proc.Suspend(); err != nil {
		return fmt.Errorf("recognizer: suspend: %w", err)
	}
	slog.Info("recognizer paused")
	return nil
}

// Resume continues a paused process.
func (b *Bridge) Resume() error {
	b.mu.Lock()
	proc := b.proc
	b.mu.Unlock()

	if proc == nil || !b.running.Load() {
		return ErrNotRunning
	}
	if err := proc.Resume(); err != nil {
		return fmt.Errorf("recognizer: resume: %w", err)
	}
	b.paused.Store(false)
	slog.Info("recognizer resumed")
	return nil
}

// Paused reports whether the process is currently suspended.
func (b *Bridge) Paused() bool {
	return b.paused.Load()
}

// Stop closes the input stream, requests graceful termination, and
// force-kills after the configured grace period. Idempotent and safe to call
// when not running.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	proc := b.proc
	b.proc = nil
	// The readiness channel belongs to the terminated process; the next
	// Start makes a fresh one.
	b.ready = nil
	wasRunning := b.running.Swap(false)
	b.mu.Unlock()

	if proc == nil || !wasRunning {
		return nil
	}

	// A suspended process cannot handle termination; wake it first.
	if b.paused.Swap(false) {
		if err := proc.Resume(); err != nil {
			slog.Debug("resume before stop failed", "err", err)
		}
	}

	if err := proc.CloseInput(); err != nil {
		slog.Debug("close recognizer stdin failed", "err", err)
	}
	if err := proc.Terminate(); err != nil {
		slog.Debug("terminate recognizer failed", "err", err)
	}

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()

	select {
	case <-done:
	case <-time.After(b.cfg.StopGrace):
		slog.Warn("recognizer did not exit in time, killing", "grace", b.cfg.StopGrace)
		if err := proc.Kill(); err != nil {
			slog.Debug("kill recognizer failed", "err", err)
		}
		<-done
	}

	slog.Info("recognizer stopped")
	return nil
}

// readOutput drains decoded text from stdout and invokes the listeners with
// each fragment, in arrival order.
func (b *Bridge) readOutput(r io.Reader) {
	buf := make([]byte, readBufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			text := string(buf[:n])
			if len(text) > 0 {
				b.deliver(text)
			}
		}
		if err != nil {
			if b.running.Load() && !errors.Is(err, io.EOF) {
				slog.Warn("recognizer stdout read failed", "err", err)
			}
			return
		}
	}
}

// deliver invokes every listener with panic isolation so one bad listener
// cannot break delivery to the rest.
func (b *Bridge) deliver(text string) {
	b.lmu.Lock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.lmu.Unlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("transcript listener panicked", "panic", r)
				}
			}()
			l(text)
		}()
	}
}

// readDiagnostics drains stderr, watching for the model-load sentinel.
func (b *Bridge) readDiagnostics(r io.Reader, ready chan struct{}) {
	buf := make([]byte, readBufSize)
	var pending string
	signalled := false
	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending += string(buf[:n])
			if !signalled && strings.Contains(pending, b.cfg.ReadySentinel) {
				signalled = true
				b.warming.Store(false)
				close(ready)
				slog.Info("recognizer model loaded")
			}
			// Bound memory: only the tail can still complete a sentinel match.
			if keep := len(b.cfg.ReadySentinel) * 2; len(pending) > keep {
				pending = pending[len(pending)-keep:]
			}
		}
		if err != nil {
			return
		}
	}
}
