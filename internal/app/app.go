// Package app wires all standin subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run starts them in dependency order and blocks on the pipeline,
// and Shutdown tears everything down.
//
// For testing, inject fake implementations via functional options
// (WithRecognizer, WithPlayer, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standin-ai/standin/internal/brain"
	"github.com/standin-ai/standin/internal/capture"
	"github.com/standin-ai/standin/internal/config"
	"github.com/standin-ai/standin/internal/control"
	"github.com/standin-ai/standin/internal/health"
	"github.com/standin-ai/standin/internal/observe"
	"github.com/standin-ai/standin/internal/orchestrator"
	"github.com/standin-ai/standin/internal/recognizer"
	"github.com/standin-ai/standin/internal/transcript"
	"github.com/standin-ai/standin/internal/vad"
	"github.com/standin-ai/standin/pkg/audio/device"
	"github.com/standin-ai/standin/pkg/provider/llm"
	"github.com/standin-ai/standin/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Populated by main.go
// via the config registry. LLM and TTS may be nil only in listen-only mode.
type Providers struct {
	LLM   llm.Provider
	TTS   tts.Provider
	Audio device.Provider
}

// Recognizer is the bridge surface the app drives: the orchestrator slice
// plus the readiness check the health endpoint reports on.
// *recognizer.Bridge satisfies it.
type Recognizer interface {
	orchestrator.Recognizer
	Ready() bool
}

// App owns all subsystem lifetimes for one standin session.
type App struct {
	cfg       *config.Config
	providers Providers

	metrics *observe.Metrics
	capture *capture.Engine
	rec     Recognizer
	player  device.Player
	orch    *orchestrator.Orchestrator
	control *control.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRecognizer injects a recognizer instead of launching a subprocess
// bridge from config.
func WithRecognizer(r Recognizer) Option {
	return func(a *App) { a.rec = r }
}

// WithPlayer injects a playback device instead of opening one on the
// configured output device.
func WithPlayer(p device.Player) Option {
	return func(a *App) { a.player = p }
}

// WithMetrics injects a metrics set instead of using the default meter
// provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
//
// New connects everything but starts nothing: subprocesses, audio streams,
// and the control server come up in Run.
func New(cfg *config.Config, providers Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.checkProviders(); err != nil {
		return nil, err
	}

	// ── 1. Observability ─────────────────────────────────────────────────
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 2. Capture engine ────────────────────────────────────────────────
	a.capture = capture.New(providers.Audio, capture.Config{
		DeviceName:   cfg.Audio.CaptureDevice,
		LoopbackName: cfg.Audio.LoopbackDevice,
		TargetRate:   cfg.Audio.SampleRate,
		ChunkSize:    cfg.Audio.BlockSize,
	})

	// ── 3. Recognizer bridge ─────────────────────────────────────────────
	if a.rec == nil {
		a.rec = recognizer.New(recognizer.Config{
			BinaryPath:         cfg.Recognizer.BinaryPath,
			ModelPath:          cfg.Recognizer.ModelPath,
			ProcessingInterval: cfg.Recognizer.ProcessingInterval,
			SampleRate:         cfg.Audio.SampleRate,
		})
	}

	// ── 4. Playback ──────────────────────────────────────────────────────
	if err := a.initPlayer(); err != nil {
		return nil, fmt.Errorf("app: init playback: %w", err)
	}

	// ── 5. Orchestrator ──────────────────────────────────────────────────
	if err := a.initOrchestrator(); err != nil {
		return nil, fmt.Errorf("app: init orchestrator: %w", err)
	}

	// ── 6. Control surface ───────────────────────────────────────────────
	a.initControl()

	return a, nil
}

// checkProviders validates the provider slots against the configured mode.
func (a *App) checkProviders() error {
	var errs []error
	if a.providers.Audio == nil {
		errs = append(errs, errors.New("app: audio provider is required"))
	}
	if !a.cfg.Agent.ListenOnly {
		if a.providers.LLM == nil {
			errs = append(errs, errors.New("app: llm provider is required unless listen-only"))
		}
		if a.providers.TTS == nil {
			errs = append(errs, errors.New("app: tts provider is required unless listen-only"))
		}
	}
	return errors.Join(errs...)
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initPlayer opens the configured output device. Listen-only mode never
// plays audio, so no device is opened there.
func (a *App) initPlayer() error {
	if a.player != nil || a.cfg.Agent.ListenOnly {
		return nil
	}
	info, err := a.providers.Audio.Resolve(a.cfg.Audio.PlaybackDevice, device.Output)
	if err != nil {
		return fmt.Errorf("resolve output device %q: %w", a.cfg.Audio.PlaybackDevice, err)
	}
	player, err := a.providers.Audio.OpenPlayer(info)
	if err != nil {
		return fmt.Errorf("open player on %q: %w", info.Name, err)
	}
	slog.Info("playback device ready", "device", info.Name)
	a.player = player
	return nil
}

// initOrchestrator builds the brain components and the state machine over
// them.
func (a *App) initOrchestrator() error {
	agent := a.cfg.Agent

	var boundary *vad.Detector
	if a.cfg.VAD.Enabled {
		boundary = vad.New(vad.NewEnergyClassifier(), vad.Config{
			SpeechThreshold: a.cfg.VAD.SpeechThreshold,
			SilenceTimeout:  time.Duration(a.cfg.VAD.SilenceTimeoutMS) * time.Millisecond,
		})
	}

	deps := orchestrator.Deps{
		Source:     a.capture,
		Recognizer: a.rec,
		Transcript: transcript.NewBuffer(),
		Boundary:   boundary,
		Metrics:    a.metrics,
	}
	if !agent.ListenOnly {
		deps.Classifier = brain.NewClassifier(a.providers.LLM, brain.ClassifierConfig{
			TriggerNames: agent.TriggerNames,
			Temperature:  a.cfg.LLM.IntentTemperature,
		})
		deps.Responder = brain.NewResponder(a.providers.LLM, brain.ResponderConfig{
			UserName:     agent.Name,
			Temperature:  a.cfg.LLM.Temperature,
			MaxTokens:    a.cfg.LLM.MaxTokens,
			MaxSentences: agent.MaxResponseSentences,
		})
		deps.Gate = brain.NewGate(agent.ConfidenceThreshold)
		deps.Synthesizer = a.providers.TTS
		deps.Player = a.player
	}
	if a.cfg.Meeting.ContextFile != "" {
		deps.Brief = brain.LoadBrief(a.cfg.Meeting.ContextFile)
	}

	orch, err := orchestrator.New(deps, orchestrator.Config{
		SilenceThreshold: time.Duration(agent.SilenceTimeoutMS) * time.Millisecond,
		VoiceProfile:     a.cfg.TTS.VoiceProfileID,
		ListenOnly:       agent.ListenOnly,
	})
	if err != nil {
		return err
	}
	a.orch = orch
	return nil
}

// initControl builds the HTTP control surface when a listen address is
// configured.
func (a *App) initControl() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}
	checkers := []health.Checker{
		health.CaptureRunning(a.capture.Running),
		health.RecognizerReady(a.rec.Ready),
	}
	if a.providers.TTS != nil {
		checkers = append(checkers, health.SynthesisReachable(a.providers.TTS.ListProfiles))
	}
	a.control = control.New(control.Config{
		ListenAddr: a.cfg.Server.ListenAddr,
	}, a.orch, health.New(checkers...), a.metrics)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the subsystems in dependency order and blocks until ctx is
// cancelled or a subsystem fails. The recognizer comes up first since model
// loading dominates startup time; capture starts only once the recognizer is
// ready so no audio is fed into a half-initialised process.
func (a *App) Run(ctx context.Context) error {
	slog.Info("starting recognizer", "binary", a.cfg.Recognizer.BinaryPath)
	if err := a.rec.Start(); err != nil {
		return fmt.Errorf("app: start recognizer: %w", err)
	}
	a.closers = append(a.closers, a.rec.Stop)

	slog.Info("waiting for recognizer model load")
	if err := a.rec.WaitReady(ctx); err != nil {
		return fmt.Errorf("app: recognizer ready-wait: %w", err)
	}

	if err := a.capture.Start(); err != nil {
		return fmt.Errorf("app: start capture: %w", err)
	}
	a.closers = append(a.closers, a.capture.Stop)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.orch.Run(ctx) })
	g.Go(func() error { return a.sampleDrops(ctx) })
	if a.control != nil {
		g.Go(func() error { return a.control.Run(ctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sampleDrops periodically folds the capture engine's drop counter into the
// dropped-chunks metric. Sustained drops mean the consumer is stalling.
func (a *App) sampleDrops(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			total := a.capture.Dropped()
			if delta := total - last; delta > 0 {
				a.metrics.DroppedChunks.Add(ctx, delta)
				slog.Warn("capture chunks dropped", "count", delta)
			}
			last = total
		}
	}
}

// Orchestrator exposes the pipeline for interactive control (mute, force,
// skip) and event subscription.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orch
}

// ApplyConfigChange applies the hot-reloadable parts of a config diff to the
// running pipeline: agent tuning between cycles and a re-read of the meeting
// brief. Restart-required changes are the caller's concern.
func (a *App) ApplyConfigChange(new *config.Config, diff config.ConfigDiff) {
	if diff.AgentTuningChanged {
		a.orch.SetSilenceThreshold(time.Duration(new.Agent.SilenceTimeoutMS) * time.Millisecond)
		if !a.cfg.Agent.ListenOnly {
			a.orch.SetGate(brain.NewGate(new.Agent.ConfidenceThreshold))
		}
	}
	if diff.MeetingFileChanged {
		if diff.NewMeetingFile == "" {
			a.orch.SetBrief(nil)
		} else {
			a.orch.SetBrief(brain.LoadBrief(diff.NewMeetingFile))
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-start order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.player != nil {
			a.player.Stop()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
