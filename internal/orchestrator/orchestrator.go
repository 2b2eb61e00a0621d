// Package orchestrator implements the state machine that coordinates the
// standin pipeline: it consumes capture chunks, feeds the recognizer, watches
// for silence after new speech, and when a check triggers runs the
// detect → decide → generate → synthesize → play sequence.
//
// The recognizer and the speech synthesizer contend for the same compute
// resource, and an active recognizer would transcribe the agent's own voice.
// Both problems are solved the same way: the recognizer is fully stopped
// before synthesis and unconditionally restarted afterward. That swap is
// strictly sequential and its cost is paid once per spoken response.
//
// All exported methods are safe for concurrent use.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/standin-ai/standin/internal/brain"
	"github.com/standin-ai/standin/internal/observe"
	"github.com/standin-ai/standin/internal/recognizer"
	"github.com/standin-ai/standin/internal/resilience"
	"github.com/standin-ai/standin/internal/transcript"
	"github.com/standin-ai/standin/internal/vad"
	"github.com/standin-ai/standin/pkg/audio"
	"github.com/standin-ai/standin/pkg/audio/device"
	"github.com/standin-ai/standin/pkg/provider/tts"
)

// State identifies the pipeline's current activity. Exactly one state is
// active at a time; all mutation goes through the transition function so that
// MUTED can suppress every other transition while it holds.
type State string

const (
	// StateIdle means nothing is pending.
	StateIdle State = "IDLE"

	// StateListening means new speech has been observed and no check is
	// pending yet.
	StateListening State = "LISTENING"

	// StateDetecting means an intent check is in flight.
	StateDetecting State = "DETECTING"

	// StateThinking means response generation is in flight.
	StateThinking State = "THINKING"

	// StateSpeaking means synthesis or playback is in flight.
	StateSpeaking State = "SPEAKING"

	// StateMuted is the override state: capture and recognition continue,
	// but no response path is taken and no other transition may occur.
	StateMuted State = "MUTED"
)

const (
	defaultSilenceThreshold = 2 * time.Second
	defaultRecentWindow     = 60 * time.Second
	defaultSettleDelay      = 2 * time.Second
)

// AudioSource delivers capture chunks. *capture.Engine satisfies it.
type AudioSource interface {
	// Chunks returns the channel of target-rate mono chunks.
	Chunks() <-chan audio.Chunk
}

// Recognizer is the slice of the recognizer bridge the orchestrator drives.
// *recognizer.Bridge satisfies it.
type Recognizer interface {
	Start() error
	WaitReady(ctx context.Context) error
	Stop() error
	Feed(samples []float32) error
	OnTranscript(l recognizer.Listener)
}

// IntentClassifier decides whether recent speech warrants a reply.
// *brain.Classifier satisfies it.
type IntentClassifier interface {
	Classify(ctx context.Context, transcript, meetingContext string) brain.Result
}

// ResponseGenerator produces the spoken reply text. *brain.Responder
// satisfies it.
type ResponseGenerator interface {
	Generate(ctx context.Context, in brain.GenerateInput) string
}

// Latency holds per-stage durations for the most recent response cycle.
type Latency struct {
	Intent    time.Duration
	Generate  time.Duration
	Synthesis time.Duration
	Playback  time.Duration
}

// Config holds orchestrator tuning. Zero values take defaults.
type Config struct {
	// SilenceThreshold is how long after the last transcript arrival a
	// check triggers. Default 2 s.
	SilenceThreshold time.Duration

	// RecentWindow bounds how much transcript history is handed to the
	// intent classifier and the response generator. Default 60 s.
	RecentWindow time.Duration

	// SettleDelay is the fixed wait between stopping the recognizer and
	// requesting synthesis, giving the recognizer time to release shared
	// compute. Default 2 s.
	SettleDelay time.Duration

	// VoiceProfile is the synthesis voice profile id. Empty lets the
	// provider auto-detect one.
	VoiceProfile string

	// ListenOnly disables the response path entirely: the pipeline
	// captures and transcribes but never checks intent or speaks.
	ListenOnly bool
}

func (c *Config) applyDefaults() {
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = defaultSilenceThreshold
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = defaultRecentWindow
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
}

// Deps bundles the collaborators an Orchestrator drives. All fields except
// Brief and Metrics are required.
type Deps struct {
	Source      AudioSource
	Recognizer  Recognizer
	Transcript  *transcript.Buffer
	Classifier  IntentClassifier
	Responder   ResponseGenerator
	Gate        *brain.Gate
	Synthesizer tts.Provider
	Player      device.Player

	// Brief is the meeting context handed to the classifier and the
	// responder. Nil means no context.
	Brief *brain.Brief

	// Boundary is an optional utterance-boundary detector run over the
	// chunk stream as a cross-check on the transcript-timestamp silence
	// trigger. Its events feed the status stream only.
	Boundary *vad.Detector

	// Metrics is optional; nil disables instrumentation.
	Metrics *observe.Metrics
}

// validate checks that every collaborator the configuration calls for is
// present. Listen-only mode never enters the response path, so the response
// collaborators may be nil there.
func (d *Deps) validate(listenOnly bool) error {
	var errs []error
	if d.Source == nil {
		errs = append(errs, errors.New("orchestrator: nil audio source"))
	}
	if d.Recognizer == nil {
		errs = append(errs, errors.New("orchestrator: nil recognizer"))
	}
	if d.Transcript == nil {
		errs = append(errs, errors.New("orchestrator: nil transcript buffer"))
	}
	if listenOnly {
		return errors.Join(errs...)
	}
	if d.Classifier == nil {
		errs = append(errs, errors.New("orchestrator: nil classifier"))
	}
	if d.Responder == nil {
		errs = append(errs, errors.New("orchestrator: nil responder"))
	}
	if d.Gate == nil {
		errs = append(errs, errors.New("orchestrator: nil gate"))
	}
	if d.Synthesizer == nil {
		errs = append(errs, errors.New("orchestrator: nil synthesizer"))
	}
	if d.Player == nil {
		errs = append(errs, errors.New("orchestrator: nil player"))
	}
	return errors.Join(errs...)
}

// Option configures an Orchestrator during construction.
type Option func(*Orchestrator)

// WithClock replaces the wall clock. For tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithBreaker replaces the circuit breaker wrapped around synthesis.
func WithBreaker(b *resilience.Breaker) Option {
	return func(o *Orchestrator) { o.breaker = b }
}

// Orchestrator is the central coordinator. Create with [New], then call
// [Orchestrator.Run] to drive the main loop.
type Orchestrator struct {
	cfg     Config
	deps    Deps
	breaker *resilience.Breaker
	now     func() time.Time

	mu          sync.Mutex
	state       State
	muted       bool
	pending     bool
	lastSpeech  time.Time
	lastChecked time.Time
	latency     Latency
	// meetingContext is the brief pre-formatted for LLM consumption.
	// Guarded by mu alongside deps.Gate and deps.Brief: all three can be
	// swapped by a config reload between cycles.
	meetingContext string

	obsMu        sync.Mutex
	onState      []func(State)
	onTranscript []func(string)
	onDetection  []func(brain.Decision)
	onResponse   []func(string)
	onLatency    []func(Latency)
	onStatus     []func(string)
}

// New creates an Orchestrator and wires itself as a transcript listener on
// the recognizer.
func New(deps Deps, cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := deps.validate(cfg.ListenOnly); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	brief := deps.Brief
	if brief == nil {
		brief = &brain.Brief{}
		deps.Brief = brief
	}

	o := &Orchestrator{
		cfg:            cfg,
		deps:           deps,
		breaker:        resilience.NewBreaker(resilience.BreakerConfig{Name: "synthesis"}),
		now:            time.Now,
		meetingContext: brief.Format(),
		state:          StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.deps.Transcript.StartSession()
	deps.Recognizer.OnTranscript(o.onRecognizedText)
	return o, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SetSilenceThreshold adjusts how long silence must follow new speech before
// a check triggers. Applied on the next trigger evaluation; values <= 0 are
// ignored.
func (o *Orchestrator) SetSilenceThreshold(d time.Duration) {
	if d <= 0 {
		return
	}
	o.mu.Lock()
	o.cfg.SilenceThreshold = d
	o.mu.Unlock()
	slog.Info("silence threshold updated", "threshold", d)
}

// SetGate swaps the response gate. Applied on the next cycle; a cycle already
// in flight keeps the gate it started with.
func (o *Orchestrator) SetGate(g *brain.Gate) {
	if g == nil {
		return
	}
	o.mu.Lock()
	o.deps.Gate = g
	o.mu.Unlock()
	slog.Info("response gate updated", "threshold", g.AutoThreshold)
}

// SetBrief swaps the meeting brief handed to the classifier and responder.
// Applied on the next cycle. Nil clears the meeting context.
func (o *Orchestrator) SetBrief(b *brain.Brief) {
	if b == nil {
		b = &brain.Brief{}
	}
	o.mu.Lock()
	o.deps.Brief = b
	o.meetingContext = b.Format()
	o.mu.Unlock()
	slog.Info("meeting brief reloaded")
}

// Muted reports whether the pipeline is muted.
func (o *Orchestrator) Muted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// Latency returns per-stage durations of the most recent response cycle.
func (o *Orchestrator) Latency() Latency {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latency
}

// Run drives the main loop: it consumes capture chunks, feeds them to the
// recognizer, and triggers an intent check when silence follows new speech.
// Run blocks until ctx is cancelled or the source channel closes.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.emitStatus("All systems ready, waiting for the colleague to speak")
	o.mu.Lock()
	threshold := o.cfg.SilenceThreshold
	o.mu.Unlock()
	slog.Info("orchestrator running",
		"silence_threshold", threshold,
		"listen_only", o.cfg.ListenOnly)

	chunks := o.deps.Source.Chunks()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return nil
			}
			if err := o.deps.Recognizer.Feed(chunk.Samples); err != nil {
				slog.Warn("feeding recognizer failed", "error", err)
			}
			o.crossCheck(chunk.Samples)
			o.maybeTrigger(ctx)
		}
	}
}

// crossCheck runs the optional boundary detector over a chunk. The detector
// only informs the status stream; the silence trigger stays driven by
// transcript timestamps.
func (o *Orchestrator) crossCheck(samples []float32) {
	if o.deps.Boundary == nil {
		return
	}
	events, err := o.deps.Boundary.Process(samples)
	if err != nil {
		slog.Warn("boundary detection failed", "error", err)
		return
	}
	for _, ev := range events {
		switch ev.Type {
		case vad.SpeechStart:
			o.emitStatus("Speech energy detected")
		case vad.SpeechEnd:
			slog.Debug("utterance boundary", "duration", ev.Duration)
		}
	}
}

// onRecognizedText is the recognizer transcript listener: it appends the
// fragment to the buffer, records the speech timestamp, and moves
// IDLE → LISTENING. The recognizer separates utterances with bare newlines;
// those separators are not speech and must not re-arm the silence trigger.
func (o *Orchestrator) onRecognizedText(text string) {
	segments := o.deps.Transcript.Append(text)

	if strings.TrimSpace(text) != "" {
		o.mu.Lock()
		o.lastSpeech = o.now()
		toListening := o.state == StateIdle
		o.mu.Unlock()

		if toListening {
			o.setState(StateListening)
		}
	}
	if o.deps.Metrics != nil && len(segments) > 0 {
		o.deps.Metrics.TranscriptSegments.Add(context.Background(), int64(len(segments)))
	}
	o.emitTranscript(text)
}

// maybeTrigger starts a detect/respond sequence when all four conditions
// hold: new speech since the last check, silence past the threshold, no
// check pending, and state IDLE or LISTENING. The pending flag is set and
// the last-checked timestamp advanced before the sequence is spawned, so a
// silence window is never evaluated twice and sequences never overlap.
func (o *Orchestrator) maybeTrigger(ctx context.Context) {
	o.mu.Lock()
	if o.cfg.ListenOnly || o.pending {
		o.mu.Unlock()
		return
	}
	if o.state != StateIdle && o.state != StateListening {
		o.mu.Unlock()
		return
	}
	if o.lastSpeech.IsZero() || !o.lastSpeech.After(o.lastChecked) {
		o.mu.Unlock()
		return
	}
	silence := o.now().Sub(o.lastSpeech)
	if silence < o.cfg.SilenceThreshold {
		o.mu.Unlock()
		return
	}
	o.pending = true
	o.lastChecked = o.lastSpeech
	o.mu.Unlock()

	slog.Info("silence after new speech, checking intent", "silence", silence)
	o.emitStatus("Silence detected, analyzing intent")
	go o.checkAndRespond(ctx, false)
}

// ToggleMute flips the mute override and returns the new value. Entering
// mute stops any active playback and force-sets MUTED; leaving mute returns
// to IDLE.
func (o *Orchestrator) ToggleMute() bool {
	o.mu.Lock()
	o.muted = !o.muted
	muted := o.muted
	o.mu.Unlock()

	if muted {
		if o.deps.Player != nil {
			o.deps.Player.Stop()
		}
		o.forceState(StateMuted)
		slog.Info("muted")
	} else {
		o.forceState(StateIdle)
		slog.Info("unmuted")
	}
	return muted
}

// ForceRespond initiates a check immediately, bypassing the silence and
// new-speech gating. It is a no-op while a sequence is already in flight,
// while muted, or in listen-only mode.
func (o *Orchestrator) ForceRespond(ctx context.Context) {
	o.mu.Lock()
	if o.cfg.ListenOnly || o.muted || o.pending ||
		o.state == StateThinking || o.state == StateSpeaking {
		o.mu.Unlock()
		return
	}
	o.pending = true
	o.mu.Unlock()

	slog.Info("forced response check")
	go o.checkAndRespond(ctx, true)
}

// SkipResponse stops any in-progress playback and forces the state back to
// IDLE.
func (o *Orchestrator) SkipResponse() {
	if o.deps.Player != nil {
		o.deps.Player.Stop()
	}
	o.setState(StateIdle)
	slog.Info("response skipped")
}

// setState is the transition function. While muted, every transition other
// than to MUTED itself is suppressed.
func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	if o.muted && s != StateMuted {
		o.mu.Unlock()
		return
	}
	old := o.state
	o.state = s
	o.mu.Unlock()

	if old != s {
		slog.Debug("state transition", "from", old, "to", s)
		o.emitState(s)
	}
}

// forceState bypasses the mute suppression. Only mute/unmute uses it.
func (o *Orchestrator) forceState(s State) {
	o.mu.Lock()
	old := o.state
	o.state = s
	o.mu.Unlock()

	if old != s {
		o.emitState(s)
	}
}

// sleepCtx waits d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
