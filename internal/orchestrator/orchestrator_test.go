package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/standin-ai/standin/internal/brain"
	"github.com/standin-ai/standin/internal/recognizer"
	"github.com/standin-ai/standin/internal/transcript"
	"github.com/standin-ai/standin/pkg/audio"
	"github.com/standin-ai/standin/pkg/provider/tts"
)

// eventLog records cross-component ordering so tests can assert the
// recognizer/synthesizer swap sequence.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) index(e string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, ev := range l.events {
		if ev == e {
			return i
		}
	}
	return -1
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeSource struct {
	ch chan audio.Chunk
}

func (s *fakeSource) Chunks() <-chan audio.Chunk { return s.ch }

// push delivers one 30 ms chunk, driving a trigger evaluation in Run.
func (s *fakeSource) push() {
	s.ch <- audio.Chunk{Samples: make([]float32, 480), Rate: 16000}
}

type fakeRecognizer struct {
	log *eventLog

	mu        sync.Mutex
	listeners []recognizer.Listener
	starts    int
	stops     int
	fed       int
}

func (r *fakeRecognizer) Start() error {
	r.mu.Lock()
	r.starts++
	r.mu.Unlock()
	r.log.add("recognizer.start")
	return nil
}

func (r *fakeRecognizer) WaitReady(_ context.Context) error {
	r.log.add("recognizer.ready")
	return nil
}

func (r *fakeRecognizer) Stop() error {
	r.mu.Lock()
	r.stops++
	r.mu.Unlock()
	r.log.add("recognizer.stop")
	return nil
}

func (r *fakeRecognizer) Feed(_ []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fed++
	return nil
}

func (r *fakeRecognizer) OnTranscript(l recognizer.Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// emit simulates decoded text arriving from the subprocess reader.
func (r *fakeRecognizer) emit(text string) {
	r.mu.Lock()
	ls := append([]recognizer.Listener(nil), r.listeners...)
	r.mu.Unlock()
	for _, l := range ls {
		l(text)
	}
}

func (r *fakeRecognizer) counts() (starts, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops
}

type fakeClassifier struct {
	mu       sync.Mutex
	result   brain.Result
	panicMsg string
	calls    int
}

func (c *fakeClassifier) Classify(_ context.Context, _, _ string) brain.Result {
	c.mu.Lock()
	c.calls++
	msg := c.panicMsg
	res := c.result
	c.mu.Unlock()
	if msg != "" {
		panic(msg)
	}
	return res
}

func (c *fakeClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeResponder struct {
	mu    sync.Mutex
	reply string
	calls int
	last  brain.GenerateInput
}

func (r *fakeResponder) Generate(_ context.Context, in brain.GenerateInput) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = in
	return r.reply
}

func (r *fakeResponder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeSynth struct {
	log *eventLog

	mu    sync.Mutex
	clip  *tts.Clip
	err   error
	calls int
}

func (s *fakeSynth) Synthesize(_ context.Context, _ tts.Request) (*tts.Clip, error) {
	s.log.add("synthesize")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.clip, nil
}

func (s *fakeSynth) ListProfiles(_ context.Context) ([]string, error) {
	return []string{"default"}, nil
}

func (s *fakeSynth) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type fakePlayer struct {
	log *eventLog

	mu     sync.Mutex
	played int
	stops  int
}

func (p *fakePlayer) Play(_ []float32, _ int) error {
	p.log.add("play")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played++
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakePlayer) counts() (played, stops int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played, p.stops
}

type harness struct {
	source     *fakeSource
	rec        *fakeRecognizer
	classifier *fakeClassifier
	responder  *fakeResponder
	synth      *fakeSynth
	player     *fakePlayer
	clock      *fakeClock
	log        *eventLog
	orch       *Orchestrator
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = 2 * time.Second
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = time.Millisecond
	}

	h := &harness{
		source: &fakeSource{ch: make(chan audio.Chunk, 64)},
		clock:  newFakeClock(),
		log:    &eventLog{},
	}
	h.rec = &fakeRecognizer{log: h.log}
	h.classifier = &fakeClassifier{result: brain.Result{
		NeedsResponse: true,
		Confidence:    0.9,
		Summary:       "Asking for a status update",
		Urgency:       brain.UrgencyImmediate,
	}}
	h.responder = &fakeResponder{reply: "The rollout is on track."}
	h.synth = &fakeSynth{log: h.log, clip: &tts.Clip{
		Samples:  make([]float32, 2205),
		Rate:     22050,
		Duration: 100 * time.Millisecond,
	}}
	h.player = &fakePlayer{log: h.log}

	orch, err := New(Deps{
		Source:      h.source,
		Recognizer:  h.rec,
		Transcript:  transcript.NewBuffer(),
		Classifier:  h.classifier,
		Responder:   h.responder,
		Gate:        brain.NewGate(0.7),
		Synthesizer: h.synth,
		Player:      h.player,
	}, cfg, WithClock(h.clock.Now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.orch = orch
	return h
}

// run starts the main loop and arranges its shutdown at test cleanup.
func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.orch.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// speakThenSilence simulates an utterance followed by a silence window long
// enough to trigger a check, then delivers a chunk to drive the evaluation.
func (h *harness) speakThenSilence(text string) {
	h.rec.emit(text)
	h.clock.Advance(3 * time.Second)
	h.source.push()
}

func (h *harness) pendingCheck() bool {
	h.orch.mu.Lock()
	defer h.orch.mu.Unlock()
	return h.orch.pending
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_ValidatesDeps(t *testing.T) {
	t.Parallel()

	if _, err := New(Deps{}, Config{}); err == nil {
		t.Fatal("expected error for empty deps")
	}
}

func TestRun_SilenceTriggersExactlyOneCycle(t *testing.T) {
	h := newHarness(t, Config{})
	h.run(t)

	h.speakThenSilence("Can you give an update on the rollout? ")

	waitFor(t, func() bool { p, _ := h.player.counts(); return p == 1 }, "playback")
	waitFor(t, func() bool {
		return h.orch.State() == StateIdle && !h.pendingCheck()
	}, "return to idle")

	// The swap sequence: stop before synthesis, restart and ready-wait
	// after playback.
	order := []string{"recognizer.stop", "synthesize", "play", "recognizer.start", "recognizer.ready"}
	for i := range len(order) - 1 {
		a, b := h.log.index(order[i]), h.log.index(order[i+1])
		if a < 0 || b < 0 || a > b {
			t.Fatalf("event %q (idx %d) must precede %q (idx %d)", order[i], a, order[i+1], b)
		}
	}

	// Further silence with no intervening speech must not re-trigger.
	h.clock.Advance(10 * time.Second)
	h.source.push()
	h.source.push()
	time.Sleep(30 * time.Millisecond)
	if got := h.classifier.callCount(); got != 1 {
		t.Fatalf("classifier calls = %d, want 1", got)
	}

	// New speech re-arms the trigger.
	h.speakThenSilence("And what about the budget? ")
	waitFor(t, func() bool { return h.classifier.callCount() == 2 }, "second cycle")
}

func TestRun_FeedsChunksToRecognizer(t *testing.T) {
	h := newHarness(t, Config{})
	h.run(t)

	for range 5 {
		h.source.push()
	}
	waitFor(t, func() bool {
		h.rec.mu.Lock()
		defer h.rec.mu.Unlock()
		return h.rec.fed == 5
	}, "chunks fed")
}

func TestRun_TranscriptArrivalMovesIdleToListening(t *testing.T) {
	h := newHarness(t, Config{})
	h.run(t)

	if got := h.orch.State(); got != StateIdle {
		t.Fatalf("initial state = %s, want IDLE", got)
	}
	h.rec.emit("Hello everyone. ")
	waitFor(t, func() bool { return h.orch.State() == StateListening }, "LISTENING")
}

func TestRun_SeparatorFragmentsDoNotRearmTrigger(t *testing.T) {
	h := newHarness(t, Config{})
	h.run(t)

	h.speakThenSilence("Can you give an update on the rollout? ")
	waitFor(t, func() bool {
		return h.classifier.callCount() == 1 && h.orch.State() == StateIdle && !h.pendingCheck()
	}, "first cycle")

	// The subprocess writes bare newlines between utterances. Those are not
	// speech: they must not leave IDLE and must not count as new speech, or
	// the same transcript would be evaluated twice.
	h.rec.emit(" \n")
	if got := h.orch.State(); got != StateIdle {
		t.Fatalf("state after separator = %s, want IDLE", got)
	}
	h.clock.Advance(5 * time.Second)
	h.source.push()
	h.source.push()
	time.Sleep(30 * time.Millisecond)
	if got := h.classifier.callCount(); got != 1 {
		t.Fatalf("classifier calls = %d, want 1", got)
	}
}

func TestCycle_GateSilentSkipsGeneration(t *testing.T) {
	h := newHarness(t, Config{})
	h.classifier.result = brain.Result{NeedsResponse: true, Confidence: 0.3, Summary: "Unclear"}
	h.run(t)

	h.speakThenSilence("Mumbling about something. ")

	waitFor(t, func() bool { return h.classifier.callCount() == 1 }, "classification")
	waitFor(t, func() bool {
		return h.orch.State() == StateIdle && !h.pendingCheck()
	}, "return to idle")

	if got := h.responder.callCount(); got != 0 {
		t.Fatalf("responder calls = %d, want 0", got)
	}
	if h.log.index("synthesize") != -1 {
		t.Fatal("synthesis must not run on a silent decision")
	}
}

func TestCycle_PanicResolvesToIdleAndClearsPending(t *testing.T) {
	h := newHarness(t, Config{})
	h.classifier.panicMsg = "classifier exploded"
	h.run(t)

	h.speakThenSilence("Is the migration done? ")

	waitFor(t, func() bool { return h.classifier.callCount() == 1 }, "classification attempt")
	waitFor(t, func() bool {
		return h.orch.State() == StateIdle && !h.pendingCheck()
	}, "recovery to idle")

	// Pipeline must not be wedged: the next utterance triggers normally.
	h.classifier.mu.Lock()
	h.classifier.panicMsg = ""
	h.classifier.mu.Unlock()

	h.speakThenSilence("Is it done now? ")
	waitFor(t, func() bool { p, _ := h.player.counts(); return p == 1 }, "recovered cycle")
}

func TestCycle_SynthesisFailureStillRestartsRecognizer(t *testing.T) {
	h := newHarness(t, Config{})
	h.synth.setErr(errors.New("voicebox down"))
	h.run(t)

	h.speakThenSilence("Could you summarize the plan? ")

	waitFor(t, func() bool {
		starts, stops := h.rec.counts()
		return stops == 1 && starts == 1
	}, "recognizer restart after failed synthesis")
	waitFor(t, func() bool {
		return h.orch.State() == StateIdle && !h.pendingCheck()
	}, "return to idle")

	if played, _ := h.player.counts(); played != 0 {
		t.Fatalf("playback ran despite synthesis failure")
	}

	// Recovery on the next utterance.
	h.synth.setErr(nil)
	h.speakThenSilence("Second try, could you summarize? ")
	waitFor(t, func() bool { p, _ := h.player.counts(); return p == 1 }, "recovered playback")
}

func TestMute_SuppressesTransitionsAndForce(t *testing.T) {
	h := newHarness(t, Config{})
	h.run(t)

	if !h.orch.ToggleMute() {
		t.Fatal("ToggleMute should report muted")
	}
	if got := h.orch.State(); got != StateMuted {
		t.Fatalf("state = %s, want MUTED", got)
	}
	if _, stops := h.player.counts(); stops != 1 {
		t.Fatal("entering mute must stop playback")
	}

	// Transcription continues but cannot change state.
	h.rec.emit("Anyone there? ")
	time.Sleep(10 * time.Millisecond)
	if got := h.orch.State(); got != StateMuted {
		t.Fatalf("state after transcript = %s, want MUTED", got)
	}

	// Force-respond is a no-op while muted.
	h.orch.ForceRespond(context.Background())
	time.Sleep(10 * time.Millisecond)
	if got := h.classifier.callCount(); got != 0 {
		t.Fatalf("classifier calls while muted = %d, want 0", got)
	}

	// Silence triggers are suppressed too.
	h.clock.Advance(5 * time.Second)
	h.source.push()
	time.Sleep(10 * time.Millisecond)
	if got := h.classifier.callCount(); got != 0 {
		t.Fatalf("classifier calls while muted = %d, want 0", got)
	}

	if h.orch.ToggleMute() {
		t.Fatal("second ToggleMute should report unmuted")
	}
	if got := h.orch.State(); got != StateIdle {
		t.Fatalf("state after unmute = %s, want IDLE", got)
	}
}

func TestForceRespond_BypassesGate(t *testing.T) {
	h := newHarness(t, Config{})
	h.classifier.result = brain.Result{NeedsResponse: false, Confidence: 0.1, Summary: "Nothing"}
	h.run(t)

	h.rec.emit("Low-key remark about lunch. ")
	waitFor(t, func() bool { return h.orch.State() == StateListening }, "LISTENING")

	h.orch.ForceRespond(context.Background())

	waitFor(t, func() bool { p, _ := h.player.counts(); return p == 1 }, "forced playback")
	if got := h.responder.callCount(); got != 1 {
		t.Fatalf("responder calls = %d, want 1", got)
	}
}

func TestForceRespond_EmptyTranscriptReturnsToIdle(t *testing.T) {
	h := newHarness(t, Config{})
	h.run(t)

	h.orch.ForceRespond(context.Background())

	waitFor(t, func() bool {
		return h.orch.State() == StateIdle && !h.pendingCheck()
	}, "return to idle")
	if got := h.classifier.callCount(); got != 0 {
		t.Fatalf("classifier calls = %d, want 0", got)
	}
}

func TestSkipResponse_StopsPlaybackAndForcesIdle(t *testing.T) {
	h := newHarness(t, Config{})
	h.run(t)

	h.rec.emit("Something worth hearing. ")
	waitFor(t, func() bool { return h.orch.State() == StateListening }, "LISTENING")

	h.orch.SkipResponse()

	if _, stops := h.player.counts(); stops != 1 {
		t.Fatal("skip must stop playback")
	}
	if got := h.orch.State(); got != StateIdle {
		t.Fatalf("state = %s, want IDLE", got)
	}
}

func TestListenOnly_NeverResponds(t *testing.T) {
	h := newHarness(t, Config{ListenOnly: true})
	h.run(t)

	h.speakThenSilence("Can someone give an update? ")
	h.orch.ForceRespond(context.Background())
	time.Sleep(20 * time.Millisecond)

	if got := h.classifier.callCount(); got != 0 {
		t.Fatalf("classifier calls = %d, want 0", got)
	}
}

func TestObservers_PanicIsolatedAndOrdered(t *testing.T) {
	h := newHarness(t, Config{})

	var mu sync.Mutex
	var seen []string
	h.orch.OnTranscript(func(string) { panic("bad observer") })
	h.orch.OnTranscript(func(text string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, text)
	})
	h.run(t)

	h.rec.emit("First fragment ")
	h.rec.emit("second fragment. ")

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, "observer delivery")

	mu.Lock()
	defer mu.Unlock()
	if seen[0] != "First fragment " || seen[1] != "second fragment. " {
		t.Fatalf("fragments out of order: %q", seen)
	}
}

func TestSetSilenceThreshold_AppliedToNextTrigger(t *testing.T) {
	h := newHarness(t, Config{SilenceThreshold: 30 * time.Second})
	h.run(t)

	// 3 s of silence is under the configured 30 s window.
	h.speakThenSilence("Can you give an update? ")
	time.Sleep(20 * time.Millisecond)
	if got := h.classifier.callCount(); got != 0 {
		t.Fatalf("classifier calls = %d, want 0", got)
	}

	// Tightening the window makes the same silence trigger.
	h.orch.SetSilenceThreshold(2 * time.Second)
	h.source.push()
	waitFor(t, func() bool { return h.classifier.callCount() == 1 }, "cycle after reload")
}

func TestSetGate_AppliedToNextCycle(t *testing.T) {
	h := newHarness(t, Config{})
	h.run(t)

	// Raise the bar above the classifier's 0.9 confidence.
	h.orch.SetGate(brain.NewGate(0.95))
	h.speakThenSilence("Could you weigh in? ")
	waitFor(t, func() bool { return h.classifier.callCount() == 1 }, "first cycle")
	waitFor(t, func() bool {
		return h.orch.State() == StateIdle && !h.pendingCheck()
	}, "return to idle")
	if played, _ := h.player.counts(); played != 0 {
		t.Fatal("playback ran despite raised threshold")
	}

	// Lower it back: the next cycle responds.
	h.orch.SetGate(brain.NewGate(0.5))
	h.speakThenSilence("Could you weigh in again? ")
	waitFor(t, func() bool { p, _ := h.player.counts(); return p == 1 }, "playback after reload")
}

func TestSetBrief_FeedsNextGeneration(t *testing.T) {
	h := newHarness(t, Config{})
	h.run(t)

	h.orch.SetBrief(&brain.Brief{
		Title: "Q3 planning",
		Style: []string{"Short and direct"},
	})
	h.speakThenSilence("What is our Q3 focus? ")
	waitFor(t, func() bool { return h.responder.callCount() == 1 }, "generation")

	h.responder.mu.Lock()
	in := h.responder.last
	h.responder.mu.Unlock()
	if !strings.Contains(in.MeetingContext, "Q3 planning") {
		t.Fatalf("meeting context = %q", in.MeetingContext)
	}
	if in.Style != "Short and direct" {
		t.Fatalf("style = %q", in.Style)
	}
}

func TestCycle_ResponderReceivesRecentTranscript(t *testing.T) {
	h := newHarness(t, Config{})
	h.run(t)

	h.speakThenSilence("What is the launch date? ")
	waitFor(t, func() bool { return h.responder.callCount() == 1 }, "generation")

	h.responder.mu.Lock()
	in := h.responder.last
	h.responder.mu.Unlock()
	if !strings.Contains(in.RecentTranscript, "What is the launch date?") {
		t.Fatalf("recent transcript missing utterance: %q", in.RecentTranscript)
	}
	if in.Summary != "Asking for a status update" {
		t.Fatalf("summary = %q", in.Summary)
	}
}
