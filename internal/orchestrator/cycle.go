package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/standin-ai/standin/internal/brain"
	"github.com/standin-ai/standin/internal/observe"
	"github.com/standin-ai/standin/pkg/provider/tts"
)

// checkAndRespond runs one detect/respond sequence. The caller must have set
// the pending flag; it is cleared here on every exit path, including panics,
// so an error can never wedge the pipeline with a check permanently pending.
func (o *Orchestrator) checkAndRespond(ctx context.Context, force bool) {
	start := o.now()
	outcome := "error"

	defer func() {
		if r := recover(); r != nil {
			slog.Error("detect/respond cycle panicked", "panic", r)
			o.setState(StateIdle)
		}
		o.mu.Lock()
		o.pending = false
		o.mu.Unlock()
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordCycle(ctx, outcome, o.now().Sub(start).Seconds())
		}
	}()

	ctx, span := observe.StartSpan(ctx, "orchestrator.cycle")
	defer span.End()

	o.setState(StateDetecting)

	// Snapshot the hot-reloadable tunables so a concurrent config reload
	// cannot change them mid-cycle.
	o.mu.Lock()
	meetingContext := o.meetingContext
	gate := o.deps.Gate
	brief := o.deps.Brief
	o.mu.Unlock()

	recent := o.deps.Transcript.Recent(o.cfg.RecentWindow)
	if strings.TrimSpace(recent) == "" {
		o.setState(StateIdle)
		outcome = "empty"
		return
	}

	o.emitStatus("Classifying intent")
	t0 := o.now()
	intent := o.deps.Classifier.Classify(ctx, recent, meetingContext)
	intentDur := o.now().Sub(t0)
	o.setLatency(func(l *Latency) { l.Intent = intentDur })
	if o.deps.Metrics != nil {
		o.deps.Metrics.IntentDuration.Record(ctx, intentDur.Seconds())
	}
	o.emitStatus(fmt.Sprintf("Intent classified in %.1fs", intentDur.Seconds()))

	var decision brain.Decision
	if force {
		decision = brain.Decision{Action: brain.ActionRespond, Reason: "Forced", Intent: intent}
	} else {
		decision = gate.Decide(intent)
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordGateDecision(ctx, string(decision.Action))
	}
	o.emitDetection(decision)

	o.mu.Lock()
	muted := o.muted
	o.mu.Unlock()

	if decision.Action != brain.ActionRespond || muted {
		o.emitStatus("Ready, waiting for speech")
		o.setState(StateIdle)
		outcome = "silent"
		return
	}

	o.setState(StateThinking)
	o.emitStatus("Generating response")
	t0 = o.now()
	reply := o.deps.Responder.Generate(ctx, brain.GenerateInput{
		Summary:          intent.Summary,
		RecentTranscript: recent,
		MeetingContext:   meetingContext,
		Style:            brief.StyleText(),
		Avoid:            brief.AvoidText(),
	})
	genDur := o.now().Sub(t0)
	o.setLatency(func(l *Latency) { l.Generate = genDur })
	if o.deps.Metrics != nil {
		o.deps.Metrics.GenerateDuration.Record(ctx, genDur.Seconds())
	}
	o.emitResponse(reply)

	o.setState(StateSpeaking)
	err := o.speak(ctx, reply)
	o.emitLatency(o.Latency())
	if err != nil {
		slog.Error("speaking failed", "error", err)
		o.setState(StateIdle)
		return
	}

	o.emitStatus("Waiting for the colleague to speak")
	o.setState(StateIdle)
	outcome = "responded"
}

// speak synthesizes and plays reply. The recognizer is stopped first so it
// neither competes with synthesis for compute nor transcribes the agent's
// own voice, and is restarted and re-awaited on every exit path before the
// next cycle can trigger.
func (o *Orchestrator) speak(ctx context.Context, reply string) (err error) {
	swapStart := o.now()
	var swapElapsed time.Duration

	slog.Info("stopping recognizer before synthesis")
	o.emitStatus("Stopping recognizer for synthesis")
	if stopErr := o.deps.Recognizer.Stop(); stopErr != nil {
		slog.Warn("recognizer stop failed", "error", stopErr)
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecognizerReady.Add(ctx, -1)
	}

	defer func() {
		o.emitStatus("Restarting recognizer")
		restartStart := o.now()
		if startErr := o.deps.Recognizer.Start(); startErr != nil {
			err = fmt.Errorf("orchestrator: restart recognizer: %w", startErr)
		} else if readyErr := o.deps.Recognizer.WaitReady(ctx); readyErr != nil {
			err = fmt.Errorf("orchestrator: recognizer ready-wait: %w", readyErr)
		} else {
			if o.deps.Metrics != nil {
				o.deps.Metrics.RecognizerReady.Add(ctx, 1)
			}
			swapElapsed += o.now().Sub(restartStart)
			if o.deps.Metrics != nil {
				o.deps.Metrics.SwapDuration.Record(ctx, swapElapsed.Seconds())
			}
			slog.Info("recognizer swap complete", "elapsed", swapElapsed)
		}

		// Speech transcribed before this cycle began must not re-trigger.
		o.mu.Lock()
		o.lastChecked = o.lastSpeech
		o.mu.Unlock()
	}()

	if sleepErr := sleepCtx(ctx, o.cfg.SettleDelay); sleepErr != nil {
		return fmt.Errorf("orchestrator: settle wait: %w", sleepErr)
	}
	swapElapsed = o.now().Sub(swapStart)

	o.emitStatus("Synthesizing voice")
	t0 := o.now()
	var clip *tts.Clip
	synthErr := o.breaker.Do(func() error {
		c, sErr := o.deps.Synthesizer.Synthesize(ctx, tts.Request{
			Profile: o.cfg.VoiceProfile,
			Text:    reply,
		})
		if sErr != nil {
			return sErr
		}
		clip = c
		return nil
	})
	synthDur := o.now().Sub(t0)
	o.setLatency(func(l *Latency) { l.Synthesis = synthDur })
	if o.deps.Metrics != nil {
		o.deps.Metrics.SynthesisDuration.Record(ctx, synthDur.Seconds())
	}
	if synthErr != nil {
		return fmt.Errorf("orchestrator: synthesize: %w", synthErr)
	}
	slog.Info("synthesis done", "elapsed", synthDur,
		"samples", len(clip.Samples), "rate", clip.Rate)

	o.mu.Lock()
	muted := o.muted
	o.mu.Unlock()
	if muted {
		return nil
	}

	o.emitStatus("Speaking")
	if o.deps.Metrics != nil {
		o.deps.Metrics.SpeakingState.Add(ctx, 1)
	}
	t0 = o.now()
	playErr := o.deps.Player.Play(clip.Samples, clip.Rate)
	playDur := o.now().Sub(t0)
	o.setLatency(func(l *Latency) { l.Playback = playDur })
	if o.deps.Metrics != nil {
		o.deps.Metrics.PlaybackDuration.Record(ctx, playDur.Seconds())
		o.deps.Metrics.SpeakingState.Add(ctx, -1)
	}
	if playErr != nil {
		// Playback failure is not fatal to the cycle; the recognizer swap
		// still completes and the pipeline returns to IDLE.
		slog.Error("playback failed", "error", playErr)
	} else {
		slog.Info("playback complete", "elapsed", playDur)
	}
	return nil
}

func (o *Orchestrator) setLatency(update func(*Latency)) {
	o.mu.Lock()
	update(&o.latency)
	o.mu.Unlock()
}
