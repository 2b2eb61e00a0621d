// Package vad implements utterance boundary detection over a stream of
// target-rate mono audio.
//
// The detector reslices incoming chunks into the fixed frame size required by
// the injected [Classifier], obtains a per-frame speech probability, and runs
// a two-state machine (speaking / not-speaking) with silence-timeout
// hysteresis. Listeners receive speech-start and speech-end events
// synchronously, in chronological order.
package vad

import (
	"fmt"
	"log/slog"
	"time"
)

// FrameSize is the number of samples per classifier frame (32 ms at 16 kHz).
// It is dictated by the classifier model, independent of the capture chunk
// size; the detector's internal buffer reslices input into these frames.
const FrameSize = 512

// Classifier produces a speech probability for one fixed-size frame.
// Implementations keep internal smoothing state; Reset clears it.
type Classifier interface {
	// Probability returns the speech probability (0.0–1.0) for a frame of
	// exactly [FrameSize] samples. Called synchronously in the pipeline loop;
	// it must not block.
	Probability(frame []float32) (float64, error)

	// Reset clears internal state for reuse across sessions.
	Reset()
}

// EventType tags an utterance boundary event.
type EventType int

const (
	// SpeechStart marks the transition from silence to speech.
	SpeechStart EventType = iota

	// SpeechEnd marks the end of an utterance after the silence timeout.
	SpeechEnd
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	if t == SpeechEnd {
		return "speech-end"
	}
	return "speech-start"
}

// Event is an utterance boundary with its timestamp. Duration is set only for
// [SpeechEnd] and spans from the matching speech-start.
type Event struct {
	Type     EventType
	Time     time.Time
	Duration time.Duration
}

// Listener receives boundary events. Listeners are invoked synchronously in
// registration order; a panicking listener is recovered and logged and never
// prevents state updates or delivery to later listeners.
type Listener func(Event)

// Config holds detector tuning.
type Config struct {
	// SpeechThreshold is the probability at or above which a frame counts as
	// speech. Default 0.5.
	SpeechThreshold float64

	// SilenceTimeout is how long probability must stay below the threshold
	// before speech-end fires. Default 1.5 s.
	SilenceTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.SpeechThreshold == 0 {
		c.SpeechThreshold = 0.5
	}
	if c.SilenceTimeout == 0 {
		c.SilenceTimeout = 1500 * time.Millisecond
	}
}

// Detector is the stateful speech/silence classifier. It is not safe for
// concurrent use; feed it from a single goroutine.
type Detector struct {
	cfg        Config
	classifier Classifier
	now        func() time.Time

	listeners []Listener

	buf          []float32
	speaking     bool
	speechStart  time.Time
	silenceStart time.Time
	haveSilence  bool
}

// New creates a Detector over the given classifier.
func New(classifier Classifier, cfg Config) *Detector {
	cfg.applyDefaults()
	return &Detector{
		cfg:        cfg,
		classifier: classifier,
		now:        time.Now,
	}
}

// OnEvent registers a listener for boundary events.
func (d *Detector) OnEvent(l Listener) {
	d.listeners = append(d.listeners, l)
}

// Speaking reports whether the detector is currently inside an utterance.
func (d *Detector) Speaking() bool {
	return d.speaking
}

// Reset clears all detector state, including the classifier's, for reuse
// across sessions.
func (d *Detector) Reset() {
	d.classifier.Reset()
	d.buf = d.buf[:0]
	d.speaking = false
	d.haveSilence = false
}

// Process consumes one chunk of target-rate mono audio and returns the
// boundary events it produced, in chronological order. Listeners are invoked
// synchronously for each event before Process returns.
func (d *Detector) Process(samples []float32) ([]Event, error) {
	d.buf = append(d.buf, samples...)

	var events []Event
	for len(d.buf) >= FrameSize {
		frame := d.buf[:FrameSize]
		d.buf = d.buf[FrameSize:]

		prob, err := d.classifier.Probability(frame)
		if err != nil {
			return events, fmt.Errorf("vad: classify frame: %w", err)
		}

		if ev, ok := d.step(prob); ok {
			events = append(events, ev)
			d.emit(ev)
		}
	}
	return events, nil
}

// step advances the state machine by one frame probability.
func (d *Detector) step(prob float64) (Event, bool) {
	now := d.now()

	if prob >= d.cfg.SpeechThreshold {
		// Speech cancels any pending silence timer.
		d.haveSilence = false
		if !d.speaking {
			d.speaking = true
			d.speechStart = now
			return Event{Type: SpeechStart, Time: now}, true
		}
		return Event{}, false
	}

	if !d.speaking {
		return Event{}, false
	}

	if !d.haveSilence {
		d.haveSilence = true
		d.silenceStart = now
		return Event{}, false
	}

	if now.Sub(d.silenceStart) >= d.cfg.SilenceTimeout {
		d.speaking = false
		d.haveSilence = false
		return Event{
			Type:     SpeechEnd,
			Time:     now,
			Duration: now.Sub(d.speechStart),
		}, true
	}
	return Event{}, false
}

// emit delivers ev to all listeners with per-listener panic isolation.
func (d *Detector) emit(ev Event) {
	for _, l := range d.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("vad listener panicked", "event", ev.Type, "panic", r)
				}
			}()
			l(ev)
		}()
	}
}
