package orchestrator

import (
	"log/slog"
	"slices"

	"github.com/standin-ai/standin/internal/brain"
)

// Observer registration. Handlers are invoked in registration order; a
// panicking handler is logged and isolated so it cannot take down the
// pipeline or starve later handlers.

// OnStateChange registers a handler invoked on every state transition.
func (o *Orchestrator) OnStateChange(fn func(State)) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	o.onState = append(o.onState, fn)
}

// OnTranscript registers a handler invoked with each transcript fragment in
// arrival order.
func (o *Orchestrator) OnTranscript(fn func(string)) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	o.onTranscript = append(o.onTranscript, fn)
}

// OnDetection registers a handler invoked with each gate decision.
func (o *Orchestrator) OnDetection(fn func(brain.Decision)) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	o.onDetection = append(o.onDetection, fn)
}

// OnResponse registers a handler invoked with each generated reply.
func (o *Orchestrator) OnResponse(fn func(string)) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	o.onResponse = append(o.onResponse, fn)
}

// OnLatency registers a handler invoked once per response cycle with the
// per-stage durations.
func (o *Orchestrator) OnLatency(fn func(Latency)) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	o.onLatency = append(o.onLatency, fn)
}

// OnStatus registers a handler for human-readable progress messages.
func (o *Orchestrator) OnStatus(fn func(string)) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	o.onStatus = append(o.onStatus, fn)
}

func (o *Orchestrator) emitState(s State) {
	for _, fn := range snapshot(&o.onState, &o.obsMu) {
		safeCall(func() { fn(s) })
	}
}

func (o *Orchestrator) emitTranscript(text string) {
	for _, fn := range snapshot(&o.onTranscript, &o.obsMu) {
		safeCall(func() { fn(text) })
	}
}

func (o *Orchestrator) emitDetection(d brain.Decision) {
	for _, fn := range snapshot(&o.onDetection, &o.obsMu) {
		safeCall(func() { fn(d) })
	}
}

func (o *Orchestrator) emitResponse(text string) {
	for _, fn := range snapshot(&o.onResponse, &o.obsMu) {
		safeCall(func() { fn(text) })
	}
}

func (o *Orchestrator) emitLatency(l Latency) {
	for _, fn := range snapshot(&o.onLatency, &o.obsMu) {
		safeCall(func() { fn(l) })
	}
}

func (o *Orchestrator) emitStatus(msg string) {
	for _, fn := range snapshot(&o.onStatus, &o.obsMu) {
		safeCall(func() { fn(msg) })
	}
}

func snapshot[T any](reg *[]T, mu interface{ Lock(); Unlock() }) []T {
	mu.Lock()
	defer mu.Unlock()
	return slices.Clone(*reg)
}

func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("observer panicked", "panic", r)
		}
	}()
	fn()
}
