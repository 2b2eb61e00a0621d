// Package tts defines the Provider interface for speech-synthesis backends.
//
// A TTS provider wraps a synthesis service and turns a short piece of text
// into a playable audio clip. The agent speaks one response at a time, so
// the interface is request/response rather than streaming; the orchestrator
// owns the pacing around each clip (stopping the recognizer before synthesis
// and restarting it after playback).
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"time"
)

// Request carries one utterance to synthesise.
type Request struct {
	// Profile is the provider-specific voice profile identifier. An empty
	// value asks the provider to use its default or first available profile.
	Profile string

	// Text is the utterance to speak.
	Text string

	// Language is a BCP-47 language code (e.g., "en"). Empty means the
	// provider default.
	Language string
}

// Clip is a synthesised utterance as playable audio.
type Clip struct {
	// Samples is mono float32 audio in [-1, 1].
	Samples []float32

	// Rate is the sample rate of Samples.
	Rate int

	// Duration is the clip length as reported by the synthesis service.
	Duration time.Duration
}

// Provider is the abstraction over any speech-synthesis backend.
type Provider interface {
	// Synthesize turns req.Text into an audio clip. Returns an error if the
	// service is unreachable, the profile is unknown, or ctx is cancelled.
	Synthesize(ctx context.Context, req Request) (*Clip, error)

	// ListProfiles returns the voice profile identifiers the service
	// currently offers.
	ListProfiles(ctx context.Context) ([]string, error)
}
