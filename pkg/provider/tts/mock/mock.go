// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/standin-ai/standin/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider. Set the response
// fields before use; SynthesizeCalls records every request in order.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by Synthesize. May be nil.
	Clip *tts.Clip

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// Profiles is returned by ListProfiles.
	Profiles []string

	// ListErr, if non-nil, is returned as the error from ListProfiles.
	ListErr error

	// SynthesizeCalls records every Synthesize request in order.
	SynthesizeCalls []tts.Request
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(_ context.Context, req tts.Request) (*tts.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, req)
	return p.Clip, p.SynthesizeErr
}

// ListProfiles implements tts.Provider.
func (p *Provider) ListProfiles(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Profiles, p.ListErr
}

// Calls returns a snapshot of recorded Synthesize requests.
func (p *Provider) Calls() []tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.Request, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}
