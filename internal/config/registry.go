package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/standin-ai/standin/pkg/provider/llm"
	"github.com/standin-ai/standin/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// DefaultTTSProvider is used when tts.provider is left empty.
const DefaultTTSProvider = "voicebox"

// Registry maps provider names to their constructor functions. The main
// package registers the real adapters at startup; tests register fakes.
// Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]func(LLMConfig) (llm.Provider, error)
	tts map[string]func(TTSConfig) (tts.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm: make(map[string]func(LLMConfig) (llm.Provider, error)),
		tts: make(map[string]func(TTSConfig) (tts.Provider, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(LLMConfig) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterTTS registers a synthesis provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(TTSConfig) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// CreateLLM builds the LLM provider selected by cfg.Provider.
func (r *Registry) CreateLLM(cfg LLMConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm %q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateTTS builds the synthesis provider selected by cfg.Provider,
// defaulting to [DefaultTTSProvider] when the name is empty.
func (r *Registry) CreateTTS(cfg TTSConfig) (tts.Provider, error) {
	name := cfg.Provider
	if name == "" {
		name = DefaultTTSProvider
	}
	r.mu.RLock()
	factory, ok := r.tts[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts %q", ErrProviderNotRegistered, name)
	}
	return factory(cfg)
}
