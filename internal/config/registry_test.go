package config_test

import (
	"errors"
	"testing"

	"github.com/standin-ai/standin/internal/config"
	"github.com/standin-ai/standin/pkg/provider/llm"
	llmmock "github.com/standin-ai/standin/pkg/provider/llm/mock"
	"github.com/standin-ai/standin/pkg/provider/tts"
	ttsmock "github.com/standin-ai/standin/pkg/provider/tts/mock"
)

func TestRegistry_CreateLLM(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	r.RegisterLLM("ollama", func(cfg config.LLMConfig) (llm.Provider, error) {
		if cfg.Model != "qwen3:8b" {
			t.Errorf("factory received model %q", cfg.Model)
		}
		return &llmmock.Provider{}, nil
	})

	p, err := r.CreateLLM(config.LLMConfig{Provider: "ollama", Model: "qwen3:8b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("nil provider")
	}
}

func TestRegistry_UnregisteredLLM(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	_, err := r.CreateLLM(config.LLMConfig{Provider: "openai"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("want ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_TTSDefaultsToVoicebox(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	r.RegisterTTS(config.DefaultTTSProvider, func(cfg config.TTSConfig) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	p, err := r.CreateTTS(config.TTSConfig{BaseURL: "http://localhost:5001"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("nil provider")
	}
}

func TestRegistry_OverwriteWins(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	r.RegisterLLM("ollama", func(config.LLMConfig) (llm.Provider, error) {
		return nil, errors.New("old factory")
	})
	r.RegisterLLM("ollama", func(config.LLMConfig) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	if _, err := r.CreateLLM(config.LLMConfig{Provider: "ollama"}); err != nil {
		t.Fatalf("overwritten factory should win, got %v", err)
	}
}
