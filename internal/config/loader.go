package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidLLMProviders lists known LLM backend names. Used by [Validate] to
// warn about likely typos; unknown names are not fatal.
var ValidLLMProviders = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral",
	"groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown fields are rejected so typos surface at startup instead of being
// silently ignored.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("audio.block_size %d must not be negative", cfg.Audio.BlockSize))
	}

	if cfg.Recognizer.BinaryPath == "" {
		errs = append(errs, errors.New("recognizer.binary_path is required"))
	}
	if cfg.Recognizer.ModelPath == "" {
		errs = append(errs, errors.New("recognizer.model_path is required"))
	}
	if cfg.Recognizer.ProcessingInterval < 0 {
		errs = append(errs, fmt.Errorf("recognizer.processing_interval %.2f must not be negative", cfg.Recognizer.ProcessingInterval))
	}

	if cfg.VAD.SpeechThreshold < 0 || cfg.VAD.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.speech_threshold %.2f is out of range [0, 1]", cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.SilenceTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("vad.silence_timeout_ms %d must not be negative", cfg.VAD.SilenceTimeoutMS))
	}

	if cfg.Agent.Name == "" {
		errs = append(errs, errors.New("agent.name is required"))
	}
	if cfg.Agent.ConfidenceThreshold < 0 || cfg.Agent.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("agent.confidence_threshold %.2f is out of range [0, 1]", cfg.Agent.ConfidenceThreshold))
	}
	if cfg.Agent.SilenceTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("agent.silence_timeout_ms %d must not be negative", cfg.Agent.SilenceTimeoutMS))
	}
	if cfg.Agent.MaxResponseSentences < 0 {
		errs = append(errs, fmt.Errorf("agent.max_response_sentences %d must not be negative", cfg.Agent.MaxResponseSentences))
	}
	if len(cfg.Agent.TriggerNames) == 0 {
		slog.Warn("agent.trigger_names is empty; name-mention matching is disabled")
	}

	if cfg.LLM.Provider == "" {
		if !cfg.Agent.ListenOnly {
			errs = append(errs, errors.New("llm.provider is required unless agent.listen_only is set"))
		}
	} else if !slices.Contains(ValidLLMProviders, cfg.LLM.Provider) {
		slog.Warn("unknown LLM provider name, may be a typo",
			"provider", cfg.LLM.Provider,
			"known", ValidLLMProviders,
		)
	}
	if cfg.LLM.Provider != "" && cfg.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required when llm.provider is set"))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", cfg.LLM.Temperature))
	}
	if cfg.LLM.IntentTemperature < 0 || cfg.LLM.IntentTemperature > 2 {
		errs = append(errs, fmt.Errorf("llm.intent_temperature %.2f is out of range [0, 2]", cfg.LLM.IntentTemperature))
	}
	if cfg.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens %d must not be negative", cfg.LLM.MaxTokens))
	}

	if cfg.TTS.BaseURL == "" && !cfg.Agent.ListenOnly {
		errs = append(errs, errors.New("tts.base_url is required unless agent.listen_only is set"))
	}

	if cfg.Meeting.ContextFile == "" {
		slog.Warn("meeting.context_file is empty; the agent will run without meeting context")
	}

	return errors.Join(errs...)
}
