// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the standin voice agent.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for standin.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	VAD        VADConfig        `yaml:"vad"`
	Agent      AgentConfig      `yaml:"agent"`
	LLM        LLMConfig        `yaml:"llm"`
	TTS        TTSConfig        `yaml:"tts"`
	Meeting    MeetingConfig    `yaml:"meeting"`
}

// ServerConfig holds settings for the HTTP control surface.
type ServerConfig struct {
	// ListenAddr is the TCP address the control server listens on
	// (e.g., "127.0.0.1:8080"). Empty disables the control server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig selects capture and playback devices.
type AudioConfig struct {
	// CaptureDevice is a substring matched against input device names.
	// Empty probes for LoopbackDevice and falls back to the default input.
	CaptureDevice string `yaml:"capture_device"`

	// LoopbackDevice is a substring matched against input device names when
	// CaptureDevice is empty, selecting a virtual loopback driver that
	// carries the meeting's system audio (e.g., "BlackHole 2ch").
	LoopbackDevice string `yaml:"loopback_device"`

	// PlaybackDevice is a substring matched against output device names.
	// Empty selects the default output.
	PlaybackDevice string `yaml:"playback_device"`

	// SampleRate is the pipeline rate in Hz fed to the recognizer.
	// Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// BlockSize is the number of target-rate samples per capture chunk.
	// Default 480 (30 ms at 16 kHz).
	BlockSize int `yaml:"block_size"`
}

// RecognizerConfig describes the external speech-recognizer subprocess.
type RecognizerConfig struct {
	// BinaryPath is the recognizer executable.
	BinaryPath string `yaml:"binary_path"`

	// ModelPath is the model file passed to the recognizer.
	ModelPath string `yaml:"model_path"`

	// ProcessingInterval is the decode interval in seconds passed to the
	// recognizer. 0 uses the recognizer's default.
	ProcessingInterval float64 `yaml:"processing_interval"`
}

// VADConfig tunes the utterance-boundary detector.
type VADConfig struct {
	// Enabled turns the boundary detector on. The silence trigger works
	// without it; events feed the status stream and speech timestamps.
	Enabled bool `yaml:"enabled"`

	// SpeechThreshold is the probability at or above which a frame counts
	// as speech. 0 uses the detector default.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// SilenceTimeoutMS is how long probability must stay below the
	// threshold before speech-end fires. 0 uses the detector default.
	SilenceTimeoutMS int `yaml:"silence_timeout_ms"`
}

// AgentConfig shapes when and how the agent speaks.
type AgentConfig struct {
	// Name is the person the agent stands in for, used in prompts and
	// response generation.
	Name string `yaml:"name"`

	// TriggerNames are names (and common mishearings) whose mention makes
	// an utterance more likely to warrant a response.
	TriggerNames []string `yaml:"trigger_names"`

	// SilenceTimeoutMS is how long after the last transcript arrival an
	// intent check triggers, in milliseconds. Default 2000.
	SilenceTimeoutMS int `yaml:"silence_timeout_ms"`

	// ConfidenceThreshold is the minimum intent confidence for an
	// automatic response, in [0, 1]. Default 0.7.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// MaxResponseSentences caps reply length. Default 3.
	MaxResponseSentences int `yaml:"max_response_sentences"`

	// ListenOnly disables the response path: capture and transcribe only.
	ListenOnly bool `yaml:"listen_only"`
}

// LLMConfig selects the language-model backend used for intent
// classification and response generation.
type LLMConfig struct {
	// Provider is the backend name (e.g., "ollama", "openai", "anthropic").
	Provider string `yaml:"provider"`

	// Model is the model identifier within the provider.
	Model string `yaml:"model"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against hosted providers. Unused for local ones.
	APIKey string `yaml:"api_key"`

	// Temperature is the sampling temperature for response generation.
	Temperature float64 `yaml:"temperature"`

	// IntentTemperature is the sampling temperature for intent
	// classification. Kept low for deterministic JSON output.
	IntentTemperature float64 `yaml:"intent_temperature"`

	// MaxTokens caps response generation length.
	MaxTokens int `yaml:"max_tokens"`
}

// TTSConfig points at the speech-synthesis service.
type TTSConfig struct {
	// Provider is the synthesis backend name. Empty means "voicebox".
	Provider string `yaml:"provider"`

	// BaseURL is the synthesis server address (e.g., "http://localhost:5001").
	BaseURL string `yaml:"base_url"`

	// VoiceProfileID selects the cloned voice. Empty auto-detects the
	// first profile the server offers.
	VoiceProfileID string `yaml:"voice_profile_id"`

	// Language is the synthesis language code (e.g., "en").
	Language string `yaml:"language"`
}

// MeetingConfig locates the meeting brief.
type MeetingConfig struct {
	// ContextFile is the path to the markdown meeting brief. A missing
	// file is tolerated; the agent runs without meeting context.
	ContextFile string `yaml:"context_file"`
}
