package config_test

import (
	"testing"

	"github.com/standin-ai/standin/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Recognizer: config.RecognizerConfig{
			BinaryPath: "/bin/rec",
			ModelPath:  "/m.gguf",
		},
		Agent: config.AgentConfig{
			Name:                "Dhaval",
			TriggerNames:        []string{"Dhaval", "devall"},
			SilenceTimeoutMS:    2000,
			ConfidenceThreshold: 0.7,
		},
		LLM:     config.LLMConfig{Provider: "ollama", Model: "qwen3:8b"},
		TTS:     config.TTSConfig{BaseURL: "http://localhost:5001"},
		Meeting: config.MeetingConfig{ContextFile: "meeting.md"},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	if d := config.Diff(old, new); !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level change not detected: %+v", d)
	}
	if d.RestartRequired {
		t.Error("log level change must not require restart")
	}
}

func TestDiff_AgentTuning(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"confidence threshold", func(c *config.Config) { c.Agent.ConfidenceThreshold = 0.9 }},
		{"silence timeout", func(c *config.Config) { c.Agent.SilenceTimeoutMS = 3000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tc.mutate(new)

			d := config.Diff(old, new)
			if !d.AgentTuningChanged {
				t.Errorf("agent tuning change not detected: %+v", d)
			}
			if d.RestartRequired {
				t.Error("agent tuning must not require restart")
			}
		})
	}
}

func TestDiff_MeetingFile(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	new.Meeting.ContextFile = "standup.md"

	d := config.Diff(old, new)
	if !d.MeetingFileChanged || d.NewMeetingFile != "standup.md" {
		t.Errorf("meeting file change not detected: %+v", d)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"llm model", func(c *config.Config) { c.LLM.Model = "llama3" }},
		{"recognizer binary", func(c *config.Config) { c.Recognizer.BinaryPath = "/new/rec" }},
		{"capture device", func(c *config.Config) { c.Audio.CaptureDevice = "USB Mic" }},
		{"agent name", func(c *config.Config) { c.Agent.Name = "Priya" }},
		{"trigger names", func(c *config.Config) { c.Agent.TriggerNames = []string{"Dhaval"} }},
		{"max sentences", func(c *config.Config) { c.Agent.MaxResponseSentences = 5 }},
		{"tts url", func(c *config.Config) { c.TTS.BaseURL = "http://tts:9000" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tc.mutate(new)

			if d := config.Diff(old, new); !d.RestartRequired {
				t.Errorf("restart-required change not flagged: %+v", d)
			}
		})
	}
}
