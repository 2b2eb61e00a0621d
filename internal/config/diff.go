package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; device, model,
// and provider changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AgentTuningChanged covers the confidence threshold and the silence
	// timeout, both applied between cycles. Trigger names and response
	// length are baked into the classifier and responder prompts at
	// construction, so changing them requires a restart.
	AgentTuningChanged bool

	// MeetingFileChanged means the brief path moved and should be
	// re-loaded before the next response.
	MeetingFileChanged bool
	NewMeetingFile     string

	// RestartRequired flags changes outside the hot-reloadable set.
	RestartRequired bool
}

// Empty reports whether the diff carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.AgentTuningChanged &&
		!d.MeetingFileChanged && !d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Agent.ConfidenceThreshold != new.Agent.ConfidenceThreshold ||
		old.Agent.SilenceTimeoutMS != new.Agent.SilenceTimeoutMS {
		d.AgentTuningChanged = true
	}

	if old.Meeting.ContextFile != new.Meeting.ContextFile {
		d.MeetingFileChanged = true
		d.NewMeetingFile = new.Meeting.ContextFile
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Audio != new.Audio ||
		old.Recognizer != new.Recognizer ||
		old.VAD != new.VAD ||
		old.Agent.Name != new.Agent.Name ||
		!slices.Equal(old.Agent.TriggerNames, new.Agent.TriggerNames) ||
		old.Agent.MaxResponseSentences != new.Agent.MaxResponseSentences ||
		old.Agent.ListenOnly != new.Agent.ListenOnly ||
		old.LLM != new.LLM ||
		old.TTS != new.TTS {
		d.RestartRequired = true
	}

	return d
}
