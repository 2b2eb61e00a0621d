package brain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/standin-ai/standin/pkg/provider/llm"
)

// Urgency qualifies how quickly a response is expected.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyCanWait   Urgency = "can_wait"
	UrgencyFYIOnly   Urgency = "fyi_only"
)

// Result is the outcome of one intent classification.
type Result struct {
	// NeedsResponse reports whether the last utterance expects a verbal
	// reply from the principal.
	NeedsResponse bool

	// Confidence is the classifier's confidence in NeedsResponse, 0.0-1.0.
	Confidence float64

	// Summary is a short statement of what to respond to.
	Summary string

	// Urgency qualifies how quickly the response is expected.
	Urgency Urgency
}

// ClassifierConfig holds intent classifier settings.
type ClassifierConfig struct {
	// TriggerNames are the names the principal may be addressed by; the
	// first is used as the principal's name in prompts.
	TriggerNames []string

	// Temperature for the classification call. Default 0.1 — the task is a
	// structured judgement, not creative writing.
	Temperature float64
}

// Classifier decides whether the last utterance in a 1-on-1 call needs a
// verbal response. It never fails: every error path degrades to a
// conservative result that favours responding with reduced confidence.
type Classifier struct {
	provider    llm.Provider
	userName    string
	triggers    *TriggerMatcher
	temperature float64
}

// NewClassifier creates a Classifier backed by the given language model.
func NewClassifier(provider llm.Provider, cfg ClassifierConfig) *Classifier {
	userName := "the user"
	if len(cfg.TriggerNames) > 0 && strings.TrimSpace(cfg.TriggerNames[0]) != "" {
		userName = cfg.TriggerNames[0]
	}
	temp := cfg.Temperature
	if temp <= 0 {
		temp = 0.1
	}
	return &Classifier{
		provider:    provider,
		userName:    userName,
		triggers:    NewTriggerMatcher(cfg.TriggerNames),
		temperature: temp,
	}
}

// Classify judges whether transcript needs a response from the principal.
// meetingContext, when non-empty, is included in the prompt.
func (c *Classifier) Classify(ctx context.Context, transcript, meetingContext string) Result {
	slog.Info("running intent classification", "transcript_len", len(transcript))

	userMsg := "Transcript:\n" + transcript
	if name, score, ok := c.triggers.Match(transcript); ok {
		slog.Debug("trigger name detected in transcript", "name", name, "score", score)
		userMsg += fmt.Sprintf("\n\nNote: the speaker appears to address %s by name.", name)
	}

	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: c.systemPrompt(meetingContext),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: userMsg},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		slog.Error("intent classification failed", "err", err)
		return Result{
			NeedsResponse: true,
			Confidence:    0.5,
			Summary:       "Classification failed",
			Urgency:       UrgencyCanWait,
		}
	}

	return parseIntent(resp.Content)
}

func (c *Classifier) systemPrompt(meetingContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You decide if the last thing said in a 2-person call needs a verbal response from %s.\n\n", c.userName)
	b.WriteString(`This is a natural 1-on-1 conversation. Think about what a real person would reply to.

needs_response = true:
- Questions: "How are you?", "What's the status?", "Can you confirm?"
- Requests: "Let me know", "Please share", "Walk me through"
- Goodbyes and sign-offs: "Have a good evening", "Talk to you soon", "Take care" — always say goodbye back
- Greetings: "Good morning", "Hey, how's it going?"
- Expecting a reply: speaker paused and is waiting

needs_response = false:
- Mid-sentence or still talking (hasn't finished their thought)
- Brief mid-conversation filler: "ok", "right", "uh huh", "got it", "I see"
`)
	if meetingContext != "" {
		fmt.Fprintf(&b, "\nContext: %s\n", meetingContext)
	}
	b.WriteString(`
Reply with ONLY valid JSON:
{"needs_response": true/false, "confidence": 0.0-1.0, "summary": "what to respond to"}`)
	return b.String()
}

// parseIntent extracts the classification from raw model output. The model
// is asked for bare JSON but routinely wraps it in prose or code fences, so
// the parser hunts for the outermost object and reads fields leniently,
// falling back to conservative defaults when they are absent or the object
// is missing entirely.
func parseIntent(raw string) Result {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		slog.Warn("no JSON in intent response", "raw", truncate(raw, 300))
		return Result{
			NeedsResponse: true,
			Confidence:    0.6,
			Summary:       "Could not parse intent",
			Urgency:       UrgencyCanWait,
		}
	}
	obj := raw[start : end+1]

	needs := true
	if v := gjson.Get(obj, "needs_response"); v.Exists() {
		needs = v.Bool()
	}
	confidence := 0.7
	if v := gjson.Get(obj, "confidence"); v.Exists() {
		confidence = v.Float()
	}
	summary := gjson.Get(obj, "summary").String()

	urgency := UrgencyFYIOnly
	if needs {
		urgency = UrgencyImmediate
	}
	return Result{
		NeedsResponse: needs,
		Confidence:    confidence,
		Summary:       summary,
		Urgency:       urgency,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
