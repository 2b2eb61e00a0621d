package brain

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/standin-ai/standin/internal/resilience"
	"github.com/standin-ai/standin/pkg/provider/llm"
)

// fallbackResponse is spoken when generation fails or produces nothing
// usable. Deferring beats guessing in a live call.
const fallbackResponse = "Let me get back to you on that."

// ResponderConfig holds response generator settings.
type ResponderConfig struct {
	// UserName is the principal the responder speaks as.
	UserName string

	// Temperature for the generation call. Default 0.7.
	Temperature float64

	// MaxTokens caps response length. Default 200.
	MaxTokens int

	// MaxSentences is the sentence limit stated in the prompt. Default 3.
	MaxSentences int

	// Retry bounds transport-level retries of the model call.
	Retry resilience.RetryConfig
}

// Responder drafts spoken replies on behalf of the principal.
type Responder struct {
	provider llm.Provider
	cfg      ResponderConfig
}

// NewResponder creates a Responder backed by the given language model.
func NewResponder(provider llm.Provider, cfg ResponderConfig) *Responder {
	if cfg.UserName == "" {
		cfg.UserName = "the user"
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if cfg.MaxSentences <= 0 {
		cfg.MaxSentences = 3
	}
	if cfg.Retry.Name == "" {
		cfg.Retry.Name = "responder"
	}
	return &Responder{provider: provider, cfg: cfg}
}

// GenerateInput carries the material a response is drafted from.
type GenerateInput struct {
	// Summary is what is being asked, from the intent classifier.
	Summary string

	// RecentTranscript is the last couple of minutes of conversation.
	RecentTranscript string

	// MeetingContext is the formatted meeting brief, may be empty.
	MeetingContext string

	// Style describes how the principal communicates, may be empty.
	Style string

	// Avoid lists things the principal must not say, may be empty.
	Avoid string
}

// Generate produces spoken-style response text ready for synthesis. It
// never fails: transport errors are retried with bounded attempts and any
// terminal failure degrades to a safe deferral phrase.
func (r *Responder) Generate(ctx context.Context, in GenerateInput) string {
	userPrompt := fmt.Sprintf(`Recent conversation:
%s

Question directed at %s:
%s

Generate %s's response (%d sentences max, spoken aloud in a meeting):`,
		in.RecentTranscript, r.cfg.UserName, in.Summary, r.cfg.UserName, r.cfg.MaxSentences)

	start := time.Now()
	var resp *llm.CompletionResponse
	err := resilience.Retry(ctx, r.cfg.Retry, func(ctx context.Context) error {
		var callErr error
		resp, callErr = r.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: r.systemPrompt(in),
			Messages: []llm.Message{
				{Role: llm.RoleUser, Content: userPrompt},
			},
			Temperature: r.cfg.Temperature,
			MaxTokens:   r.cfg.MaxTokens,
		})
		return callErr
	})
	if err != nil {
		slog.Error("response generation failed", "err", err)
		return fallbackResponse
	}

	text := cleanResponse(resp.Content)
	slog.Info("response generated",
		"elapsed", time.Since(start),
		"chars", len(text),
	)
	if text == "" {
		slog.Warn("model returned empty response after cleaning", "raw", truncate(resp.Content, 200))
		return fallbackResponse
	}
	return text
}

func (r *Responder) systemPrompt(in GenerateInput) string {
	parts := []string{
		fmt.Sprintf("You are generating a spoken response on behalf of %s in a live meeting.", r.cfg.UserName),
		fmt.Sprintf("Respond as if you ARE %s speaking aloud. Use first person.", r.cfg.UserName),
		"",
		"IMPORTANT: The transcript comes from a small ASR model and may contain misheard words,",
		"phonetic errors, or garbled text. Use the meeting context and conversation flow to infer",
		"what was actually said. Respond to the intended meaning, not the literal transcription.",
		"",
		"Rules:",
		fmt.Sprintf("- Maximum %d sentences", r.cfg.MaxSentences),
		"- Sound natural and conversational — this will be spoken aloud",
		"- Be direct — start with the answer, then brief reasoning",
		"- If unsure about specifics, say 'Let me get back to you on that' rather than guessing",
		"- Never use markdown, bullet points, or formatting — plain spoken text only",
		"- Don't start with 'Sure,' or 'Great question' — just answer directly",
	}
	if in.MeetingContext != "" {
		parts = append(parts, "", "Meeting context:", in.MeetingContext)
	}
	if in.Style != "" {
		parts = append(parts, "", "Communication style:", in.Style)
	}
	if in.Avoid != "" {
		parts = append(parts, "", "Things to NEVER say:", in.Avoid)
	}
	return strings.Join(parts, "\n")
}

var (
	thinkTagRe   = regexp.MustCompile(`(?s)<think>.*?</think>`)
	stageDirRe   = regexp.MustCompile(`\*[^*]+\*`)
	parentheRe   = regexp.MustCompile(`\([^)]+\)`)
	markdownRe   = regexp.MustCompile("[*_#`]")
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// cleanResponse strips model artifacts that must not reach the synthesizer:
// thinking tags, wrapping quotes, stage directions, markdown.
func cleanResponse(text string) string {
	text = thinkTagRe.ReplaceAllString(text, "")
	text = strings.Trim(text, `"'`)
	text = stageDirRe.ReplaceAllString(text, "")
	text = parentheRe.ReplaceAllString(text, "")
	text = markdownRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
