package brain

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/standin-ai/standin/internal/resilience"
	"github.com/standin-ai/standin/pkg/provider/llm"
	llmmock "github.com/standin-ai/standin/pkg/provider/llm/mock"
)

func TestGenerate_ReturnsCleanedText(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "<think>they want the status</think>\"*clears throat* The rollout is on track (I hope).\"",
		},
	}
	r := NewResponder(p, ResponderConfig{UserName: "Sam"})

	got := r.Generate(context.Background(), GenerateInput{
		Summary:          "asked for status",
		RecentTranscript: "How is the rollout going?",
	})
	if got != "The rollout is on track ." {
		t.Fatalf("Generate = %q", got)
	}
}

func TestGenerate_EmptyAfterCleaningFallsBack(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "<think>hmm</think> *shrugs*"},
	}
	r := NewResponder(p, ResponderConfig{})

	if got := r.Generate(context.Background(), GenerateInput{Summary: "x"}); got != fallbackResponse {
		t.Fatalf("Generate = %q, want fallback", got)
	}
}

func TestGenerate_RetriesTransportThenSucceeds(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	p := &llmmock.Provider{
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if calls.Add(1) < 3 {
				return nil, fmt.Errorf("dial: %w", syscall.ECONNREFUSED)
			}
			return &llm.CompletionResponse{Content: "All good."}, nil
		},
	}
	r := NewResponder(p, ResponderConfig{
		Retry: resilience.RetryConfig{Attempts: 3, Backoff: time.Millisecond},
	})

	if got := r.Generate(context.Background(), GenerateInput{Summary: "x"}); got != "All good." {
		t.Fatalf("Generate = %q", got)
	}
	if calls.Load() != 3 {
		t.Fatalf("provider called %d times, want 3", calls.Load())
	}
}

func TestGenerate_ExhaustedRetriesFallBack(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	p := &llmmock.Provider{
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			calls.Add(1)
			return nil, fmt.Errorf("dial: %w", syscall.ECONNRESET)
		},
	}
	r := NewResponder(p, ResponderConfig{
		Retry: resilience.RetryConfig{Attempts: 2, Backoff: time.Millisecond},
	})

	if got := r.Generate(context.Background(), GenerateInput{Summary: "x"}); got != fallbackResponse {
		t.Fatalf("Generate = %q, want fallback", got)
	}
	if calls.Load() != 2 {
		t.Fatalf("provider called %d times, want 2", calls.Load())
	}
}

func TestGenerate_PromptCarriesBriefSections(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Fine."},
	}
	r := NewResponder(p, ResponderConfig{UserName: "Sam"})

	r.Generate(context.Background(), GenerateInput{
		Summary:          "asked about budget",
		RecentTranscript: "what about the budget?",
		MeetingContext:   "Meeting: Budget sync",
		Style:            "short and direct",
		Avoid:            "exact revenue numbers",
	})

	calls := p.Calls()
	sys := calls[0].Req.SystemPrompt
	for _, want := range []string{"Budget sync", "short and direct", "exact revenue numbers", "Sam"} {
		if !strings.Contains(sys, want) {
			t.Fatalf("system prompt missing %q", want)
		}
	}
	if !strings.Contains(calls[0].Req.Messages[0].Content, "what about the budget?") {
		t.Fatal("user prompt missing recent transcript")
	}
}

func TestCleanResponse(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, want string
	}{
		{`"Plain answer."`, "Plain answer."},
		{"Multi   space\n\ttext", "Multi space text"},
		{"*pauses* Right. (beat) Done.", "Right. Done."},
		{"`code` and #headers", "code and headers"},
	}
	for _, tc := range cases {
		if got := cleanResponse(tc.in); got != tc.want {
			t.Fatalf("cleanResponse(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
