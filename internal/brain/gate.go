// Package brain holds the decision layer of the pipeline: classifying
// whether the last stretch of conversation needs a spoken response,
// gating that classification on confidence, and drafting the reply.
package brain

import (
	"fmt"
	"log/slog"
)

// Action is the gate's verdict for one silence-triggered check.
type Action string

const (
	// ActionRespond means generate and speak a reply.
	ActionRespond Action = "respond"

	// ActionConfirm means ask the operator before speaking. Reserved for a
	// confirmation UI; the gate can emit it but the current pipeline treats
	// it like silence.
	ActionConfirm Action = "confirm"

	// ActionSilent means do nothing.
	ActionSilent Action = "silent"
)

// Decision pairs the chosen action with the reasoning and the classification
// it was computed from.
type Decision struct {
	Action Action
	Reason string
	Intent Result
}

// Gate decides whether to respond based on needs-response and confidence.
// Pure: no state beyond the threshold, no side effects beyond logging.
type Gate struct {
	// AutoThreshold is the minimum confidence for an automatic response.
	AutoThreshold float64
}

// NewGate returns a Gate with the given auto-respond threshold. Zero or
// negative thresholds default to 0.7.
func NewGate(autoThreshold float64) *Gate {
	if autoThreshold <= 0 {
		autoThreshold = 0.7
	}
	return &Gate{AutoThreshold: autoThreshold}
}

// Decide maps an intent classification to a Decision.
func (g *Gate) Decide(intent Result) Decision {
	if !intent.NeedsResponse {
		slog.Info("gate: silent, no response needed",
			"confidence", intent.Confidence,
			"summary", intent.Summary,
		)
		return Decision{Action: ActionSilent, Reason: "No response needed", Intent: intent}
	}

	if intent.Confidence >= g.AutoThreshold {
		slog.Info("gate: respond",
			"confidence", intent.Confidence,
			"summary", intent.Summary,
		)
		return Decision{
			Action: ActionRespond,
			Reason: fmt.Sprintf("Confident (%.0f%%)", intent.Confidence*100),
			Intent: intent,
		}
	}

	slog.Info("gate: silent, low confidence",
		"confidence", intent.Confidence,
		"summary", intent.Summary,
	)
	return Decision{
		Action: ActionSilent,
		Reason: fmt.Sprintf("Low confidence (%.0f%%)", intent.Confidence*100),
		Intent: intent,
	}
}
