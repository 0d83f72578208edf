// Package moderation classifies inbound chat messages before they reach the
// model. A flagged verdict stops the turn: the orchestrator emits a canned
// refusal chosen from the category, never echoing the blocked content.
package moderation

import (
	"context"
	"errors"
)

// Level is the ordinal severity of an infraction, consumed by the external
// infraction handler to weight repeat offenses.
type Level int

const (
	// L1 covers mild toxicity; repeat offenses escalate to cooldowns.
	L1 Level = iota + 1
	// L2 covers drugs, hate speech, and self-harm signals.
	L2
	// L3 covers severe violence and exploitation; immediate escalation.
	L3
)

func (l Level) String() string {
	switch l {
	case L1:
		return "L1"
	case L2:
		return "L2"
	case L3:
		return "L3"
	default:
		return "unknown"
	}
}

// ErrMissingCategory is returned when constructing a flagged verdict with no
// category; such a verdict is invalid.
var ErrMissingCategory = errors.New("flagged verdict requires a category")

// Verdict is the result of classifying a single message.
type Verdict struct {
	Flagged  bool   `json:"flagged"`
	Category string `json:"category,omitempty"`
	Level    Level  `json:"level,omitempty"`
}

// Clean returns the verdict for an unflagged message.
func Clean() Verdict {
	return Verdict{}
}

// Flag constructs a flagged verdict. A flagged verdict with an empty
// category is invalid.
func Flag(category string, level Level) (Verdict, error) {
	if category == "" {
		return Verdict{}, ErrMissingCategory
	}
	return Verdict{Flagged: true, Category: category, Level: level}, nil
}

// Gate classifies a single inbound message. Classification always completes
// before any model call is made; it never runs concurrently with one.
type Gate interface {
	Classify(ctx context.Context, message string) (Verdict, error)
}

// Refusal returns the user-facing refusal text for a blocked category. The
// text is chosen independently of the blocked content so nothing disallowed
// is echoed back.
func Refusal(category string) string {
	switch category {
	case "self_harm":
		return "I can't help with that, but you don't have to go through this alone — please consider reaching out to someone you trust or a support line."
	case "violence_severe":
		return "I can't help with requests involving serious harm to people."
	case "illegal_drugs":
		return "I can't help with buying, selling, or producing illegal drugs."
	case "hate_speech":
		return "I won't engage with content that attacks people for who they are."
	default:
		return "This message was blocked by our safety guidelines, so I can't respond to it."
	}
}
