package orchestrator

import (
	"slices"
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"
)

// TokenBudget bounds how much history travels with each turn.
type TokenBudget struct {
	MaxHistoryTokens int
	MaxInputTokens   int
	ReservedTokens   int // system prompt and response headroom
}

// DefaultTokenBudget returns conservative defaults that fit every
// supported provider's context window.
func DefaultTokenBudget() TokenBudget {
	return TokenBudget{
		MaxHistoryTokens: 8000,
		MaxInputTokens:   2000,
		ReservedTokens:   4000,
	}
}

// estimateTokens approximates token count as runes/2, conservative for
// both Latin-script and CJK text.
func estimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 2
}

func estimateMessagesTokens(msgs []*ai.Message) int {
	total := 0
	for _, msg := range msgs {
		for _, part := range msg.Content {
			total += estimateTokens(part.Text)
		}
	}
	return total
}

// truncateHistory drops the oldest messages until msgs fits budget.
// A leading system message always survives; the newest messages are
// kept in preference to older ones.
func (o *Orchestrator) truncateHistory(msgs []*ai.Message, budget int) []*ai.Message {
	if len(msgs) == 0 {
		return msgs
	}
	current := estimateMessagesTokens(msgs)
	if current <= budget {
		return msgs
	}

	result := make([]*ai.Message, 0, len(msgs))
	startIdx := 0
	if msgs[0].Role == ai.RoleSystem {
		result = append(result, msgs[0])
		startIdx = 1
	}

	remaining := budget - estimateMessagesTokens(result)
	kept := make([]*ai.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= startIdx; i-- {
		msgTokens := estimateMessagesTokens(msgs[i : i+1])
		if remaining < msgTokens {
			break
		}
		kept = append(kept, msgs[i])
		remaining -= msgTokens
	}
	slices.Reverse(kept)
	result = append(result, kept...)

	o.logger.Debug("history truncated",
		"original_count", len(msgs),
		"kept_count", len(result),
		"estimated_tokens", current,
		"budget", budget)
	return result
}
