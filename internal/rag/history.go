package rag

import (
	"unicode/utf8"

	"github.com/xxxsen/docqa/internal/model"
)

// EstimateTokens approximates a token count as one token per four
// characters, rounded up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// TruncateHistory keeps the newest messages that fit both the token budget
// and the message cap. Messages are never split, and the result is in
// chronological order. msgs must be chronological.
func TruncateHistory(msgs []model.Message, tokenBudget int, maxMessages int) []model.Message {
	if tokenBudget <= 0 || maxMessages <= 0 || len(msgs) == 0 {
		return nil
	}
	used := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		if len(msgs)-i > maxMessages {
			break
		}
		cost := EstimateTokens(msgs[i].Content)
		if used+cost > tokenBudget {
			break
		}
		used += cost
		start = i
	}
	out := make([]model.Message, len(msgs)-start)
	copy(out, msgs[start:])
	return out
}
