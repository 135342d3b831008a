package llm

import (
	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator counts prompt tokens so the conversation window sent
// to providers stays inside a budget. cl100k_base over-counts slightly
// for Gemini models, which errs on the safe side.
type TokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTokenEstimator builds an estimator. Falls back to a rune-based
// heuristic when the encoding cannot be loaded (offline environments).
func NewTokenEstimator() *TokenEstimator {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TokenEstimator{}
	}
	return &TokenEstimator{enc: enc}
}

// Count estimates tokens in a string.
func (e *TokenEstimator) Count(text string) int {
	if e.enc == nil {
		// roughly one token per 2 runes for mixed ja/en text
		n := 0
		for range text {
			n++
		}
		return n/2 + 1
	}
	return len(e.enc.Encode(text, nil, nil))
}

// CountMessages estimates tokens across a message slice, with a small
// per-message overhead for role framing.
func (e *TokenEstimator) CountMessages(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += e.Count(m.Content) + 4
	}
	return total
}

// TrimToBudget drops the oldest messages until the window fits the
// token budget. The most recent message is always kept.
func (e *TokenEstimator) TrimToBudget(msgs []Message, budget int) []Message {
	for len(msgs) > 1 && e.CountMessages(msgs) > budget {
		msgs = msgs[1:]
	}
	return msgs
}
