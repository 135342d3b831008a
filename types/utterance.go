package types

import "time"

// Utterance is one spoken contribution. Immutable once appended to the
// transcript; Sequence is assigned by the transcript on append and is
// strictly increasing.
type Utterance struct {
	ID        string    `json:"id"`
	SpeakerID string    `json:"speaker_id"`
	Text      string    `json:"text"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// ReactionChainContext carries the recursion state of an automatic
// reaction chain. It is passed by value down the recursion; never share
// a chain context between goroutines or mutate one in place.
type ReactionChainContext struct {
	Depth           int    `json:"depth"`
	MaxDepth        int    `json:"max_depth"`
	OriginSpeakerID string `json:"origin_speaker_id"`
}

// NewChain returns the root context for a fresh (non-chain) utterance.
func NewChain(origin string, maxDepth int) ReactionChainContext {
	return ReactionChainContext{Depth: 0, MaxDepth: maxDepth, OriginSpeakerID: origin}
}

// Child derives the context for a reaction one level deeper.
func (c ReactionChainContext) Child(origin string) ReactionChainContext {
	return ReactionChainContext{Depth: c.Depth + 1, MaxDepth: c.MaxDepth, OriginSpeakerID: origin}
}

// Exhausted reports whether the chain may not recurse further.
func (c ReactionChainContext) Exhausted() bool { return c.Depth >= c.MaxDepth }

// IsChainReaction reports whether this utterance is itself an automatic
// reaction (depth > 0) rather than a fresh contribution.
func (c ReactionChainContext) IsChainReaction() bool { return c.Depth > 0 }
