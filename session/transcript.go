package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitolab/gdflow/types"
)

// Transcript is the append-only utterance log of one session. Sequence
// numbers are assigned on append and are strictly increasing. The
// orchestrator is the only writer; readers (scoring, minutes, prompt
// building) may run concurrently.
type Transcript struct {
	mu         sync.RWMutex
	utterances []types.Utterance
	now        func() time.Time
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{now: time.Now}
}

// NewTranscriptAt creates a transcript with an injected time source, for tests.
func NewTranscriptAt(now func() time.Time) *Transcript {
	return &Transcript{now: now}
}

// Append records an utterance and returns the stored copy with its ID,
// sequence number and timestamp filled in.
func (t *Transcript) Append(speakerID, text string) types.Utterance {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := types.Utterance{
		ID:        uuid.New().String(),
		SpeakerID: speakerID,
		Text:      text,
		Sequence:  len(t.utterances),
		Timestamp: t.now(),
	}
	t.utterances = append(t.utterances, u)
	return u
}

// Len returns the number of utterances recorded so far.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.utterances)
}

// All returns a copy of every utterance in order.
func (t *Transcript) All() []types.Utterance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.Utterance, len(t.utterances))
	copy(out, t.utterances)
	return out
}

// Last returns the most recent utterance, if any.
func (t *Transcript) Last() (types.Utterance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.utterances) == 0 {
		return types.Utterance{}, false
	}
	return t.utterances[len(t.utterances)-1], true
}

// Window returns a copy of the last n utterances, oldest first.
func (t *Transcript) Window(n int) []types.Utterance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n > len(t.utterances) {
		n = len(t.utterances)
	}
	out := make([]types.Utterance, n)
	copy(out, t.utterances[len(t.utterances)-n:])
	return out
}

// BySpeaker returns every utterance by the given speaker, in order.
func (t *Transcript) BySpeaker(speakerID string) []types.Utterance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []types.Utterance
	for _, u := range t.utterances {
		if u.SpeakerID == speakerID {
			out = append(out, u)
		}
	}
	return out
}

// Render formats utterances as "speaker: text" lines for prompts and
// the post-session judge.
func Render(utterances []types.Utterance) string {
	var b strings.Builder
	for _, u := range utterances {
		fmt.Fprintf(&b, "%s: %s\n", u.SpeakerID, u.Text)
	}
	return b.String()
}
