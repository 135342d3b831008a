package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitolab/gdflow/types"
)

type eventRecorder struct {
	NopListener
	mu       sync.Mutex
	appended []types.Utterance
	roles    []string
	times    []time.Duration
	ends     []EndReason
	scores   []*types.FacilitationScore
}

func (r *eventRecorder) OnTranscriptAppended(u types.Utterance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appended = append(r.appended, u)
}

func (r *eventRecorder) OnRoleChanged(id string, role types.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles = append(r.roles, id+":"+string(role))
}

func (r *eventRecorder) OnRemainingTimeChanged(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = append(r.times, d)
}

func (r *eventRecorder) OnSessionEnded(reason EndReason, score *types.FacilitationScore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends = append(r.ends, reason)
	r.scores = append(r.scores, score)
}

func TestSession_EventsFireOncePerChange(t *testing.T) {
	rec := &eventRecorder{}
	sess := New("テーマ", testRoster(2), 10*time.Minute, WithListener(rec))

	u := sess.Record("facilitator", "始めます")
	require.Len(t, rec.appended, 1)
	assert.Equal(t, u.ID, rec.appended[0].ID)

	assert.True(t, sess.ClaimRole(types.RoleRecorder, "persona-0"))
	assert.False(t, sess.ClaimRole(types.RoleRecorder, "persona-1"))
	assert.Equal(t, []string{"persona-0:recorder"}, rec.roles, "losing claims emit nothing")

	sess.StartClock()
	sess.StartClock() // second call is a no-op
	require.Len(t, rec.times, 1)
	assert.InDelta(t, (10 * time.Minute).Seconds(), rec.times[0].Seconds(), 1)

	final := types.NewFacilitationScore(types.ScoreMethodKeyword)
	sess.End(EndReasonTimeExpired, &final)
	assert.Equal(t, []EndReason{EndReasonTimeExpired}, rec.ends)
	require.Len(t, rec.scores, 1)
	assert.Equal(t, &final, rec.scores[0], "the final score rides the ended event")
}

func TestFanOut_BroadcastsInOrder(t *testing.T) {
	a, b := &eventRecorder{}, &eventRecorder{}
	f := NewFanOut(a, b)
	f.OnSessionEnded(EndReasonStopped, nil)
	assert.Equal(t, []EndReason{EndReasonStopped}, a.ends)
	assert.Equal(t, []EndReason{EndReasonStopped}, b.ends)
}
