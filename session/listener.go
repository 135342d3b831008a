package session

import (
	"time"

	"github.com/hitolab/gdflow/types"
)

// EndReason records why a session ended.
type EndReason string

const (
	EndReasonTimeExpired EndReason = "time_expired"
	EndReasonStopped     EndReason = "stopped"
)

// Listener receives session lifecycle events. Callbacks run on the
// orchestrator goroutine and must return quickly; slow consumers should
// hand off to their own goroutine.
type Listener interface {
	OnSpeakerChanged(speakerID string)
	OnTranscriptAppended(u types.Utterance)
	OnRoleChanged(participantID string, role types.Role)
	OnRemainingTimeChanged(remaining time.Duration)
	// OnSessionEnded carries the final assessment; score is nil when
	// the session ended without one.
	OnSessionEnded(reason EndReason, score *types.FacilitationScore)
}

// NopListener implements Listener with no-ops. Embed it to implement
// only the callbacks you care about.
type NopListener struct{}

func (NopListener) OnSpeakerChanged(string) {}
func (NopListener) OnTranscriptAppended(types.Utterance) {}
func (NopListener) OnRoleChanged(string, types.Role) {}
func (NopListener) OnRemainingTimeChanged(time.Duration) {}
func (NopListener) OnSessionEnded(EndReason, *types.FacilitationScore) {}

// FanOut broadcasts every event to a fixed set of listeners in order.
type FanOut struct {
	listeners []Listener
}

// NewFanOut builds a broadcast listener. The listener set is fixed at
// construction; sessions do not gain observers mid-flight.
func NewFanOut(listeners ...Listener) *FanOut {
	return &FanOut{listeners: listeners}
}

func (f *FanOut) OnSpeakerChanged(speakerID string) {
	for _, l := range f.listeners {
		l.OnSpeakerChanged(speakerID)
	}
}

func (f *FanOut) OnTranscriptAppended(u types.Utterance) {
	for _, l := range f.listeners {
		l.OnTranscriptAppended(u)
	}
}

func (f *FanOut) OnRoleChanged(participantID string, role types.Role) {
	for _, l := range f.listeners {
		l.OnRoleChanged(participantID, role)
	}
}

func (f *FanOut) OnRemainingTimeChanged(remaining time.Duration) {
	for _, l := range f.listeners {
		l.OnRemainingTimeChanged(remaining)
	}
}

func (f *FanOut) OnSessionEnded(reason EndReason, score *types.FacilitationScore) {
	for _, l := range f.listeners {
		l.OnSessionEnded(reason, score)
	}
}
