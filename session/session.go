// Package session holds the shared state of one group discussion: the
// participant roster, the append-only transcript, the session clock and
// the lifecycle event stream. It has no opinion about turn-taking; the
// discussion package drives it.
package session

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hitolab/gdflow/types"
)

// Session is the shared state of one discussion. All mutation goes
// through the methods here so events fire exactly once per change.
type Session struct {
	ID         string
	Theme      string
	Roster     *Roster
	Transcript *Transcript
	Clock      *types.SessionClock

	listener Listener
	logger   *zap.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithListener attaches a lifecycle listener. Use NewFanOut to attach
// several.
func WithListener(l Listener) Option {
	return func(s *Session) { s.listener = l }
}

// New creates a session over the given roster with a fresh transcript
// and an idle clock.
func New(theme string, roster *Roster, limit time.Duration, opts ...Option) *Session {
	s := &Session{
		ID:         uuid.New().String(),
		Theme:      theme,
		Roster:     roster,
		Transcript: NewTranscript(),
		Clock:      types.NewSessionClock(limit),
		listener:   NopListener{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "session"), zap.String("session_id", s.ID))
	return s
}

// Record appends an utterance and emits the transcript event.
func (s *Session) Record(speakerID, text string) types.Utterance {
	u := s.Transcript.Append(speakerID, text)
	s.logger.Debug("utterance recorded",
		zap.String("speaker", speakerID),
		zap.Int("sequence", u.Sequence),
		zap.Int("chars", len(text)))
	s.listener.OnTranscriptAppended(u)
	return u
}

// SetSpeaker emits the active-speaker event.
func (s *Session) SetSpeaker(speakerID string) {
	s.listener.OnSpeakerChanged(speakerID)
}

// ClaimRole routes a role claim through the roster and emits the role
// event only when the claim took effect.
func (s *Session) ClaimRole(role types.Role, participantID string) bool {
	if !s.Roster.ClaimRole(role, participantID) {
		return false
	}
	s.logger.Info("role claimed",
		zap.String("role", string(role)),
		zap.String("participant", participantID))
	s.listener.OnRoleChanged(participantID, role)
	return true
}

// StartClock arms the session clock and reports the opening remaining
// time.
func (s *Session) StartClock() {
	if s.Clock.Started() {
		return
	}
	s.Clock.Start()
	s.logger.Info("session clock started", zap.Duration("limit", s.Clock.Limit()))
	s.listener.OnRemainingTimeChanged(s.Clock.Remaining())
}

// AnnounceRemaining emits the current remaining time.
func (s *Session) AnnounceRemaining() {
	s.listener.OnRemainingTimeChanged(s.Clock.Remaining())
}

// End emits the session-ended event. score may be nil when no
// assessment was produced.
func (s *Session) End(reason EndReason, score *types.FacilitationScore) {
	s.logger.Info("session ended",
		zap.String("reason", string(reason)),
		zap.Int("utterances", s.Transcript.Len()))
	s.listener.OnSessionEnded(reason, score)
}
