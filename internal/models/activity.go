package models

import (
	"time"

	"github.com/google/uuid"
)

// Activity event types, also used as the WebSocket message type.
const (
	EventSessionStarted = "friend-started-studying"
	EventSessionEnded   = "friend-ended-studying"
)

// ActivityEvent is the payload pushed to friends. DurationMinutes is set on
// ended events only, and is present there even when it rounds to zero.
type ActivityEvent struct {
	Type            string    `json:"type"`
	ActorID         uuid.UUID `json:"user_id"`
	Username        string    `json:"username"`
	SessionID       uuid.UUID `json:"session_id"`
	Subject         string    `json:"subject"`
	DurationMinutes *int      `json:"duration,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func NewSessionStarted(username string, s *StudySession) ActivityEvent {
	return ActivityEvent{
		Type:       EventSessionStarted,
		ActorID:    s.UserID,
		Username:   username,
		SessionID:  s.ID,
		Subject:    s.Subject,
		OccurredAt: s.StartTime,
	}
}

func NewSessionEnded(username string, s *StudySession) ActivityEvent {
	duration := s.Duration
	ev := ActivityEvent{
		Type:            EventSessionEnded,
		ActorID:         s.UserID,
		Username:        username,
		SessionID:       s.ID,
		Subject:         s.Subject,
		DurationMinutes: &duration,
	}
	if s.EndTime != nil {
		ev.OccurredAt = *s.EndTime
	}
	return ev
}

// WebSocket message envelope
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
