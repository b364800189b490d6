package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type StudySession struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             uuid.UUID  `json:"user_id"`
	Subject            string     `json:"subject"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            *time.Time `json:"end_time,omitempty"`
	Duration           int        `json:"duration"` // minutes, 0 while active
	IsActive           bool       `json:"is_active"`
	ProductivityRating *int       `json:"productivity_rating,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
	Location           *string    `json:"location,omitempty"`
	Tags               []string   `json:"tags"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Complete freezes the session at end. It must only be called on an active session.
func (s *StudySession) Complete(end time.Time, rating *int, notes *string) {
	s.EndTime = &end
	s.IsActive = false
	s.Duration = DurationMinutes(s.StartTime, end)
	s.ProductivityRating = rating
	s.Notes = notes
	s.UpdatedAt = end
}

// DurationMinutes returns the elapsed time between start and end rounded to whole minutes.
func DurationMinutes(start, end time.Time) int {
	elapsed := end.Sub(start)
	if elapsed <= 0 {
		return 0
	}
	return int(math.Round(elapsed.Minutes()))
}

// SessionFilter narrows a user's session history. Nil bounds and an empty
// subject impose no constraint; bounds are inclusive.
type SessionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Subject   string
}

func (f SessionFilter) Matches(s *StudySession) bool {
	if f.StartDate != nil && s.StartTime.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && s.StartTime.After(*f.EndDate) {
		return false
	}
	if f.Subject != "" && s.Subject != f.Subject {
		return false
	}
	return true
}

// FriendSession is a session enriched with its owner's username for the activity feed.
type FriendSession struct {
	StudySession
	Username string `json:"username"`
}
