package models

import (
	"time"

	"github.com/google/uuid"
)

// UserAggregate holds the per-user counters maintained on session completion.
type UserAggregate struct {
	UserID         uuid.UUID `json:"user_id"`
	Username       string    `json:"username"`
	TotalStudyTime int       `json:"total_study_time"` // minutes
	Streak         int       `json:"streak"`
	// LastStudyDate is a calendar-day key: midnight UTC of the day in the reference timezone.
	LastStudyDate *time.Time `json:"last_study_date,omitempty"`
}

type FriendProfile struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	TotalStudyTime int       `json:"total_study_time"`
	Streak         int       `json:"streak"`
}

func (a UserAggregate) Profile() FriendProfile {
	return FriendProfile{
		ID:             a.UserID,
		Username:       a.Username,
		TotalStudyTime: a.TotalStudyTime,
		Streak:         a.Streak,
	}
}
