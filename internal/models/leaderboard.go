package models

import "github.com/google/uuid"

type Timeframe string

const (
	TimeframeAll     Timeframe = ""
	TimeframeDaily   Timeframe = "daily"
	TimeframeWeekly  Timeframe = "weekly"
	TimeframeMonthly Timeframe = "monthly"
)

// SessionTotal is the per-user aggregation of completed sessions inside a window.
type SessionTotal struct {
	UserID    uuid.UUID
	TotalTime int
	Sessions  int
}

type LeaderboardUser struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Streak   int       `json:"streak"`
}

type LeaderboardEntry struct {
	User      LeaderboardUser `json:"user"`
	TotalTime int             `json:"total_time"`
	Sessions  int             `json:"sessions"`
}
