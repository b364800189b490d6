package services

import (
	"fmt"
	"time"

	"github.com/Dzeddy/study-habits-tracker/internal/models"
)

// StreakCalculator derives the next user aggregate from a completed session.
// It is pure: the result depends only on its inputs and the calendar.
type StreakCalculator struct {
	cal Calendar
}

func NewStreakCalculator(cal Calendar) StreakCalculator {
	return StreakCalculator{cal: cal}
}

// Apply returns prior updated with completed. Days are compared as calendar
// days in the reference timezone, not as elapsed-time thresholds.
func (c StreakCalculator) Apply(prior models.UserAggregate, completed models.StudySession) (models.UserAggregate, error) {
	if completed.IsActive || completed.EndTime == nil {
		return prior, fmt.Errorf("session %s is not completed", completed.ID)
	}
	if completed.UserID != prior.UserID {
		return prior, fmt.Errorf("session %s belongs to %s, not %s", completed.ID, completed.UserID, prior.UserID)
	}

	next := prior
	today := c.cal.DayKey(*completed.EndTime)

	switch {
	case prior.LastStudyDate == nil:
		next.Streak = 1
	default:
		y, m, d := prior.LastStudyDate.Date()
		lastDay := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		gap := int(today.Sub(lastDay).Hours() / 24)
		switch {
		case gap <= 0:
			// Same day, or a session ending before the recorded day: the
			// streak and the recorded day stay as they are.
			today = lastDay
		case gap == 1:
			next.Streak = prior.Streak + 1
		default:
			next.Streak = 1
		}
	}

	next.TotalStudyTime = prior.TotalStudyTime + completed.Duration
	next.LastStudyDate = &today
	return next, nil
}
