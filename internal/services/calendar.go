package services

import (
	"time"

	"github.com/Dzeddy/study-habits-tracker/internal/models"
)

// Calendar turns instants into calendar days of one reference timezone.
type Calendar struct {
	loc *time.Location
}

func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

func (c Calendar) location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// DayKey returns midnight UTC of t's date in the reference timezone. Keys are
// always exactly 24h apart, so day arithmetic is immune to DST.
func (c Calendar) DayKey(t time.Time) time.Time {
	y, m, d := t.In(c.location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (c Calendar) StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(c.location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.location())
}

// StartOfWeek returns the most recent Sunday midnight (weekday index 0).
func (c Calendar) StartOfWeek(t time.Time) time.Time {
	local := t.In(c.location())
	y, m, d := local.Date()
	return time.Date(y, m, d-int(local.Weekday()), 0, 0, 0, 0, c.location())
}

func (c Calendar) StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.In(c.location()).Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, c.location())
}

// WindowStart returns the lower bound of the timeframe containing now. The
// zero time means unrestricted.
func (c Calendar) WindowStart(tf models.Timeframe, now time.Time) (time.Time, error) {
	switch tf {
	case models.TimeframeAll, "all":
		return time.Time{}, nil
	case models.TimeframeDaily:
		return c.StartOfDay(now), nil
	case models.TimeframeWeekly:
		return c.StartOfWeek(now), nil
	case models.TimeframeMonthly:
		return c.StartOfMonth(now), nil
	default:
		return time.Time{}, &ValidationError{Fields: map[string]string{
			"timeframe": "timeframe must be daily, weekly, monthly or all",
		}}
	}
}
