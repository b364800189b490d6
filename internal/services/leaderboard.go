package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Dzeddy/study-habits-tracker/internal/models"
	"github.com/Dzeddy/study-habits-tracker/internal/repository"
)

type LeaderboardAggregator struct {
	sessions repository.SessionStore
	users    repository.UserStore
	cal      Calendar
	now      func() time.Time
}

func NewLeaderboardAggregator(sessions repository.SessionStore, users repository.UserStore, cal Calendar) *LeaderboardAggregator {
	return &LeaderboardAggregator{
		sessions: sessions,
		users:    users,
		cal:      cal,
		now:      time.Now,
	}
}

func (a *LeaderboardAggregator) WithClock(now func() time.Time) *LeaderboardAggregator {
	a.now = now
	return a
}

// ComputeLeaderboard ranks the user and their friends by completed study time
// inside the timeframe window. Ties are broken by user id ascending.
func (a *LeaderboardAggregator) ComputeLeaderboard(ctx context.Context, userID uuid.UUID, timeframe models.Timeframe) ([]models.LeaderboardEntry, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	since, err := a.cal.WindowStart(models.Timeframe(strings.ToLower(string(timeframe))), a.now())
	if err != nil {
		return nil, err
	}

	scope, err := friendScope(ctx, a.users, userID)
	if err != nil {
		return nil, err
	}

	totals, err := a.sessions.Totals(ctx, scope, since)
	if err != nil {
		return nil, fmt.Errorf("aggregate leaderboard: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(totals))
	for _, t := range totals {
		ids = append(ids, t.UserID)
	}
	profiles, err := a.users.GetAggregates(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard users: %w", err)
	}
	byID := make(map[uuid.UUID]models.UserAggregate, len(profiles))
	for _, p := range profiles {
		byID[p.UserID] = p
	}

	entries := make([]models.LeaderboardEntry, 0, len(totals))
	for _, t := range totals {
		p := byID[t.UserID]
		entries = append(entries, models.LeaderboardEntry{
			User: models.LeaderboardUser{
				ID:       t.UserID,
				Username: p.Username,
				Streak:   p.Streak,
			},
			TotalTime: t.TotalTime,
			Sessions:  t.Sessions,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalTime != entries[j].TotalTime {
			return entries[i].TotalTime > entries[j].TotalTime
		}
		return entries[i].User.ID.String() < entries[j].User.ID.String()
	})

	return entries, nil
}

// friendScope returns userID together with its direct friends.
func friendScope(ctx context.Context, users repository.UserStore, userID uuid.UUID) ([]uuid.UUID, error) {
	friends, err := users.FriendsOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load friends: %w", err)
	}

	scope := make([]uuid.UUID, 0, len(friends)+1)
	scope = append(scope, userID)
	for _, f := range friends {
		if f != userID {
			scope = append(scope, f)
		}
	}
	return scope, nil
}
