package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Dzeddy/study-habits-tracker/internal/models"
	"github.com/Dzeddy/study-habits-tracker/internal/repository"
)

const (
	RecentActivityWindow = 7 * 24 * time.Hour
	RecentActivityLimit  = 20
)

// SocialService serves the friend-scoped read paths.
type SocialService struct {
	sessions repository.SessionStore
	users    repository.UserStore
	now      func() time.Time
}

func NewSocialService(sessions repository.SessionStore, users repository.UserStore) *SocialService {
	return &SocialService{sessions: sessions, users: users, now: time.Now}
}

func (s *SocialService) WithClock(now func() time.Time) *SocialService {
	s.now = now
	return s
}

// GetFriendsRecentSessions returns friends' sessions that are active or ended
// within the last seven days, most recently updated first, capped at 20.
func (s *SocialService) GetFriendsRecentSessions(ctx context.Context, userID uuid.UUID) ([]models.FriendSession, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	friends, err := s.users.FriendsOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load friends: %w", err)
	}
	if len(friends) == 0 {
		return []models.FriendSession{}, nil
	}

	since := s.now().Add(-RecentActivityWindow)
	sessions, err := s.sessions.Recent(ctx, friends, since, RecentActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("load friend activity: %w", err)
	}
	return sessions, nil
}

// ListFriends returns the user's friends with their counters, by username.
func (s *SocialService) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.FriendProfile, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	friends, err := s.users.FriendsOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load friends: %w", err)
	}

	aggs, err := s.users.GetAggregates(ctx, friends)
	if err != nil {
		return nil, fmt.Errorf("load friend profiles: %w", err)
	}

	profiles := make([]models.FriendProfile, 0, len(aggs))
	for _, a := range aggs {
		profiles = append(profiles, a.Profile())
	}
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].Username != profiles[j].Username {
			return profiles[i].Username < profiles[j].Username
		}
		return profiles[i].ID.String() < profiles[j].ID.String()
	})
	return profiles, nil
}

// GetStats returns the caller's own aggregate counters.
func (s *SocialService) GetStats(ctx context.Context, userID uuid.UUID) (*models.UserAggregate, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	agg, err := s.users.GetAggregate(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, fmt.Errorf("load user stats: %w", err)
	}
	return agg, nil
}
