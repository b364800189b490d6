package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dzeddy/study-habits-tracker/internal/models"
	"github.com/Dzeddy/study-habits-tracker/internal/repository"
)

func TestFriendsRecentSessionsWindowAndScope(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	me := seedUser(store, "me")
	friend := seedUser(store, "friend")
	stranger := seedUser(store, "stranger")
	store.AddFriendship(me, friend)

	recent := endedSession(friend, "recent", now.Add(-48*time.Hour), 30)
	stale := endedSession(friend, "stale", now.Add(-8*24*time.Hour), 30)
	active := models.StudySession{UserID: friend, Subject: "live", StartTime: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour), IsActive: true}
	store.Insert(recent)
	store.Insert(stale)
	store.Insert(active)
	store.Insert(endedSession(stranger, "hidden", now.Add(-time.Hour), 30))
	store.Insert(endedSession(me, "mine", now.Add(-time.Hour), 30))

	svc := NewSocialService(store, store).WithClock(func() time.Time { return now })

	got, err := svc.GetFriendsRecentSessions(ctx, me)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "live", got[0].Subject)
	assert.Equal(t, "friend", got[0].Username)
	assert.Equal(t, "recent", got[1].Subject)
}

func TestFriendsRecentSessionsCapped(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	me := seedUser(store, "me")
	friend := seedUser(store, "friend")
	store.AddFriendship(me, friend)
	for i := 0; i < 25; i++ {
		store.Insert(endedSession(friend, "math", now.Add(-time.Duration(i+1)*time.Hour), 20))
	}

	svc := NewSocialService(store, store).WithClock(func() time.Time { return now })

	got, err := svc.GetFriendsRecentSessions(ctx, me)
	require.NoError(t, err)
	require.Len(t, got, RecentActivityLimit)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].UpdatedAt.After(got[i-1].UpdatedAt))
	}
}

func TestFriendsRecentSessionsWithoutFriends(t *testing.T) {
	store := repository.NewMemoryStore()
	me := seedUser(store, "me")

	got, err := NewSocialService(store, store).GetFriendsRecentSessions(context.Background(), me)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListFriendsAndStats(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	me := seedUser(store, "me")
	zed := seedUser(store, "zed")
	amy := seedUser(store, "amy")
	store.AddFriendship(me, zed)
	store.AddFriendship(amy, me)

	svc := NewSocialService(store, store)

	friends, err := svc.ListFriends(ctx, me)
	require.NoError(t, err)
	require.Len(t, friends, 2)
	assert.Equal(t, "amy", friends[0].Username)
	assert.Equal(t, "zed", friends[1].Username)

	stats, err := svc.GetStats(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, "me", stats.Username)
	assert.Zero(t, stats.Streak)

	_, err = svc.GetStats(ctx, uuid.New())
	assert.Equal(t, KindNotFound, ErrorKind(err))
}
