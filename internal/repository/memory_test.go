package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dzeddy/study-habits-tracker/internal/models"
)

func addMinutes(prior models.UserAggregate, completed models.StudySession) (models.UserAggregate, error) {
	prior.TotalStudyTime += completed.Duration
	return prior, nil
}

func TestMemoryStoreOneActivePerUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	userID := uuid.New()
	store.AddUser(userID, "ada")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.CreateActive(ctx, &models.StudySession{UserID: userID, Subject: "math", StartTime: time.Now()})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrActiveSessionExists)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestMemoryStoreCompleteIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	userID := uuid.New()
	store.AddUser(userID, "ada")

	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	s := &models.StudySession{UserID: userID, Subject: "math", StartTime: start}
	require.NoError(t, store.CreateActive(ctx, s))

	failing := func(models.UserAggregate, models.StudySession) (models.UserAggregate, error) {
		return models.UserAggregate{}, errors.New("boom")
	}
	_, _, err := store.Complete(ctx, CompleteSessionParams{SessionID: s.ID, UserID: userID, EndTime: start.Add(time.Hour)}, failing)
	require.ErrorIs(t, err, ErrAggregateUpdate)

	active, err := store.GetActive(ctx, s.UserID)
	require.NoError(t, err)
	assert.True(t, active.IsActive)
	assert.Nil(t, active.EndTime)

	done, agg, err := store.Complete(ctx, CompleteSessionParams{SessionID: s.ID, UserID: userID, EndTime: start.Add(time.Hour)}, addMinutes)
	require.NoError(t, err)
	assert.Equal(t, 60, done.Duration)
	assert.Equal(t, 60, agg.TotalStudyTime)

	_, err = store.GetActive(ctx, userID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = store.Complete(ctx, CompleteSessionParams{SessionID: s.ID, UserID: userID, EndTime: start.Add(2 * time.Hour)}, addMinutes)
	assert.ErrorIs(t, err, ErrNotFound)

	// A new session may start once the previous one is completed.
	require.NoError(t, store.CreateActive(ctx, &models.StudySession{UserID: userID, Subject: "art", StartTime: start.Add(3 * time.Hour)}))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	userID := uuid.New()
	store.AddUser(userID, "ada")

	s := &models.StudySession{UserID: userID, Subject: "math", StartTime: time.Now(), Tags: []string{"a"}}
	require.NoError(t, store.CreateActive(ctx, s))

	got, err := store.GetByID(ctx, s.ID, userID)
	require.NoError(t, err)
	got.Tags[0] = "mutated"
	got.Subject = "mutated"

	again, err := store.GetByID(ctx, s.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, "math", again.Subject)
	assert.Equal(t, []string{"a"}, again.Tags)
}

func TestMemoryStoreTotalsSkipActiveAndOldSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a, b := uuid.New(), uuid.New()
	since := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	for _, st := range []struct {
		user    uuid.UUID
		start   time.Time
		minutes int
		active  bool
	}{
		{a, since.Add(time.Hour), 30, false},
		{a, since.Add(5 * time.Hour), 15, false},
		{a, since.Add(-time.Hour), 100, false},
		{b, since.Add(time.Hour), 0, true},
	} {
		s := models.StudySession{UserID: st.user, Subject: "x", StartTime: st.start, IsActive: true}
		if !st.active {
			s.Complete(st.start.Add(time.Duration(st.minutes)*time.Minute), nil, nil)
		}
		store.Insert(s)
	}

	totals, err := store.Totals(ctx, []uuid.UUID{a, b}, since)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, models.SessionTotal{UserID: a, TotalTime: 45, Sessions: 2}, totals[0])

	all, err := store.Totals(ctx, []uuid.UUID{a}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 145, all[0].TotalTime)
}

func TestMemoryStoreFriendshipIsSymmetric(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a, b := uuid.New(), uuid.New()
	store.AddFriendship(a, b)

	fa, err := store.FriendsOf(ctx, a)
	require.NoError(t, err)
	fb, err := store.FriendsOf(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b}, fa)
	assert.Equal(t, []uuid.UUID{a}, fb)

	none, err := store.FriendsOf(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStoreEnsureUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	userID := uuid.New()

	require.NoError(t, store.EnsureUser(ctx, userID, "grace"))
	require.NoError(t, store.EnsureUser(ctx, userID, "someone-else"))

	agg, err := store.GetAggregate(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "grace", agg.Username)
	assert.Zero(t, agg.Streak)

	anon := uuid.New()
	require.NoError(t, store.EnsureUser(ctx, anon, ""))
	agg, err = store.GetAggregate(ctx, anon)
	require.NoError(t, err)
	assert.Equal(t, "user-"+anon.String()[:8], agg.Username)

	assert.Error(t, store.EnsureUser(ctx, uuid.Nil, "nobody"))
}

func TestMemoryStoreCopiesOptionalText(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	userID := uuid.New()
	store.AddUser(userID, "ada")

	location := "library"
	s := &models.StudySession{UserID: userID, Subject: "math", StartTime: time.Now(), Location: &location}
	require.NoError(t, store.CreateActive(ctx, s))
	location = "changed"

	notes := "chapter 3"
	_, _, err := store.Complete(ctx, CompleteSessionParams{SessionID: s.ID, UserID: userID, EndTime: time.Now(), Notes: &notes}, addMinutes)
	require.NoError(t, err)
	notes = "changed"

	got, err := store.GetByID(ctx, s.ID, userID)
	require.NoError(t, err)
	*got.Notes = "mutated"
	*got.Location = "mutated"

	again, err := store.GetByID(ctx, s.ID, userID)
	require.NoError(t, err)
	require.NotNil(t, again.Notes)
	require.NotNil(t, again.Location)
	assert.Equal(t, "chapter 3", *again.Notes)
	assert.Equal(t, "library", *again.Location)
}
