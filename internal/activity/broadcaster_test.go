package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dzeddy/study-habits-tracker/internal/logger"
	"github.com/Dzeddy/study-habits-tracker/internal/metrics"
	"github.com/Dzeddy/study-habits-tracker/internal/models"
	"github.com/Dzeddy/study-habits-tracker/internal/repository"
)

func newTestBroadcaster(t *testing.T, friends FriendLister, m *metrics.Metrics) *Broadcaster {
	t.Helper()
	b := NewBroadcaster(friends, NewLocalTransport(8, m, logger.Discard()), Config{Workers: 2, QueueSize: 16}, m, logger.Discard())
	b.Start()
	t.Cleanup(b.Stop)
	return b
}

func receive(t *testing.T, sub *Subscription) models.ActivityEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return models.ActivityEvent{}
	}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroadcastReachesAttachedFriendsOnly(t *testing.T) {
	store := repository.NewMemoryStore()
	actor, friend, stranger := uuid.New(), uuid.New(), uuid.New()
	store.AddFriendship(actor, friend)

	b := newTestBroadcaster(t, store, nil)
	friendSub := b.Subscribe(friend)
	strangerSub := b.Subscribe(stranger)
	actorSub := b.Subscribe(actor)

	session := &models.StudySession{ID: uuid.New(), UserID: actor, Subject: "biology", StartTime: time.Now()}
	b.Emit(models.NewSessionStarted("ada", session))

	ev := receive(t, friendSub)
	assert.Equal(t, models.EventSessionStarted, ev.Type)
	assert.Equal(t, actor, ev.ActorID)
	assert.Equal(t, "ada", ev.Username)
	assert.Equal(t, "biology", ev.Subject)

	assertNoEvent(t, friendSub)
	assertNoEvent(t, strangerSub)
	assertNoEvent(t, actorSub)
}

func TestBroadcastKeepsPerActorOrder(t *testing.T) {
	store := repository.NewMemoryStore()
	actor, friend := uuid.New(), uuid.New()
	store.AddFriendship(actor, friend)

	b := newTestBroadcaster(t, store, nil)
	sub := b.Subscribe(friend)

	session := &models.StudySession{ID: uuid.New(), UserID: actor, Subject: "art", StartTime: time.Now()}
	b.Emit(models.NewSessionStarted("ada", session))
	session.Complete(session.StartTime.Add(25*time.Minute), nil, nil)
	b.Emit(models.NewSessionEnded("ada", session))

	first := receive(t, sub)
	second := receive(t, sub)
	assert.Equal(t, models.EventSessionStarted, first.Type)
	assert.Equal(t, models.EventSessionEnded, second.Type)
	require.NotNil(t, second.DurationMinutes)
	assert.Equal(t, 25, *second.DurationMinutes)
}

func TestBroadcastSkipsDetachedSubscribers(t *testing.T) {
	store := repository.NewMemoryStore()
	actor, friend := uuid.New(), uuid.New()
	store.AddFriendship(actor, friend)

	b := newTestBroadcaster(t, store, nil)
	sub := b.Subscribe(friend)
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	_, ok := <-sub.C
	assert.False(t, ok)

	// Delivery to a friend with no attached subscription is a no-op.
	b.Emit(models.NewSessionStarted("ada", &models.StudySession{UserID: actor, Subject: "x"}))
	b.Stop()
}

type failingFriends struct{}

func (failingFriends) FriendsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return nil, errors.New("database unavailable")
}

func TestBroadcastCountsFriendLookupFailure(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	b := NewBroadcaster(failingFriends{}, NewLocalTransport(8, m, logger.Discard()), Config{Workers: 1, QueueSize: 4}, m, logger.Discard())
	b.Start()

	b.Emit(models.NewSessionStarted("ada", &models.StudySession{UserID: uuid.New(), Subject: "x"}))
	b.Stop()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsEmitted.WithLabelValues(models.EventSessionStarted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped.WithLabelValues("friend_lookup")))
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	transport := NewLocalTransport(1, m, logger.Discard())
	user := uuid.New()

	slow := transport.Subscribe(user)
	fast := transport.Subscribe(user)

	ctx := context.Background()
	require.NoError(t, transport.Publish(ctx, user, models.ActivityEvent{Subject: "one"}))
	assert.Equal(t, "one", (<-fast.C).Subject)
	require.NoError(t, transport.Publish(ctx, user, models.ActivityEvent{Subject: "two"}))

	assert.Equal(t, "two", (<-fast.C).Subject)
	assert.Equal(t, "one", (<-slow.C).Subject)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped.WithLabelValues("subscriber_full")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Subscribers))

	require.NoError(t, transport.Close())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Subscribers))
}
