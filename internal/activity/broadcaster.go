// Package activity fans study-session events out to the friends of the
// acting user.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Dzeddy/study-habits-tracker/internal/metrics"
	"github.com/Dzeddy/study-habits-tracker/internal/models"
	"github.com/Dzeddy/study-habits-tracker/internal/worker"
)

const friendLookupTimeout = 5 * time.Second

// FriendLister resolves the friend set of a user.
type FriendLister interface {
	FriendsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type Config struct {
	Workers   int
	QueueSize int
}

// Broadcaster delivers each emitted event to every friend of the actor that
// is attached at delivery time. Delivery is best effort and at most once;
// events from one actor reach a given subscriber in emission order.
type Broadcaster struct {
	friends   FriendLister
	transport Transport
	pool      *worker.Pool
	metrics   *metrics.Metrics
	log       *logrus.Entry
}

func NewBroadcaster(friends FriendLister, transport Transport, cfg Config, m *metrics.Metrics, log *logrus.Entry) *Broadcaster {
	b := &Broadcaster{
		friends:   friends,
		transport: transport,
		metrics:   m,
		log:       log,
	}
	b.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, b.deliver, log)
	return b
}

func (b *Broadcaster) Start() {
	b.pool.Start()
}

// Stop flushes queued events and closes the transport.
func (b *Broadcaster) Stop() {
	b.pool.Stop()
	if err := b.transport.Close(); err != nil {
		b.log.WithField("error", err.Error()).Warn("closing activity transport")
	}
}

// Emit queues event for fan-out and returns immediately.
func (b *Broadcaster) Emit(event models.ActivityEvent) {
	if !b.pool.Submit(event.ActorID, event) {
		b.metrics.EventDropped("queue_full")
		b.log.WithFields(logrus.Fields{
			"event_type": event.Type,
			"user_id":    event.ActorID,
			"session_id": event.SessionID,
		}).Warn("broadcast queue full, dropping event")
		return
	}
	b.metrics.EventEmitted(event.Type)
}

// Subscribe attaches userID to its own channel. Events emitted by the user's
// friends arrive on the returned subscription.
func (b *Broadcaster) Subscribe(userID uuid.UUID) *Subscription {
	return b.transport.Subscribe(userID)
}

func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.transport.Unsubscribe(sub)
}

func (b *Broadcaster) deliver(ctx context.Context, event models.ActivityEvent) {
	ctx, cancel := context.WithTimeout(ctx, friendLookupTimeout)
	defer cancel()

	friends, err := b.friends.FriendsOf(ctx, event.ActorID)
	if err != nil {
		b.metrics.EventDropped("friend_lookup")
		b.log.WithFields(logrus.Fields{
			"user_id": event.ActorID,
			"error":   err.Error(),
		}).Error("failed to load friends for broadcast")
		return
	}

	for _, friendID := range friends {
		if friendID == event.ActorID {
			continue
		}
		if err := b.transport.Publish(ctx, friendID, event); err != nil {
			b.metrics.Delivery("error")
			b.log.WithFields(logrus.Fields{
				"user_id":   event.ActorID,
				"friend_id": friendID,
				"error":     err.Error(),
			}).Warn("failed to publish activity event")
			continue
		}
		b.metrics.Delivery("published")
	}
}
