package activity

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Dzeddy/study-habits-tracker/internal/metrics"
	"github.com/Dzeddy/study-habits-tracker/internal/models"
)

const DefaultSubscriberBuffer = 32

// Subscription is one attached listener on a user's channel. C is closed
// after Unsubscribe.
type Subscription struct {
	ID     uuid.UUID
	UserID uuid.UUID
	C      <-chan models.ActivityEvent

	ch chan models.ActivityEvent
}

// registry tracks the subscriptions attached in this process.
type registry struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]map[uuid.UUID]*Subscription
	buffer  int
	log     *logrus.Entry
	metrics *metrics.Metrics
}

func newRegistry(buffer int, m *metrics.Metrics, log *logrus.Entry) *registry {
	if buffer < 1 {
		buffer = DefaultSubscriberBuffer
	}
	return &registry{
		subs:    make(map[uuid.UUID]map[uuid.UUID]*Subscription),
		buffer:  buffer,
		log:     log,
		metrics: m,
	}
}

// add attaches a new subscription for userID. first reports whether it is the
// only one for that user.
func (r *registry) add(userID uuid.UUID) (sub *Subscription, first bool) {
	ch := make(chan models.ActivityEvent, r.buffer)
	sub = &Subscription{ID: uuid.New(), UserID: userID, C: ch, ch: ch}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[userID]
	if !ok {
		set = make(map[uuid.UUID]*Subscription)
		r.subs[userID] = set
	}
	set[sub.ID] = sub
	r.metrics.SubscriberAdded()
	return sub, len(set) == 1
}

// remove detaches sub and closes its channel. last reports whether the user
// has no subscriptions left. Removing twice is a no-op.
func (r *registry) remove(sub *Subscription) (removed, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.subs[sub.UserID]
	if _, ok := set[sub.ID]; !ok {
		return false, false
	}
	delete(set, sub.ID)
	close(sub.ch)
	r.metrics.SubscriberRemoved()

	if len(set) == 0 {
		delete(r.subs, sub.UserID)
		return true, true
	}
	return true, false
}

// deliver hands event to every subscription of userID without blocking. A
// subscriber whose buffer is full misses the event.
func (r *registry) deliver(userID uuid.UUID, event models.ActivityEvent) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, sub := range r.subs[userID] {
		select {
		case sub.ch <- event:
			delivered++
		default:
			r.metrics.EventDropped("subscriber_full")
			r.log.WithFields(logrus.Fields{
				"user_id":         userID,
				"subscription_id": sub.ID,
				"event_type":      event.Type,
			}).Warn("subscriber buffer full, dropping event")
		}
	}
	return delivered
}

func (r *registry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, set := range r.subs {
		for _, sub := range set {
			close(sub.ch)
			r.metrics.SubscriberRemoved()
		}
		delete(r.subs, userID)
	}
}
