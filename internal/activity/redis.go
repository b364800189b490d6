package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Dzeddy/study-habits-tracker/internal/metrics"
	"github.com/Dzeddy/study-habits-tracker/internal/models"
)

// ChannelName is the Redis channel carrying events addressed to userID.
func ChannelName(userID uuid.UUID) string {
	return "user_updates:" + userID.String()
}

// RedisTransport fans events out through Redis pub/sub so that every server
// instance can reach the subscriptions attached to it. One Redis
// subscription is held per user with at least one local subscriber.
type RedisTransport struct {
	client *redis.Client
	reg    *registry
	log    *logrus.Entry

	mu          sync.Mutex
	cancelFuncs map[uuid.UUID]context.CancelFunc
	wg          sync.WaitGroup
}

// subscribeTimeout bounds the wait for Redis to confirm a SUBSCRIBE.
const subscribeTimeout = 5 * time.Second

func NewRedisTransport(client *redis.Client, buffer int, m *metrics.Metrics, log *logrus.Entry) *RedisTransport {
	return &RedisTransport{
		client:      client,
		reg:         newRegistry(buffer, m, log),
		log:         log,
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
	}
}

func (t *RedisTransport) Publish(ctx context.Context, userID uuid.UUID, event models.ActivityEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode activity event: %w", err)
	}
	if err := t.client.Publish(ctx, ChannelName(userID), data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", ChannelName(userID), err)
	}
	return nil
}

func (t *RedisTransport) Subscribe(userID uuid.UUID) *Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, first := t.reg.add(userID)

	// Start the Redis subscription on the first local subscriber. The
	// confirmation is awaited here so events published once Subscribe
	// returns reach the new subscriber.
	if first {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancelFuncs[userID] = cancel
		pubsub := t.client.Subscribe(ctx, ChannelName(userID))

		confirmCtx, done := context.WithTimeout(ctx, subscribeTimeout)
		if _, err := pubsub.Receive(confirmCtx); err != nil {
			t.log.WithFields(logrus.Fields{
				"user_id": userID,
				"error":   err.Error(),
			}).Warn("redis subscribe not confirmed")
		}
		done()

		t.wg.Add(1)
		go t.consume(ctx, userID, pubsub)
	}
	return sub
}

func (t *RedisTransport) Unsubscribe(sub *Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, last := t.reg.remove(sub); last {
		if cancel, ok := t.cancelFuncs[sub.UserID]; ok {
			cancel()
			delete(t.cancelFuncs, sub.UserID)
		}
	}
}

func (t *RedisTransport) Close() error {
	t.mu.Lock()
	for userID, cancel := range t.cancelFuncs {
		cancel()
		delete(t.cancelFuncs, userID)
	}
	t.mu.Unlock()

	t.wg.Wait()
	t.reg.closeAll()
	return nil
}

func (t *RedisTransport) consume(ctx context.Context, userID uuid.UUID, pubsub *redis.PubSub) {
	defer t.wg.Done()
	defer pubsub.Close()

	channel := ChannelName(userID)
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event models.ActivityEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				t.log.WithFields(logrus.Fields{
					"channel": channel,
					"error":   err.Error(),
				}).Warn("discarding malformed activity message")
				continue
			}
			// A cancelled subscription may still drain a message that a
			// newer subscription for the same user also receives.
			if ctx.Err() != nil {
				return
			}
			t.reg.deliver(userID, event)
		}
	}
}
