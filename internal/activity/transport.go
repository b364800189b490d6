package activity

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Dzeddy/study-habits-tracker/internal/metrics"
	"github.com/Dzeddy/study-habits-tracker/internal/models"
)

// Transport carries events addressed to a user to that user's attached
// subscriptions.
type Transport interface {
	Publish(ctx context.Context, userID uuid.UUID, event models.ActivityEvent) error
	Subscribe(userID uuid.UUID) *Subscription
	Unsubscribe(sub *Subscription)
	Close() error
}

// LocalTransport delivers within a single process.
type LocalTransport struct {
	reg *registry
}

func NewLocalTransport(buffer int, m *metrics.Metrics, log *logrus.Entry) *LocalTransport {
	return &LocalTransport{reg: newRegistry(buffer, m, log)}
}

func (t *LocalTransport) Publish(ctx context.Context, userID uuid.UUID, event models.ActivityEvent) error {
	t.reg.deliver(userID, event)
	return nil
}

func (t *LocalTransport) Subscribe(userID uuid.UUID) *Subscription {
	sub, _ := t.reg.add(userID)
	return sub
}

func (t *LocalTransport) Unsubscribe(sub *Subscription) {
	t.reg.remove(sub)
}

func (t *LocalTransport) Close() error {
	t.reg.closeAll()
	return nil
}
