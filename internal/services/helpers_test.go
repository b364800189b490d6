package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dzeddy/study-habits-tracker/internal/models"
	"github.com/Dzeddy/study-habits-tracker/internal/repository"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.ActivityEvent
}

func (r *recordingEmitter) Emit(ev models.ActivityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) Events() []models.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ActivityEvent(nil), r.events...)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func seedUser(store *repository.MemoryStore, name string) uuid.UUID {
	id := uuid.New()
	store.AddUser(id, name)
	return id
}

func endedSession(userID uuid.UUID, subject string, start time.Time, minutes int) models.StudySession {
	s := models.StudySession{
		ID:        uuid.New(),
		UserID:    userID,
		Subject:   subject,
		StartTime: start,
		IsActive:  true,
		Tags:      []string{},
		CreatedAt: start,
	}
	s.Complete(start.Add(time.Duration(minutes)*time.Minute), nil, nil)
	return s
}
