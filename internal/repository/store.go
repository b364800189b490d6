package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Dzeddy/study-habits-tracker/internal/models"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrActiveSessionExists = errors.New("user already has an active study session")
	// ErrAggregateUpdate means the session end was rolled back because the
	// user aggregate could not be updated in the same unit.
	ErrAggregateUpdate = errors.New("user aggregate update failed")
)

// AggregateFunc derives the next user aggregate from the prior one and a
// freshly completed session. It runs inside the completion unit.
type AggregateFunc func(prior models.UserAggregate, completed models.StudySession) (models.UserAggregate, error)

type CompleteSessionParams struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	EndTime   time.Time
	Rating    *int
	Notes     *string
}

// SessionStore persists study sessions. Implementations must guarantee at
// most one active session per user, and Complete must apply the session end
// and the aggregate update atomically.
type SessionStore interface {
	// CreateActive inserts s as the user's active session, filling ID and
	// timestamps. Returns ErrActiveSessionExists if one is already active.
	CreateActive(ctx context.Context, s *models.StudySession) error
	// Complete ends the active session p.SessionID owned by p.UserID.
	// Returns ErrNotFound when no such active session exists.
	Complete(ctx context.Context, p CompleteSessionParams, apply AggregateFunc) (*models.StudySession, *models.UserAggregate, error)
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.StudySession, error)
	GetActive(ctx context.Context, userID uuid.UUID) (*models.StudySession, error)
	// List returns the user's sessions sorted by start time, newest first.
	List(ctx context.Context, userID uuid.UUID, filter models.SessionFilter) ([]models.StudySession, error)
	// Totals groups completed sessions started at or after since by user.
	// A zero since means no lower bound.
	Totals(ctx context.Context, userIDs []uuid.UUID, since time.Time) ([]models.SessionTotal, error)
	// Recent returns sessions of userIDs that are active or ended at or after
	// endedSince, most recently updated first, at most limit entries.
	Recent(ctx context.Context, userIDs []uuid.UUID, endedSince time.Time, limit int) ([]models.FriendSession, error)
}

// UserStore exposes user aggregates and the read-only friend graph.
type UserStore interface {
	GetAggregate(ctx context.Context, userID uuid.UUID) (*models.UserAggregate, error)
	GetAggregates(ctx context.Context, userIDs []uuid.UUID) ([]models.UserAggregate, error)
	FriendsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
