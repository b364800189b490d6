package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Dzeddy/study-habits-tracker/internal/metrics"
	"github.com/Dzeddy/study-habits-tracker/internal/models"
	"github.com/Dzeddy/study-habits-tracker/internal/repository"
)

// EventEmitter accepts activity events for asynchronous fan-out. Emit must
// not block on delivery.
type EventEmitter interface {
	Emit(event models.ActivityEvent)
}

type StartSessionInput struct {
	Subject  string   `json:"subject" validate:"required,max=200"`
	Tags     []string `json:"tags" validate:"max=20,dive,max=50"`
	Location string   `json:"location" validate:"max=200"`
}

type EndSessionInput struct {
	ProductivityRating *int   `json:"productivity_rating" validate:"omitempty,min=1,max=5"`
	Notes              string `json:"notes" validate:"max=5000"`
}

type SessionService struct {
	sessions repository.SessionStore
	users    repository.UserStore
	streaks  StreakCalculator
	events   EventEmitter
	metrics  *metrics.Metrics
	log      *logrus.Entry
	now      func() time.Time
}

func NewSessionService(
	sessions repository.SessionStore,
	users repository.UserStore,
	streaks StreakCalculator,
	events EventEmitter,
	m *metrics.Metrics,
	log *logrus.Entry,
) *SessionService {
	return &SessionService{
		sessions: sessions,
		users:    users,
		streaks:  streaks,
		events:   events,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

func (s *SessionService) StartSession(ctx context.Context, userID uuid.UUID, in StartSessionInput) (*models.StudySession, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	in.Subject = strings.TrimSpace(in.Subject)
	in.Location = strings.TrimSpace(in.Location)
	in.Tags = cleanTags(in.Tags)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetAggregate(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	session := &models.StudySession{
		UserID:    userID,
		Subject:   in.Subject,
		StartTime: s.now().UTC(),
		IsActive:  true,
		Tags:      in.Tags,
	}
	if in.Location != "" {
		session.Location = &in.Location
	}

	if err := s.sessions.CreateActive(ctx, session); err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			return nil, &ConflictError{Message: "An active study session already exists"}
		}
		return nil, fmt.Errorf("start study session: %w", err)
	}

	s.metrics.SessionStarted()
	s.emit(models.NewSessionStarted(user.Username, session))

	return session, nil
}

func (s *SessionService) EndSession(ctx context.Context, sessionID, userID uuid.UUID, in EndSessionInput) (*models.StudySession, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	params := repository.CompleteSessionParams{
		SessionID: sessionID,
		UserID:    userID,
		EndTime:   s.now().UTC(),
		Rating:    in.ProductivityRating,
	}
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		params.Notes = &notes
	}

	completed, agg, err := s.sessions.Complete(ctx, params, s.streaks.Apply)
	// Aggregate failures may wrap ErrNotFound, so they are matched first.
	switch {
	case errors.Is(err, repository.ErrAggregateUpdate):
		s.metrics.SessionEnded("partial_failure")
		s.log.WithFields(logrus.Fields{
			"user_id":    userID,
			"session_id": sessionID,
			"error":      err.Error(),
		}).Error("session end rolled back")
		return nil, &PartialFailureError{
			Message: "Session end was not applied because the streak update failed",
			Err:     err,
		}
	case errors.Is(err, repository.ErrNotFound):
		s.metrics.SessionEnded("not_found")
		return nil, &NotFoundError{Message: "Active session not found"}
	case err != nil:
		s.metrics.SessionEnded("error")
		return nil, fmt.Errorf("end study session: %w", err)
	}

	s.metrics.SessionEnded("ok")
	s.emit(models.NewSessionEnded(agg.Username, completed))

	return completed, nil
}

// ListSessions returns the user's sessions, newest first.
func (s *SessionService) ListSessions(ctx context.Context, userID uuid.UUID, filter models.SessionFilter) ([]models.StudySession, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return nil, &ValidationError{Fields: map[string]string{
			"start_date": "must not be after end_date",
		}}
	}
	filter.Subject = strings.TrimSpace(filter.Subject)

	sessions, err := s.sessions.List(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list study sessions: %w", err)
	}
	return sessions, nil
}

func (s *SessionService) GetSession(ctx context.Context, sessionID, userID uuid.UUID) (*models.StudySession, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	session, err := s.sessions.GetByID(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, fmt.Errorf("get study session: %w", err)
	}
	return session, nil
}

// GetActiveSession returns the user's active session, or nil when idle.
func (s *SessionService) GetActiveSession(ctx context.Context, userID uuid.UUID) (*models.StudySession, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	session, err := s.sessions.GetActive(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return session, nil
}

func (s *SessionService) emit(event models.ActivityEvent) {
	if s.events == nil {
		return
	}
	s.events.Emit(event)
}

func requireUser(userID uuid.UUID) error {
	if userID == uuid.Nil {
		return &UnauthorizedError{Message: "Authentication required"}
	}
	return nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
