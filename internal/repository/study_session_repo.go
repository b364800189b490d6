package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dzeddy/study-habits-tracker/internal/models"
)

const (
	sessionColumns = `id, user_id, subject, start_time, end_time, duration, is_active,
		productivity_rating, notes, location, tags, created_at, updated_at`

	uniqueViolation = "23505"
	oneActiveIndex  = "study_sessions_one_active_per_user"
)

type StudySessionRepo struct {
	pool *pgxpool.Pool
}

func NewStudySessionRepo(pool *pgxpool.Pool) *StudySessionRepo {
	return &StudySessionRepo{pool: pool}
}

func (r *StudySessionRepo) CreateActive(ctx context.Context, s *models.StudySession) error {
	if s.Tags == nil {
		s.Tags = []string{}
	}

	// The partial unique index on (user_id) WHERE is_active rejects a second
	// active session even when two starts race.
	query := `
		INSERT INTO study_sessions (user_id, subject, start_time, is_active, location, tags, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $5, $3, $3)
		RETURNING id, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query, s.UserID, s.Subject, s.StartTime, s.Location, s.Tags).Scan(
		&s.ID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == oneActiveIndex {
			return ErrActiveSessionExists
		}
		return fmt.Errorf("insert study session: %w", err)
	}

	s.IsActive = true
	s.Duration = 0
	s.EndTime = nil
	return nil
}

func (r *StudySessionRepo) Complete(ctx context.Context, p CompleteSessionParams, apply AggregateFunc) (*models.StudySession, *models.UserAggregate, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin complete session: %w", err)
	}
	defer tx.Rollback(ctx)

	// FOR UPDATE makes a concurrent second end wait, then re-check is_active
	// and find nothing.
	session, err := scanSession(tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM study_sessions
		 WHERE id = $1 AND user_id = $2 AND is_active
		 FOR UPDATE`,
		p.SessionID, p.UserID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("lock study session: %w", err)
	}

	session.Complete(p.EndTime, p.Rating, p.Notes)

	_, err = tx.Exec(ctx, `
		UPDATE study_sessions
		SET end_time = $3,
			duration = $4,
			is_active = FALSE,
			productivity_rating = $5,
			notes = $6,
			updated_at = $3
		WHERE id = $1 AND user_id = $2
	`, session.ID, session.UserID, p.EndTime, session.Duration, session.ProductivityRating, session.Notes)
	if err != nil {
		return nil, nil, fmt.Errorf("end study session: %w", err)
	}

	prior, err := scanAggregate(tx.QueryRow(ctx, `
		SELECT id, username, total_study_time, streak, last_study_date
		FROM users WHERE id = $1
		FOR UPDATE
	`, p.UserID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNotFound
		}
		return nil, nil, fmt.Errorf("%w: load user %s: %w", ErrAggregateUpdate, p.UserID, err)
	}

	next, err := apply(*prior, *session)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrAggregateUpdate, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE users
		SET total_study_time = $2, streak = $3, last_study_date = $4
		WHERE id = $1
	`, next.UserID, next.TotalStudyTime, next.Streak, dateParam(next.LastStudyDate))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: save user %s: %w", ErrAggregateUpdate, p.UserID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: commit: %w", ErrAggregateUpdate, err)
	}

	return session, &next, nil
}

func (r *StudySessionRepo) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.StudySession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM study_sessions WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *StudySessionRepo) GetActive(ctx context.Context, userID uuid.UUID) (*models.StudySession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM study_sessions WHERE user_id = $1 AND is_active`,
		userID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *StudySessionRepo) List(ctx context.Context, userID uuid.UUID, filter models.SessionFilter) ([]models.StudySession, error) {
	var conds []string
	args := []interface{}{userID}
	conds = append(conds, "user_id = $1")

	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		conds = append(conds, fmt.Sprintf("start_time >= $%d", len(args)))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		conds = append(conds, fmt.Sprintf("start_time <= $%d", len(args)))
	}
	if filter.Subject != "" {
		args = append(args, filter.Subject)
		conds = append(conds, fmt.Sprintf("subject = $%d", len(args)))
	}

	query := `SELECT ` + sessionColumns + ` FROM study_sessions WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY start_time DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list study sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.StudySession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *StudySessionRepo) Totals(ctx context.Context, userIDs []uuid.UUID, since time.Time) ([]models.SessionTotal, error) {
	query := `
		SELECT user_id, COALESCE(SUM(duration), 0)::int, COUNT(*)::int
		FROM study_sessions
		WHERE user_id = ANY($1::uuid[])
		  AND NOT is_active`
	args := []interface{}{uuidStrings(userIDs)}
	if !since.IsZero() {
		query += ` AND start_time >= $2`
		args = append(args, since)
	}
	query += ` GROUP BY user_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate study time: %w", err)
	}
	defer rows.Close()

	totals := make([]models.SessionTotal, 0)
	for rows.Next() {
		var t models.SessionTotal
		if err := rows.Scan(&t.UserID, &t.TotalTime, &t.Sessions); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (r *StudySessionRepo) Recent(ctx context.Context, userIDs []uuid.UUID, endedSince time.Time, limit int) ([]models.FriendSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.user_id, s.subject, s.start_time, s.end_time, s.duration, s.is_active,
			s.productivity_rating, s.notes, s.location, s.tags, s.created_at, s.updated_at,
			u.username
		FROM study_sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.user_id = ANY($1::uuid[])
		  AND (s.is_active OR s.end_time >= $2)
		ORDER BY s.updated_at DESC
		LIMIT $3
	`, uuidStrings(userIDs), endedSince, limit)
	if err != nil {
		return nil, fmt.Errorf("recent study sessions: %w", err)
	}
	defer rows.Close()

	out := make([]models.FriendSession, 0)
	for rows.Next() {
		var fs models.FriendSession
		var rating pgtype.Int2
		s := &fs.StudySession
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.Subject, &s.StartTime, &s.EndTime, &s.Duration, &s.IsActive,
			&rating, &s.Notes, &s.Location, &s.Tags, &s.CreatedAt, &s.UpdatedAt,
			&fs.Username,
		); err != nil {
			return nil, err
		}
		s.ProductivityRating = ratingValue(rating)
		out = append(out, fs)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*models.StudySession, error) {
	s := &models.StudySession{}
	var rating pgtype.Int2
	err := row.Scan(
		&s.ID, &s.UserID, &s.Subject, &s.StartTime, &s.EndTime, &s.Duration, &s.IsActive,
		&rating, &s.Notes, &s.Location, &s.Tags, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ProductivityRating = ratingValue(rating)
	return s, nil
}

func ratingValue(v pgtype.Int2) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int16)
	return &n
}
