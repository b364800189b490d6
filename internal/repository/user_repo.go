package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dzeddy/study-habits-tracker/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) GetAggregate(ctx context.Context, userID uuid.UUID) (*models.UserAggregate, error) {
	agg, err := scanAggregate(r.pool.QueryRow(ctx, `
		SELECT id, username, total_study_time, streak, last_study_date
		FROM users WHERE id = $1
	`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return agg, err
}

func (r *UserRepo) GetAggregates(ctx context.Context, userIDs []uuid.UUID) ([]models.UserAggregate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, username, total_study_time, streak, last_study_date
		FROM users WHERE id = ANY($1::uuid[])
	`, uuidStrings(userIDs))
	if err != nil {
		return nil, fmt.Errorf("load user aggregates: %w", err)
	}
	defer rows.Close()

	out := make([]models.UserAggregate, 0, len(userIDs))
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *agg)
	}
	return out, rows.Err()
}

// FriendsOf reads the accepted friendships of userID. Rows are written in
// both directions so a single-column lookup is enough.
func (r *UserRepo) FriendsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, "SELECT friend_id FROM friendships WHERE user_id = $1", userID)
	if err != nil {
		return nil, fmt.Errorf("load friends: %w", err)
	}
	defer rows.Close()

	friends := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		friends = append(friends, id)
	}
	return friends, rows.Err()
}

func scanAggregate(row pgx.Row) (*models.UserAggregate, error) {
	agg := &models.UserAggregate{}
	var last pgtype.Date
	if err := row.Scan(&agg.UserID, &agg.Username, &agg.TotalStudyTime, &agg.Streak, &last); err != nil {
		return nil, err
	}
	if last.Valid {
		day := time.Date(last.Time.Year(), last.Time.Month(), last.Time.Day(), 0, 0, 0, 0, time.UTC)
		agg.LastStudyDate = &day
	}
	return agg, nil
}

func dateParam(day *time.Time) pgtype.Date {
	if day == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *day, Valid: true}
}
