package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dzeddy/study-habits-tracker/internal/models"
)

// MemoryStore is an in-process SessionStore and UserStore. A single mutex is
// the per-user serialization point for the active-session check and for the
// completion unit.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*models.StudySession
	active   map[uuid.UUID]uuid.UUID // user -> active session
	users    map[uuid.UUID]*models.UserAggregate
	friends  map[uuid.UUID]map[uuid.UUID]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID]*models.StudySession),
		active:   make(map[uuid.UUID]uuid.UUID),
		users:    make(map[uuid.UUID]*models.UserAggregate),
		friends:  make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// AddUser registers a user with empty counters.
func (m *MemoryStore) AddUser(id uuid.UUID, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &models.UserAggregate{UserID: id, Username: username}
}

// EnsureUser registers userID on first sight. An empty username falls back
// to the first block of the id. Existing users are left untouched.
func (m *MemoryStore) EnsureUser(ctx context.Context, userID uuid.UUID, username string) error {
	if userID == uuid.Nil {
		return fmt.Errorf("ensure user: %w", ErrNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; ok {
		return nil
	}
	if username == "" {
		username = "user-" + userID.String()[:8]
	}
	m.users[userID] = &models.UserAggregate{UserID: userID, Username: username}
	return nil
}

// AddFriendship links a and b in both directions.
func (m *MemoryStore) AddFriendship(a, b uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pair := range [][2]uuid.UUID{{a, b}, {b, a}} {
		if m.friends[pair[0]] == nil {
			m.friends[pair[0]] = make(map[uuid.UUID]struct{})
		}
		m.friends[pair[0]][pair[1]] = struct{}{}
	}
}

// Insert stores s as-is, bypassing the lifecycle. Used to seed history.
func (m *MemoryStore) Insert(s models.StudySession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.sessions[s.ID] = cloneSession(&s)
	if s.IsActive {
		m.active[s.UserID] = s.ID
	}
}

func (m *MemoryStore) CreateActive(ctx context.Context, s *models.StudySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[s.UserID]; ok {
		return ErrActiveSessionExists
	}

	s.ID = uuid.New()
	s.IsActive = true
	s.Duration = 0
	s.EndTime = nil
	if s.Tags == nil {
		s.Tags = []string{}
	}
	s.CreatedAt = s.StartTime
	s.UpdatedAt = s.StartTime

	m.sessions[s.ID] = cloneSession(s)
	m.active[s.UserID] = s.ID
	return nil
}

func (m *MemoryStore) Complete(ctx context.Context, p CompleteSessionParams, apply AggregateFunc) (*models.StudySession, *models.UserAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[p.SessionID]
	if !ok || stored.UserID != p.UserID || !stored.IsActive {
		return nil, nil, ErrNotFound
	}

	prior, ok := m.users[p.UserID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: user %s: %w", ErrAggregateUpdate, p.UserID, ErrNotFound)
	}

	// Work on copies so nothing is visible unless both steps succeed.
	completed := cloneSession(stored)
	completed.Complete(p.EndTime, p.Rating, p.Notes)

	next, err := apply(*prior, *completed)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrAggregateUpdate, err)
	}

	m.sessions[completed.ID] = cloneSession(completed)
	delete(m.active, p.UserID)
	m.users[p.UserID] = &next

	agg := next
	return cloneSession(completed), &agg, nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.StudySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) GetActive(ctx context.Context, userID uuid.UUID) (*models.StudySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.active[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(m.sessions[id]), nil
}

func (m *MemoryStore) List(ctx context.Context, userID uuid.UUID, filter models.SessionFilter) ([]models.StudySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.StudySession, 0)
	for _, s := range m.sessions {
		if s.UserID == userID && filter.Matches(s) {
			out = append(out, *cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

func (m *MemoryStore) Totals(ctx context.Context, userIDs []uuid.UUID, since time.Time) ([]models.SessionTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scope := idSet(userIDs)
	byUser := make(map[uuid.UUID]*models.SessionTotal)
	for _, s := range m.sessions {
		if _, ok := scope[s.UserID]; !ok || s.IsActive {
			continue
		}
		if !since.IsZero() && s.StartTime.Before(since) {
			continue
		}
		t, ok := byUser[s.UserID]
		if !ok {
			t = &models.SessionTotal{UserID: s.UserID}
			byUser[s.UserID] = t
		}
		t.TotalTime += s.Duration
		t.Sessions++
	}

	out := make([]models.SessionTotal, 0, len(byUser))
	for _, t := range byUser {
		out = append(out, *t)
	}
	return out, nil
}

func (m *MemoryStore) Recent(ctx context.Context, userIDs []uuid.UUID, endedSince time.Time, limit int) ([]models.FriendSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scope := idSet(userIDs)
	out := make([]models.FriendSession, 0)
	for _, s := range m.sessions {
		if _, ok := scope[s.UserID]; !ok {
			continue
		}
		if !s.IsActive && (s.EndTime == nil || s.EndTime.Before(endedSince)) {
			continue
		}
		fs := models.FriendSession{StudySession: *cloneSession(s)}
		if u, ok := m.users[s.UserID]; ok {
			fs.Username = u.Username
		}
		out = append(out, fs)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetAggregate(ctx context.Context, userID uuid.UUID) (*models.UserAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	agg := *u
	return &agg, nil
}

func (m *MemoryStore) GetAggregates(ctx context.Context, userIDs []uuid.UUID) ([]models.UserAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.UserAggregate, 0, len(userIDs))
	for id := range idSet(userIDs) {
		if u, ok := m.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *MemoryStore) FriendsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]uuid.UUID, 0, len(m.friends[userID]))
	for id := range m.friends[userID] {
		out = append(out, id)
	}
	return out, nil
}

func cloneSession(s *models.StudySession) *models.StudySession {
	c := *s
	c.Tags = append([]string{}, s.Tags...)
	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	if s.ProductivityRating != nil {
		r := *s.ProductivityRating
		c.ProductivityRating = &r
	}
	if s.Notes != nil {
		notes := *s.Notes
		c.Notes = &notes
	}
	if s.Location != nil {
		loc := *s.Location
		c.Location = &loc
	}
	return &c
}

func idSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
