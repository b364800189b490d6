package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dzeddy/study-habits-tracker/internal/activity"
	"github.com/Dzeddy/study-habits-tracker/internal/handlers"
	"github.com/Dzeddy/study-habits-tracker/internal/logger"
	"github.com/Dzeddy/study-habits-tracker/internal/metrics"
	"github.com/Dzeddy/study-habits-tracker/internal/middleware"
	"github.com/Dzeddy/study-habits-tracker/internal/models"
	"github.com/Dzeddy/study-habits-tracker/internal/repository"
	"github.com/Dzeddy/study-habits-tracker/internal/services"
	"github.com/Dzeddy/study-habits-tracker/internal/websocket"
)

type testServer struct {
	*httptest.Server
	auth  *middleware.JWTAuth
	store *repository.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	log := logger.NewWithOutput("test", "error", io.Discard)
	m := metrics.New(prometheus.NewRegistry())
	auth := middleware.NewJWTAuth("router-secret")
	cal := services.NewCalendar(time.UTC)

	broadcaster := activity.NewBroadcaster(store, activity.NewLocalTransport(8, m, log.Component("activity")), activity.Config{Workers: 1, QueueSize: 8}, m, log.Component("activity"))
	broadcaster.Start()
	t.Cleanup(broadcaster.Stop)

	limiter := middleware.NewRateLimiter(2, time.Minute)
	t.Cleanup(limiter.Stop)

	sessions := services.NewSessionService(store, store, services.NewStreakCalculator(cal), broadcaster, m, log.Component("sessions"))
	h := New(Deps{
		JWTAuth:             auth,
		Provisioner:         store,
		StudySessionHandler: handlers.NewStudySessionHandler(sessions, time.UTC),
		SocialHandler:       handlers.NewSocialHandler(services.NewLeaderboardAggregator(store, store, cal), services.NewSocialService(store, store)),
		WSHub:               websocket.NewHub(broadcaster, auth, nil, log.Component("websocket")),
		StartLimiter:        limiter,
		Logger:              log,
		Metrics:             m,
		FrontendURL:         "http://localhost:5173",
	})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, auth: auth, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, userID uuid.UUID, body interface{}) *http.Response {
	t.Helper()
	return s.doAs(t, method, path, userID, "", body)
}

func (s *testServer) doAs(t *testing.T, method, path string, userID uuid.UUID, username string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	if userID != uuid.Nil {
		token, err := s.auth.GenerateAccessToken(userID, username, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRouterSessionFlow(t *testing.T) {
	srv := newTestServer(t)
	userID := uuid.New()
	srv.store.AddUser(userID, "ada")

	resp := srv.do(t, http.MethodPost, "/api/v1/study-sessions", userID, map[string]string{"subject": "calculus"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))

	var started models.StudySession
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))

	resp = srv.do(t, http.MethodPut, "/api/v1/study-sessions/"+started.ID.String()+"/end", userID, map[string]int{"productivity_rating": 5})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/api/v1/study-sessions", userID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Sessions []models.StudySession `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Sessions, 1)
	assert.False(t, list.Sessions[0].IsActive)

	resp = srv.do(t, http.MethodGet, "/api/v1/users/me/stats", userID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats models.UserAggregate
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Streak)
}

func TestRouterRegistersUnknownUserOnFirstRequest(t *testing.T) {
	srv := newTestServer(t)
	userID := uuid.New()

	resp := srv.doAs(t, http.MethodPost, "/api/v1/study-sessions", userID, "grace", map[string]string{"subject": "algebra"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var started models.StudySession
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))

	resp = srv.doAs(t, http.MethodPut, "/api/v1/study-sessions/"+started.ID.String()+"/end", userID, "grace", map[string]int{"productivity_rating": 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.doAs(t, http.MethodGet, "/api/v1/users/me/stats", userID, "grace", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats models.UserAggregate
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, "grace", stats.Username)
	assert.Equal(t, 1, stats.Streak)
}

func TestRouterRequiresAuth(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/v1/study-sessions", "/api/v1/social/leaderboard", "/api/v1/users/me/stats"} {
		resp := srv.do(t, http.MethodGet, path, uuid.Nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	resp := srv.do(t, http.MethodGet, "/health", uuid.Nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/metrics", uuid.Nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouterRateLimitsSessionStarts(t *testing.T) {
	srv := newTestServer(t)
	userID := uuid.New()
	srv.store.AddUser(userID, "ada")

	// Conflicts still count against the limit.
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp := srv.do(t, http.MethodPost, "/api/v1/study-sessions", userID, map[string]string{"subject": "x"})
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusConflict, http.StatusTooManyRequests}, codes)
}
