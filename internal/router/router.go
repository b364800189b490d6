package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Dzeddy/study-habits-tracker/internal/handlers"
	"github.com/Dzeddy/study-habits-tracker/internal/logger"
	"github.com/Dzeddy/study-habits-tracker/internal/metrics"
	"github.com/Dzeddy/study-habits-tracker/internal/middleware"
	"github.com/Dzeddy/study-habits-tracker/internal/websocket"
)

type Deps struct {
	JWTAuth *middleware.JWTAuth
	// Provisioner, when set, creates a user record for callers the store
	// has not seen. Only the in-memory store uses it.
	Provisioner         middleware.UserProvisioner
	StudySessionHandler *handlers.StudySessionHandler
	SocialHandler       *handlers.SocialHandler
	WSHub               *websocket.Hub
	StartLimiter        *middleware.RateLimiter
	Logger              *logger.Logger
	Metrics             *metrics.Metrics
	FrontendURL         string
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(d.Logger.Middleware)
	r.Use(d.Metrics.Middleware)
	r.Use(middleware.CORS(d.FrontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", d.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Study Session Routes ────
		r.Route("/study-sessions", func(r chi.Router) {
			r.Use(jwtAuthWithTimeout(d.JWTAuth, d.Provisioner))
			r.With(d.StartLimiter.Middleware).Post("/", d.StudySessionHandler.Start)
			r.Get("/", d.StudySessionHandler.List)
			r.Get("/active", d.StudySessionHandler.Active)
			r.Get("/{id}", d.StudySessionHandler.Get)
			r.Put("/{id}/end", d.StudySessionHandler.End)
		})

		// ──── Social Routes ────
		r.Route("/social", func(r chi.Router) {
			r.Use(jwtAuthWithTimeout(d.JWTAuth, d.Provisioner))
			r.Get("/leaderboard", d.SocialHandler.Leaderboard)
			r.Get("/friends", d.SocialHandler.Friends)
			r.Get("/activity", d.SocialHandler.Activity)
		})

		// ──── User Routes ────
		r.Route("/users", func(r chi.Router) {
			r.Use(jwtAuthWithTimeout(d.JWTAuth, d.Provisioner))
			r.Get("/me/stats", d.SocialHandler.Stats)
		})

		// ──── WebSocket ────
		r.Get("/ws", d.WSHub.HandleWebSocket)
	})

	return r
}

// jwtAuthWithTimeout authenticates, provisions and bounds the request
// context. The websocket route is excluded since its connection outlives the
// request.
func jwtAuthWithTimeout(auth *middleware.JWTAuth, p middleware.UserProvisioner) func(http.Handler) http.Handler {
	timeout := chimiddleware.Timeout(15 * time.Second)
	provision := middleware.Provision(p)
	return func(next http.Handler) http.Handler {
		return auth.Middleware(provision(timeout(next)))
	}
}
