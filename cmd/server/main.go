package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/Dzeddy/study-habits-tracker/internal/activity"
	"github.com/Dzeddy/study-habits-tracker/internal/config"
	"github.com/Dzeddy/study-habits-tracker/internal/database"
	"github.com/Dzeddy/study-habits-tracker/internal/handlers"
	"github.com/Dzeddy/study-habits-tracker/internal/logger"
	"github.com/Dzeddy/study-habits-tracker/internal/metrics"
	"github.com/Dzeddy/study-habits-tracker/internal/middleware"
	"github.com/Dzeddy/study-habits-tracker/internal/repository"
	"github.com/Dzeddy/study-habits-tracker/internal/router"
	"github.com/Dzeddy/study-habits-tracker/internal/services"
	"github.com/Dzeddy/study-habits-tracker/internal/websocket"
)

type stores struct {
	sessions repository.SessionStore
	users    repository.UserStore
	// provisioner is set for stores that create users on first sight.
	provisioner middleware.UserProvisioner
	close       func()
}

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log := logger.New("study-tracker", cfg.LogLevel)
	startup := log.Component("main")
	startup.WithField("env", cfg.Env).Info("starting study tracker")

	loc, err := cfg.Location()
	if err != nil {
		startup.WithField("error", err.Error()).Warn("falling back to UTC for calendar days")
	}
	cal := services.NewCalendar(loc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 2: Storage ────
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		startup.WithField("error", err.Error()).Fatal("storage initialization failed")
	}
	defer st.close()

	// ──── Step 3: Metrics ────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ──── Step 4: Activity Transport ────
	transport, err := openTransport(ctx, cfg, m, log)
	if err != nil {
		startup.WithField("error", err.Error()).Fatal("activity transport initialization failed")
	}

	broadcaster := activity.NewBroadcaster(st.users, transport, activity.Config{
		Workers:   cfg.BroadcastWorkers,
		QueueSize: cfg.BroadcastQueueSize,
	}, m, log.Component("activity"))
	broadcaster.Start()

	// ──── Step 5: Services & Handlers ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	sessionService := services.NewSessionService(
		st.sessions,
		st.users,
		services.NewStreakCalculator(cal),
		broadcaster,
		m,
		log.Component("sessions"),
	)
	leaderboard := services.NewLeaderboardAggregator(st.sessions, st.users, cal)
	socialService := services.NewSocialService(st.sessions, st.users)

	startLimiter := middleware.NewRateLimiter(cfg.StartRateLimit, time.Minute)
	defer startLimiter.Stop()

	wsHub := websocket.NewHub(broadcaster, jwtAuth, originChecker(cfg.FrontendURL, cfg.Env), log.Component("websocket"))

	// ──── Step 6: Start HTTP Server ────
	r := router.New(router.Deps{
		JWTAuth:             jwtAuth,
		Provisioner:         st.provisioner,
		StudySessionHandler: handlers.NewStudySessionHandler(sessionService, loc),
		SocialHandler:       handlers.NewSocialHandler(leaderboard, socialService),
		WSHub:               wsHub,
		StartLimiter:        startLimiter,
		Logger:              log,
		Metrics:             m,
		FrontendURL:         cfg.FrontendURL,
	})

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		startup.WithFields(logrus.Fields{
			"port":      cfg.Port,
			"storage":   cfg.StorageType,
			"transport": transportName(cfg),
			"timezone":  loc.String(),
		}).Info("study tracker ready")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		startup.WithField("error", err.Error()).Error("server error")
	}

	// Graceful shutdown
	startup.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		startup.WithField("error", err.Error()).Warn("http shutdown")
	}
	wsHub.Close()
	broadcaster.Stop()
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	if cfg.StorageType == config.StorageMemory {
		mem := repository.NewMemoryStore()
		log.Component("storage").Warn("using in-memory storage; data is lost on restart")
		return &stores{sessions: mem, users: mem, provisioner: mem, close: func() {}}, nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(ctx, pool, cfg.MigrationsDir, log.Component("migrations")); err != nil {
		pool.Close()
		return nil, err
	}
	log.Component("storage").Info("PostgreSQL connected")

	return &stores{
		sessions: repository.NewStudySessionRepo(pool),
		users:    repository.NewUserRepo(pool),
		close:    pool.Close,
	}, nil
}

func openTransport(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *logger.Logger) (activity.Transport, error) {
	entry := log.Component("activity")
	if cfg.RedisURL == "" {
		entry.Info("using in-process activity transport")
		return activity.NewLocalTransport(cfg.SubscriberBuffer, m, entry), nil
	}

	client, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	entry.Info("Redis connected")
	return &closingTransport{
		RedisTransport: activity.NewRedisTransport(client, cfg.SubscriberBuffer, m, entry),
		closeClient:    client.Close,
	}, nil
}

// closingTransport also closes the Redis client it owns.
type closingTransport struct {
	*activity.RedisTransport
	closeClient func() error
}

func (t *closingTransport) Close() error {
	err := t.RedisTransport.Close()
	return errors.Join(err, t.closeClient())
}

func transportName(cfg *config.Config) string {
	if cfg.RedisURL == "" {
		return "local"
	}
	return "redis"
}

// originChecker allows browser sockets only from the frontend outside development.
func originChecker(frontendURL, env string) func(r *http.Request) bool {
	if env == "development" {
		return nil
	}
	allowed := make(map[string]struct{})
	for _, o := range strings.Split(frontendURL, ",") {
		allowed[strings.TrimRight(strings.TrimSpace(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
