package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/Dzeddy/study-habits-tracker/internal/middleware"
	"github.com/Dzeddy/study-habits-tracker/internal/models"
)

type LeaderboardService interface {
	ComputeLeaderboard(ctx context.Context, userID uuid.UUID, timeframe models.Timeframe) ([]models.LeaderboardEntry, error)
}

type SocialService interface {
	GetFriendsRecentSessions(ctx context.Context, userID uuid.UUID) ([]models.FriendSession, error)
	ListFriends(ctx context.Context, userID uuid.UUID) ([]models.FriendProfile, error)
	GetStats(ctx context.Context, userID uuid.UUID) (*models.UserAggregate, error)
}

type SocialHandler struct {
	leaderboard LeaderboardService
	social      SocialService
}

func NewSocialHandler(leaderboard LeaderboardService, social SocialService) *SocialHandler {
	return &SocialHandler{leaderboard: leaderboard, social: social}
}

func (h *SocialHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	timeframe := models.Timeframe(r.URL.Query().Get("timeframe"))

	entries, err := h.leaderboard.ComputeLeaderboard(r.Context(), userID, timeframe)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timeframe":   timeframe,
		"leaderboard": entries,
	})
}

func (h *SocialHandler) Friends(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	friends, err := h.social.ListFriends(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"friends": friends,
	})
}

// Activity serves the polling view of friends' recent sessions.
func (h *SocialHandler) Activity(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	sessions, err := h.social.GetFriendsRecentSessions(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

func (h *SocialHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	stats, err := h.social.GetStats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
