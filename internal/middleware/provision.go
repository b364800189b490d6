package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// UserProvisioner registers an authenticated user the store has not seen yet.
type UserProvisioner interface {
	EnsureUser(ctx context.Context, userID uuid.UUID, username string) error
}

// Provision runs after Middleware and makes sure the caller has a user
// record. A nil provisioner passes requests through unchanged.
func Provision(p UserProvisioner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if p == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())
			if userID != uuid.Nil {
				if err := p.EnsureUser(r.Context(), userID, GetUsername(r.Context())); err != nil {
					writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load user", r)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
