package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Dzeddy/study-habits-tracker/internal/middleware"
	"github.com/Dzeddy/study-habits-tracker/internal/models"
	"github.com/Dzeddy/study-habits-tracker/internal/services"
)

const dateLayout = "2006-01-02"

type SessionService interface {
	StartSession(ctx context.Context, userID uuid.UUID, in services.StartSessionInput) (*models.StudySession, error)
	EndSession(ctx context.Context, sessionID, userID uuid.UUID, in services.EndSessionInput) (*models.StudySession, error)
	ListSessions(ctx context.Context, userID uuid.UUID, filter models.SessionFilter) ([]models.StudySession, error)
	GetSession(ctx context.Context, sessionID, userID uuid.UUID) (*models.StudySession, error)
	GetActiveSession(ctx context.Context, userID uuid.UUID) (*models.StudySession, error)
}

type StudySessionHandler struct {
	sessions SessionService
	loc      *time.Location
}

// NewStudySessionHandler builds the handler. Bare dates in query strings are
// read in loc.
func NewStudySessionHandler(sessions SessionService, loc *time.Location) *StudySessionHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &StudySessionHandler{sessions: sessions, loc: loc}
}

func (h *StudySessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req services.StartSessionInput
	if err := decodeBody(r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp(services.KindValidation, "Invalid request body", r))
		return
	}

	session, err := h.sessions.StartSession(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *StudySessionHandler) End(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp(services.KindValidation, "Invalid session ID", r))
		return
	}

	var req services.EndSessionInput
	if err := decodeBody(r, &req, true); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp(services.KindValidation, "Invalid request body", r))
		return
	}

	session, err := h.sessions.EndSession(r.Context(), sessionID, userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *StudySessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	q := r.URL.Query()

	filter := models.SessionFilter{Subject: q.Get("subject")}
	fields := map[string]string{}

	if v := q.Get("start_date"); v != "" {
		start, err := parseDateParam(v, h.loc, false)
		if err != nil {
			fields["start_date"] = "must be RFC3339 or YYYY-MM-DD"
		} else {
			filter.StartDate = &start
		}
	}
	if v := q.Get("end_date"); v != "" {
		end, err := parseDateParam(v, h.loc, true)
		if err != nil {
			fields["end_date"] = "must be RFC3339 or YYYY-MM-DD"
		} else {
			filter.EndDate = &end
		}
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields(services.KindValidation, "Validation failed", fields, r))
		return
	}

	sessions, err := h.sessions.ListSessions(r.Context(), userID, filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

func (h *StudySessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp(services.KindValidation, "Invalid session ID", r))
		return
	}

	session, err := h.sessions.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *StudySessionHandler) Active(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	session, err := h.sessions.GetActiveSession(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": session,
	})
}

// parseDateParam accepts RFC3339 or a bare date in loc. With endOfDay a bare
// date covers the whole day.
func parseDateParam(v string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, loc)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}
