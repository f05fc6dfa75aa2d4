package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gratefultime/journal-api/internal/auth"
	"github.com/gratefultime/journal-api/internal/service"
)

// UserHandler manages user profile endpoints.
type UserHandler struct {
	profile *service.ProfileService
	logger  *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(profile *service.ProfileService, logger *slog.Logger) *UserHandler {
	return &UserHandler{profile: profile, logger: logger}
}

// Info returns the caller's profile.
// GET /users/info
func (h *UserHandler) Info(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserIDFromContext(r.Context())

	user, err := h.profile.Info(r.Context(), userID)
	if err != nil {
		h.writeUserError(w, err)
		return
	}

	var email string
	if user.Email != nil {
		email = *user.Email
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User information retrieved successfully",
		"data": map[string]any{
			"user_id":               user.ID,
			"email":                 email,
			"username":              user.Username,
			"preferred_unlock_time": user.PreferredUnlockTime,
		},
	})
}

// UnlockTime returns the caller's preferred unlock hour.
// GET /users/unlocktime
func (h *UserHandler) UnlockTime(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserIDFromContext(r.Context())

	hour, err := h.profile.UnlockTime(r.Context(), userID)
	if err != nil {
		h.writeUserError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Preferred unlock time retrieved successfully",
		"data":    map[string]int{"preferred_unlock_time": hour},
	})
}

type updateUnlockTimeRequest struct {
	PreferredUnlockTime *json.Number `json:"preferred_unlock_time"`
}

// SetUnlockTime updates the caller's preferred unlock hour.
// PUT /users/unlocktime
func (h *UserHandler) SetUnlockTime(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserIDFromContext(r.Context())

	var req updateUnlockTimeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PreferredUnlockTime == nil {
		writeError(w, http.StatusBadRequest, "Unlock time is required", "unlockTime")
		return
	}

	hour, err := req.PreferredUnlockTime.Int64()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unlock time must be a valid integer", "unlockTime")
		return
	}

	if err := h.profile.SetUnlockTime(r.Context(), userID, int(hour)); err != nil {
		h.writeUserError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Preferred unlock time updated successfully",
		"data":    map[string]int64{"preferred_unlock_time": hour},
	})
}

func (h *UserHandler) writeUserError(w http.ResponseWriter, err error) {
	var vErr *service.ValidationError

	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Message, vErr.Field)
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User does not exist", "")
	default:
		h.logger.Error("user request failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}
