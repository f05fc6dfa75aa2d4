package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gratefultime/journal-api/internal/auth"
	"github.com/gratefultime/journal-api/internal/service"
)

// SummaryHandler manages AI summary endpoints.
type SummaryHandler struct {
	summaries *service.SummaryService
	logger    *slog.Logger
}

// NewSummaryHandler creates a new SummaryHandler.
func NewSummaryHandler(summaries *service.SummaryService, logger *slog.Logger) *SummaryHandler {
	return &SummaryHandler{summaries: summaries, logger: logger}
}

// MonthlySummary summarizes the caller's entries for the current month.
// GET /ai/monthlysummary
func (h *SummaryHandler) MonthlySummary(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserIDFromContext(r.Context())

	summary, err := h.summaries.MonthlySummary(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoTimezone):
			writeError(w, http.StatusNotFound, "User or timezone not found", "")
		case errors.Is(err, service.ErrInvalidTimezone):
			writeError(w, http.StatusBadRequest, "Invalid timezone", "")
		case errors.Is(err, service.ErrNoEntriesFound):
			writeJSON(w, http.StatusOK, map[string]string{"message": "No entries found for this month"})
		case errors.Is(err, service.ErrSummaryUpstream):
			h.logger.Error("summary generation failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, "Failed to generate summary", "")
		default:
			h.logger.Error("summary request failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Monthly summary generated",
		"summary": summary,
	})
}
