package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gratefultime/journal-api/internal/auth"
	"github.com/gratefultime/journal-api/internal/model"
	"github.com/gratefultime/journal-api/internal/service"
)

// EntryHandler manages journal entry endpoints. All routes sit behind
// the auth middleware; the user id always comes from the request
// context, never from the request body.
type EntryHandler struct {
	entries *service.EntryService
	logger  *slog.Logger
}

// NewEntryHandler creates a new EntryHandler.
func NewEntryHandler(entries *service.EntryService, logger *slog.Logger) *EntryHandler {
	return &EntryHandler{entries: entries, logger: logger}
}

type createEntryRequest struct {
	Entry1             string `json:"entry1"`
	Entry2             string `json:"entry2"`
	Entry3             string `json:"entry3"`
	UserPrompt         string `json:"user_prompt"`
	UserPromptResponse string `json:"user_prompt_response"`
}

type entryData struct {
	ID                 string `json:"id"`
	Entry1             string `json:"entry1"`
	Entry2             string `json:"entry2"`
	Entry3             string `json:"entry3"`
	UserPrompt         string `json:"user_prompt"`
	UserPromptResponse string `json:"user_prompt_response"`
	Timestamp          string `json:"timestamp"`
}

func toEntryData(e *model.Entry) entryData {
	d := entryData{
		ID:                 e.ID,
		UserPrompt:         e.Prompt,
		UserPromptResponse: e.PromptResponse,
		Timestamp:          formatTimestamp(e.CreatedAt),
	}
	if len(e.Gratitudes) == 3 {
		d.Entry1, d.Entry2, d.Entry3 = e.Gratitudes[0], e.Gratitudes[1], e.Gratitudes[2]
	}
	return d
}

// Create submits today's entry.
// POST /entries
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := auth.MustUserIDFromContext(r.Context())

	entry, err := h.entries.Create(r.Context(), userID, service.CreateEntryInput{
		Gratitudes:     []string{req.Entry1, req.Entry2, req.Entry3},
		Prompt:         req.UserPrompt,
		PromptResponse: req.UserPromptResponse,
	})
	if err != nil {
		h.writeEntryError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Entry saved",
		"data": map[string]string{
			"id":        entry.ID,
			"timestamp": formatTimestamp(entry.CreatedAt),
		},
	})
}

// List returns a page of the caller's entries, newest first.
// GET /entries?limit=10&offset=0
func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserIDFromContext(r.Context())

	limit := queryInt(r, "limit", 10)
	offset := queryInt(r, "offset", 0)

	page, err := h.entries.List(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeEntryError(w, err)
		return
	}

	data := make([]entryData, 0, len(page.Entries))
	for _, e := range page.Entries {
		data = append(data, toEntryData(e))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Entries retrieved successfully",
		"data":       data,
		"nextOffset": page.NextOffset,
	})
}

// Days returns the submission timestamps of all of the caller's entries.
// GET /entries/days
func (h *EntryHandler) Days(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserIDFromContext(r.Context())

	days, err := h.entries.Days(r.Context(), userID)
	if err != nil {
		h.writeEntryError(w, err)
		return
	}

	data := make([]string, 0, len(days))
	for _, d := range days {
		data = append(data, formatTimestamp(d))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Entry days retrieved",
		"data":    data,
	})
}

// ByDay returns the caller's entry for one calendar day.
// GET /entries/day?date=YYYY-MM-DD
func (h *EntryHandler) ByDay(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserIDFromContext(r.Context())

	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "Date is required", "")
		return
	}

	day, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Date must be YYYY-MM-DD", "")
		return
	}

	entry, err := h.entries.ByDay(r.Context(), userID, day)
	if err != nil {
		h.writeEntryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Entry retrieved",
		"data":    toEntryData(entry),
	})
}

// Get returns one entry by id.
// GET /entries/{id}
func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserIDFromContext(r.Context())
	entryID := chi.URLParam(r, "id")

	entry, err := h.entries.Get(r.Context(), userID, entryID)
	if err != nil {
		h.writeEntryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Entry retrieved",
		"data":    toEntryData(entry),
	})
}

// Delete removes one entry; only today's entry may be deleted.
// DELETE /entries/{id}
func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserIDFromContext(r.Context())
	entryID := chi.URLParam(r, "id")

	if err := h.entries.Delete(r.Context(), userID, entryID); err != nil {
		h.writeEntryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Entry deleted"})
}

func (h *EntryHandler) writeEntryError(w http.ResponseWriter, err error) {
	var vErr *service.ValidationError

	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Message, vErr.Field)
	case errors.Is(err, service.ErrAccountInactive):
		writeError(w, http.StatusForbidden, "Your account is inactive", "submission")
	case errors.Is(err, service.ErrAlreadySubmitted):
		writeError(w, http.StatusBadRequest, "Already submitted today", "submission")
	case errors.Is(err, service.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "Entry not found", "")
	case errors.Is(err, service.ErrEntryNotOwned):
		writeError(w, http.StatusForbidden, "Unauthorized access", "")
	case errors.Is(err, service.ErrNotTodaysEntry):
		writeError(w, http.StatusBadRequest, "Can only delete today's entry", "")
	default:
		h.logger.Error("entry request failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}

// queryInt parses an integer query parameter, falling back to def on
// absence or garbage.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
