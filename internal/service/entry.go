package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/gratefultime/journal-api/internal/model"
	"github.com/gratefultime/journal-api/internal/repository"
)

// Entry service errors.
var (
	ErrAccountInactive  = errors.New("account is inactive")
	ErrAlreadySubmitted = errors.New("already submitted today")
	ErrEntryNotFound    = errors.New("entry not found")
	ErrEntryNotOwned    = errors.New("entry belongs to another user")
	ErrNotTodaysEntry   = errors.New("can only delete today's entry")
)

const (
	gratitudeCount   = 3
	maxGratitudeLen  = 50
	maxPromptRespLen = 100
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// EntryStore is the persistence surface the entry service needs.
// *repository.Repository satisfies it.
type EntryStore interface {
	CreateEntry(ctx context.Context, entry *model.Entry) error
	GetEntryByID(ctx context.Context, id string) (*model.Entry, error)
	ListEntries(ctx context.Context, userID string, limit, offset int) ([]*model.Entry, error)
	CountEntries(ctx context.Context, userID string) (int, error)
	ListEntryDays(ctx context.Context, userID string) ([]time.Time, error)
	GetEntryBetween(ctx context.Context, userID string, start, end time.Time) (*model.Entry, error)
	ListEntriesBetween(ctx context.Context, userID string, start, end time.Time) ([]*model.Entry, error)
	DeleteEntry(ctx context.Context, id string) error
}

// EntryService owns journal entry business rules.
type EntryService struct {
	entries EntryStore
	users   UserStore

	// now is injectable for tests of the one-entry-per-day rule.
	now func() time.Time
}

// NewEntryService creates an EntryService.
func NewEntryService(entries EntryStore, users UserStore) *EntryService {
	return &EntryService{
		entries: entries,
		users:   users,
		now:     time.Now,
	}
}

// CreateEntryInput defines input for submitting a journal entry.
type CreateEntryInput struct {
	Gratitudes     []string
	Prompt         string
	PromptResponse string
}

// Create submits today's entry for the user. One entry per UTC calendar
// day; inactive accounts cannot submit.
func (s *EntryService) Create(ctx context.Context, userID string, input CreateEntryInput) (*model.Entry, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrAccountInactive
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !user.Active {
		return nil, ErrAccountInactive
	}

	if len(input.Gratitudes) != gratitudeCount {
		return nil, validationErr("entry1", "Three entries are required")
	}
	for i, g := range input.Gratitudes {
		field := fmt.Sprintf("entry%d", i+1)
		if g == "" {
			return nil, validationErr(field, "Entry is required")
		}
		if utf8.RuneCountInString(g) > maxGratitudeLen {
			return nil, validationErr(field, "Entry must be 50 characters or fewer")
		}
	}
	if input.PromptResponse == "" {
		return nil, validationErr("promptResponse", "Reflection prompt response is required")
	}
	if utf8.RuneCountInString(input.PromptResponse) > maxPromptRespLen {
		return nil, validationErr("promptResponse", "Reflection prompt response must be 100 characters or fewer")
	}

	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if _, err := s.entries.GetEntryBetween(ctx, userID, dayStart, dayStart.Add(24*time.Hour)); err == nil {
		return nil, ErrAlreadySubmitted
	} else if !errors.Is(err, repository.ErrEntryNotFound) {
		return nil, fmt.Errorf("check today's entry: %w", err)
	}

	entry := &model.Entry{
		ID:             ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		UserID:         userID,
		Gratitudes:     input.Gratitudes,
		Prompt:         input.Prompt,
		PromptResponse: input.PromptResponse,
		CreatedAt:      now,
	}

	if err := s.entries.CreateEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("create entry: %w", err)
	}

	return entry, nil
}

// ListResult is a page of entries.
type ListResult struct {
	Entries    []*model.Entry
	NextOffset *int
}

// List returns a page of the user's entries, newest first.
func (s *EntryService) List(ctx context.Context, userID string, limit, offset int) (*ListResult, error) {
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	total, err := s.entries.CountEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}

	entries, err := s.entries.ListEntries(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	result := &ListResult{Entries: entries}
	if offset+limit < total {
		next := offset + limit
		result.NextOffset = &next
	}
	return result, nil
}

// Days returns the submission timestamps of all of the user's entries.
func (s *EntryService) Days(ctx context.Context, userID string) ([]time.Time, error) {
	days, err := s.entries.ListEntryDays(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list entry days: %w", err)
	}
	return days, nil
}

// ByDay returns the user's entry for the given UTC calendar day.
func (s *EntryService) ByDay(ctx context.Context, userID string, day time.Time) (*model.Entry, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	entry, err := s.entries.GetEntryBetween(ctx, userID, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		if errors.Is(err, repository.ErrEntryNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("get entry by day: %w", err)
	}
	return entry, nil
}

// Get returns one of the user's entries by id; ownership is enforced.
func (s *EntryService) Get(ctx context.Context, userID, entryID string) (*model.Entry, error) {
	entry, err := s.lookupOwned(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete removes one of the user's entries; only today's entry may be
// deleted.
func (s *EntryService) Delete(ctx context.Context, userID, entryID string) error {
	entry, err := s.lookupOwned(ctx, userID, entryID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	y1, m1, d1 := entry.CreatedAt.UTC().Date()
	y2, m2, d2 := now.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		return ErrNotTodaysEntry
	}

	if err := s.entries.DeleteEntry(ctx, entryID); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (s *EntryService) lookupOwned(ctx context.Context, userID, entryID string) (*model.Entry, error) {
	entry, err := s.entries.GetEntryByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, repository.ErrEntryNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}
	if entry.UserID != userID {
		return nil, ErrEntryNotOwned
	}
	return entry, nil
}
