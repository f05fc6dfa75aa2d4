package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gratefultime/journal-api/internal/apple"
	"github.com/gratefultime/journal-api/internal/model"
	"github.com/gratefultime/journal-api/internal/repository"
)

// fakeUserStore is an in-memory UserStore mirroring the repository's
// sentinel errors and case-insensitive uniqueness.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*model.User)}
}

func (s *fakeUserStore) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if user.Email != nil && u.Email != nil && strings.EqualFold(*u.Email, *user.Email) {
			return repository.ErrEmailExists
		}
		if strings.EqualFold(u.Username, user.Username) {
			return repository.ErrUsernameExists
		}
		if user.AppleUserID != nil && u.AppleUserID != nil && *u.AppleUserID == *user.AppleUserID {
			return repository.ErrAppleIDExists
		}
	}

	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *fakeUserStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email != nil && strings.EqualFold(*u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *fakeUserStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *fakeUserStore) GetUserByAppleID(_ context.Context, appleUserID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.AppleUserID != nil && *u.AppleUserID == appleUserID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *fakeUserStore) SetUserActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Active = active
	return nil
}

func (s *fakeUserStore) UpdateUnlockTime(_ context.Context, id string, hour int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PreferredUnlockTime = hour
	return nil
}

// fakeEntryStore is an in-memory EntryStore.
type fakeEntryStore struct {
	mu      sync.Mutex
	entries map[string]*model.Entry
}

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{entries: make(map[string]*model.Entry)}
}

func (s *fakeEntryStore) CreateEntry(_ context.Context, entry *model.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.entries[entry.ID] = &cp
	return nil
}

func (s *fakeEntryStore) GetEntryByID(_ context.Context, id string) (*model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, repository.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *fakeEntryStore) userEntries(userID string) []*model.Entry {
	var out []*model.Entry
	for _, e := range s.entries {
		if e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *fakeEntryStore) ListEntries(_ context.Context, userID string, limit, offset int) ([]*model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.userEntries(userID)
	// Newest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *fakeEntryStore) CountEntries(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.userEntries(userID)), nil
}

func (s *fakeEntryStore) ListEntryDays(_ context.Context, userID string) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var days []time.Time
	for _, e := range s.userEntries(userID) {
		days = append(days, e.CreatedAt)
	}
	return days, nil
}

func (s *fakeEntryStore) GetEntryBetween(_ context.Context, userID string, start, end time.Time) (*model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.userEntries(userID) {
		if !e.CreatedAt.Before(start) && e.CreatedAt.Before(end) {
			return e, nil
		}
	}
	return nil, repository.ErrEntryNotFound
}

func (s *fakeEntryStore) ListEntriesBetween(_ context.Context, userID string, start, end time.Time) ([]*model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Entry
	for _, e := range s.userEntries(userID) {
		if !e.CreatedAt.Before(start) && e.CreatedAt.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeEntryStore) DeleteEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return repository.ErrEntryNotFound
	}
	delete(s.entries, id)
	return nil
}

// fakeVerifier returns canned claims or a canned error.
type fakeVerifier struct {
	claims *apple.IdentityClaims
	err    error

	calls int
}

func (v *fakeVerifier) Verify(_ context.Context, _, claimedUserID string) (*apple.IdentityClaims, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	if v.claims.Subject != claimedUserID {
		return nil, apple.ErrIdentityMismatch
	}
	return v.claims, nil
}

// fakeSummarizer records the prompt it was given.
type fakeSummarizer struct {
	response          string
	err               error
	systemInstruction string
	prompt            string
}

func (s *fakeSummarizer) Summarize(_ context.Context, systemInstruction, prompt string) (string, error) {
	s.systemInstruction = systemInstruction
	s.prompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}
