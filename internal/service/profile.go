package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gratefultime/journal-api/internal/model"
	"github.com/gratefultime/journal-api/internal/repository"
)

const maxUnlockHour = 24

// ProfileService owns user profile settings.
type ProfileService struct {
	users UserStore
}

// NewProfileService creates a ProfileService.
func NewProfileService(users UserStore) *ProfileService {
	return &ProfileService{users: users}
}

// Info returns the user's profile record.
func (s *ProfileService) Info(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// UnlockTime returns the user's preferred unlock hour.
func (s *ProfileService) UnlockTime(ctx context.Context, userID string) (int, error) {
	user, err := s.Info(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.PreferredUnlockTime, nil
}

// SetUnlockTime updates the user's preferred unlock hour (0-24).
func (s *ProfileService) SetUnlockTime(ctx context.Context, userID string, hour int) error {
	if hour < 0 || hour > maxUnlockHour {
		return validationErr("unlockTime", "Unlock time must be between 0 and 24")
	}

	if err := s.users.UpdateUnlockTime(ctx, userID, hour); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update unlock time: %w", err)
	}
	return nil
}
