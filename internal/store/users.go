package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/whisper/moderation/internal/entity"
)

type profileRow struct {
	AppHandle    string `redis:"app_handle"`
	UserHandle   string `redis:"user_handle"`
	FirstName    string `redis:"first_name"`
	LastName     string `redis:"last_name"`
	Bio          string `redis:"bio"`
	PhotoHandle  string `redis:"photo_handle"`
	ReviewStatus string `redis:"review_status"`
}

// Users stores per-app user profiles.
type Users struct {
	client *redis.Client
}

// NewUsers creates a profile store using the provided Redis client.
func NewUsers(client *redis.Client) *Users {
	return &Users{client: client}
}

func profileKey(appHandle, userHandle string) string {
	return ProfilePrefix + appHandle + ":" + userHandle
}

// ReadUserProfile returns the profile, or nil if it does not exist.
func (s *Users) ReadUserProfile(ctx context.Context, appHandle, userHandle string) (*entity.UserProfile, error) {
	var row profileRow
	if err := s.client.HGetAll(ctx, profileKey(appHandle, userHandle)).Scan(&row); err != nil {
		return nil, fmt.Errorf("store: read profile %s/%s: %w", appHandle, userHandle, err)
	}
	if row.UserHandle == "" {
		return nil, nil
	}
	return &entity.UserProfile{
		AppHandle:    row.AppHandle,
		UserHandle:   row.UserHandle,
		FirstName:    row.FirstName,
		LastName:     row.LastName,
		Bio:          row.Bio,
		PhotoHandle:  row.PhotoHandle,
		ReviewStatus: entity.ReviewStatus(row.ReviewStatus),
	}, nil
}

// UpdateUserProfile writes the moderation-owned fields of a profile.
func (s *Users) UpdateUserProfile(ctx context.Context, p *entity.UserProfile) error {
	err := update(ctx, s.client, profileKey(p.AppHandle, p.UserHandle), map[string]any{
		"photo_handle":  p.PhotoHandle,
		"review_status": string(p.ReviewStatus),
	})
	if err != nil {
		return fmt.Errorf("store: update profile %s/%s: %w", p.AppHandle, p.UserHandle, err)
	}
	return nil
}

// UpdateUserProfileStatus writes only the review status of a profile.
func (s *Users) UpdateUserProfileStatus(ctx context.Context, appHandle, userHandle string, status entity.ReviewStatus) error {
	if err := updateStatus(ctx, s.client, profileKey(appHandle, userHandle), status); err != nil {
		return fmt.Errorf("store: update profile status %s/%s: %w", appHandle, userHandle, err)
	}
	return nil
}
