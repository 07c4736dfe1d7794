// Package realtimedb stores users and archived profiles in the realtime
// database tree:
//
//	users/<phone>    {profile_id, name, email, created_at, last_login}
//	profiles/<id>    {profile, created_at, cv, cv_generated_at,
//	                  media_files, last_media_upload}
package realtimedb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spanisami/cv-backend/internal/apperror"
	"github.com/spanisami/cv-backend/internal/model"
	rtdb "github.com/spanisami/cv-backend/internal/realtimedb"
	"github.com/spanisami/cv-backend/internal/repository"
)

var (
	_ repository.UserRepository = (*Store)(nil)
	_ repository.ProfileArchive = (*Store)(nil)
	_ Tree                      = (*rtdb.Client)(nil)
)

// Tree is the subset of *rtdb.Client the store needs.
type Tree interface {
	Get(ctx context.Context, path string, out any) error
	GetETag(ctx context.Context, path string, out any) (string, error)
	SetIfMatch(ctx context.Context, path string, v any, etag string) error
	Set(ctx context.Context, path string, v any) error
	Update(ctx context.Context, path string, fields map[string]any) error
}

type Store struct {
	tree Tree
}

func New(tree Tree) *Store {
	return &Store{tree: tree}
}

type userNode struct {
	ProfileID string    `json:"profile_id"`
	Name      *string   `json:"name"`
	Email     *string   `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	LastLogin time.Time `json:"last_login"`
}

type profileNode struct {
	Profile       string           `json:"profile"`
	CreatedAt     time.Time        `json:"created_at"`
	CV            string           `json:"cv,omitempty"`
	CVGeneratedAt *time.Time       `json:"cv_generated_at,omitempty"`
	MediaFiles    *model.MediaFile `json:"media_files,omitempty"`
}

// validKey reports whether s can be used as a single node name. The realtime
// database forbids . # $ [ ] in keys, and / would address another node.
func validKey(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/.#$[]\x00")
}

func userPath(phone string) (string, error) {
	if !validKey(phone) {
		return "", apperror.ValidationFailed("phone", "phone number contains invalid characters")
	}
	return "users/" + phone, nil
}

func profilePath(id string) (string, error) {
	if !validKey(id) {
		return "", apperror.NotFound("profile", id)
	}
	return "profiles/" + id, nil
}

func (s *Store) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	path, err := userPath(phone)
	if err != nil {
		return nil, err
	}

	var n userNode
	if err := s.tree.Get(ctx, path, &n); err != nil {
		if errors.Is(err, rtdb.ErrNotFound) {
			return nil, apperror.NotFound("user", phone)
		}
		return nil, fmt.Errorf("realtimedb: getting user %s: %w", phone, err)
	}
	return &model.User{
		Phone:     phone,
		ProfileID: n.ProfileID,
		Name:      n.Name,
		Email:     n.Email,
		CreatedAt: n.CreatedAt,
		LastLogin: n.LastLogin,
	}, nil
}

// Create writes the user only if the node is still absent, using the node's
// ETag as a precondition. Losing that race yields apperror.ErrConflict.
func (s *Store) Create(ctx context.Context, user *model.User) error {
	path, err := userPath(user.Phone)
	if err != nil {
		return err
	}

	etag, err := s.tree.GetETag(ctx, path, nil)
	switch {
	case err == nil:
		return apperror.Conflict("user", user.Phone)
	case !errors.Is(err, rtdb.ErrNotFound):
		return fmt.Errorf("realtimedb: checking user %s: %w", user.Phone, err)
	}

	n := userNode{
		ProfileID: user.ProfileID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		LastLogin: user.LastLogin,
	}
	if err := s.tree.SetIfMatch(ctx, path, n, etag); err != nil {
		if errors.Is(err, rtdb.ErrPreconditionFailed) {
			return apperror.Conflict("user", user.Phone)
		}
		return fmt.Errorf("realtimedb: creating user %s: %w", user.Phone, err)
	}
	return nil
}

// TouchLogin patches last_login. A PATCH would happily create a stub node
// for an unknown phone, so existence is checked first.
func (s *Store) TouchLogin(ctx context.Context, phone string, at time.Time) error {
	if _, err := s.GetByPhone(ctx, phone); err != nil {
		return err
	}
	path, err := userPath(phone)
	if err != nil {
		return err
	}
	err = s.tree.Update(ctx, path, map[string]any{
		"last_login": at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("realtimedb: updating last_login for %s: %w", phone, err)
	}
	return nil
}

func (s *Store) SaveProfile(ctx context.Context, profile *model.Profile) error {
	path, err := profilePath(profile.ID)
	if err != nil {
		return err
	}
	err = s.tree.Set(ctx, path, profileNode{
		Profile:   profile.Content,
		CreatedAt: profile.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("realtimedb: saving profile %s: %w", profile.ID, err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	path, err := profilePath(id)
	if err != nil {
		return nil, err
	}

	var n profileNode
	if err := s.tree.Get(ctx, path, &n); err != nil {
		if errors.Is(err, rtdb.ErrNotFound) {
			return nil, apperror.NotFound("profile", id)
		}
		return nil, fmt.Errorf("realtimedb: getting profile %s: %w", id, err)
	}
	return &model.Profile{
		ID:            id,
		Content:       n.Profile,
		CV:            n.CV,
		CreatedAt:     n.CreatedAt,
		CVGeneratedAt: n.CVGeneratedAt,
	}, nil
}

func (s *Store) SaveCV(ctx context.Context, id, cv string, at time.Time) error {
	path, err := profilePath(id)
	if err != nil {
		return err
	}
	err = s.tree.Update(ctx, path, map[string]any{
		"cv":              cv,
		"cv_generated_at": at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("realtimedb: saving cv for %s: %w", id, err)
	}
	return nil
}

// SaveMedia records the most recent upload. Only one file is remembered.
func (s *Store) SaveMedia(ctx context.Context, id string, file model.MediaFile, at time.Time) error {
	path, err := profilePath(id)
	if err != nil {
		return err
	}
	err = s.tree.Update(ctx, path, map[string]any{
		"media_files":       file,
		"last_media_upload": at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("realtimedb: saving media for %s: %w", id, err)
	}
	return nil
}
