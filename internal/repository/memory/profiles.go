package memory

import (
	"context"
	"sync"
	"time"

	"github.com/spanisami/cv-backend/internal/apperror"
	"github.com/spanisami/cv-backend/internal/model"
	"github.com/spanisami/cv-backend/internal/repository"
)

var _ repository.ProfileRepository = (*ProfileStore)(nil)

// ProfileStore is the in-process profile registry.
// Reads vastly outnumber writes (one write per build, one per CV), hence RWMutex.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]model.Profile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]model.Profile)}
}

// Create stores a copy of profile. Ids are generated by the caller and are
// unique by construction; an existing id is reported as a conflict anyway.
func (s *ProfileStore) Create(_ context.Context, profile *model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.ID]; exists {
		return apperror.Conflict("profile", profile.ID)
	}
	s.profiles[profile.ID] = *profile
	return nil
}

// GetByID returns a copy so callers cannot mutate the registry.
func (s *ProfileStore) GetByID(_ context.Context, id string) (*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, apperror.NotFound("profile", id)
	}
	return &p, nil
}

func (s *ProfileStore) SetCV(_ context.Context, id, cv string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return apperror.NotFound("profile", id)
	}
	p.CV = cv
	p.CVGeneratedAt = &at
	s.profiles[id] = p
	return nil
}

func (s *ProfileStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles), nil
}
