// Package memory implements the repository contracts with process-local,
// mutex-guarded maps. Contents live as long as the process does.
package memory

import (
	"context"
	"sync"

	"github.com/spanisami/cv-backend/internal/apperror"
	"github.com/spanisami/cv-backend/internal/model"
	"github.com/spanisami/cv-backend/internal/repository"
)

var _ repository.CodeStore = (*CodeStore)(nil)

// CodeStore keeps pending login codes in a map keyed by canonical phone.
// Expired entries are not swept; they are rejected lazily on Consume and
// replaced by the next Put for the same phone.
type CodeStore struct {
	mu    sync.Mutex
	codes map[string]model.LoginCode
}

func NewCodeStore() *CodeStore {
	return &CodeStore{codes: make(map[string]model.LoginCode)}
}

func (s *CodeStore) Put(_ context.Context, code model.LoginCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes[code.Phone] = code
	return nil
}

// Consume runs match under the store lock, so the check and the delete
// cannot interleave with a Put for the same phone.
func (s *CodeStore) Consume(_ context.Context, phone string, match func(model.LoginCode) bool) (model.LoginCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.codes[phone]
	if !ok {
		return model.LoginCode{}, apperror.NotFound("login code", phone)
	}
	if !match(code) {
		return model.LoginCode{}, apperror.InvalidCredential("login code does not match")
	}

	delete(s.codes, phone)
	return code, nil
}
