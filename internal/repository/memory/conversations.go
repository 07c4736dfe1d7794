package memory

import (
	"context"
	"sync"

	"github.com/spanisami/cv-backend/internal/model"
	"github.com/spanisami/cv-backend/internal/repository"
)

var _ repository.ConversationStore = (*ConversationStore)(nil)

// ConversationStore holds chat transcripts. Transcripts are append-only and
// are never pruned or expired.
type ConversationStore struct {
	mu       sync.Mutex
	sessions map[string][]model.ChatMessage
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{sessions: make(map[string][]model.ChatMessage)}
}

func (s *ConversationStore) History(_ context.Context, sessionID string) ([]model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.sessions[sessionID]
	if len(msgs) == 0 {
		return nil, nil
	}
	out := make([]model.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *ConversationStore) Append(_ context.Context, sessionID string, msgs ...model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = append(s.sessions[sessionID], msgs...)
	return nil
}
