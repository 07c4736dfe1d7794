package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/spanisami/cv-backend/internal/apperror"
	"github.com/spanisami/cv-backend/internal/llm"
	"github.com/spanisami/cv-backend/internal/model"
	"github.com/spanisami/cv-backend/internal/repository"
)

// ChatRequest is one user turn.
type ChatRequest struct {
	SessionID string
	Message   string
	Language  string
	Mode      string // llm.ModeCV (default) or llm.ModeInterview
}

// ChatReply is the assistant's answer and the session it belongs to.
type ChatReply struct {
	SessionID string
	Reply     string
}

// ChatService keeps multi-turn conversations with the LLM.
//
// A turn is recorded only after the model answered, so a failed call leaves
// the transcript as it was and the user can simply resend. Turns within one
// session are serialized.
type ChatService struct {
	conversations repository.ConversationStore
	gen           generation
	sessions      *keyedMutex
	logger        *slog.Logger
}

func NewChatService(
	conversations repository.ConversationStore,
	gen llm.Generator,
	llmTimeout time.Duration,
	logger *slog.Logger,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		gen:           newGeneration(gen, llmTimeout, logger),
		sessions:      newKeyedMutex(),
		logger:        logger,
	}
}

func (s *ChatService) Reply(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, apperror.ValidationFailed("message", "message is required")
	}

	mode := strings.TrimSpace(req.Mode)
	if mode == "" {
		mode = llm.ModeCV
	}
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = DefaultLanguage
	}
	instruction, ok := llm.ChatInstruction(mode, language)
	if !ok {
		return nil, apperror.ValidationFailed("mode",
			fmt.Sprintf("mode must be %q or %q", llm.ModeCV, llm.ModeInterview))
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = xid.New().String()
	}

	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	history, err := s.conversations.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("service/chat: loading session %s: %w", sessionID, err)
	}

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: instruction})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})

	reply, err := s.gen.chat(ctx, "Failed to generate reply", msgs)
	if err != nil {
		return nil, err
	}

	err = s.conversations.Append(ctx, sessionID,
		model.ChatMessage{Role: model.RoleUser, Content: message},
		model.ChatMessage{Role: model.RoleAssistant, Content: reply},
	)
	if err != nil {
		return nil, fmt.Errorf("service/chat: saving session %s: %w", sessionID, err)
	}

	s.logger.Debug("chat turn",
		slog.String("session_id", sessionID),
		slog.String("mode", mode),
		slog.Int("turns", len(history)/2+1),
	)

	return &ChatReply{SessionID: sessionID, Reply: reply}, nil
}
