// Package repository declares the storage contracts the services depend on.
//
// Each contract has an in-process implementation (memory, sqlite) and, where
// the deployment provides one, an external implementation (redis, realtimedb).
// Services only ever see these interfaces; server.New picks the concrete
// types from configuration.
package repository

import (
	"context"
	"time"

	"github.com/spanisami/cv-backend/internal/model"
)

// CodeStore keeps at most one pending login code per canonical phone.
type CodeStore interface {
	// Put stores code, replacing any previous code for the same phone.
	Put(ctx context.Context, code model.LoginCode) error

	// Consume looks up the code for phone and hands it to match. The record is
	// deleted only when match returns true, and the read and delete happen
	// atomically with respect to other Put/Consume calls for that phone.
	//
	// Returns apperror.ErrNotFound when no code exists and
	// apperror.ErrInvalidCredential when match rejects it.
	Consume(ctx context.Context, phone string, match func(model.LoginCode) bool) (model.LoginCode, error)
}

// UserRepository persists user records keyed by canonical phone.
type UserRepository interface {
	// GetByPhone returns apperror.ErrNotFound when the phone is unknown.
	GetByPhone(ctx context.Context, phone string) (*model.User, error)

	// Create inserts a new user. Returns apperror.ErrConflict when a user with
	// the same phone already exists.
	Create(ctx context.Context, user *model.User) error

	// TouchLogin sets last_login for an existing user.
	TouchLogin(ctx context.Context, phone string, at time.Time) error
}

// ProfileRepository is the process-local profile registry.
type ProfileRepository interface {
	Create(ctx context.Context, profile *model.Profile) error
	GetByID(ctx context.Context, id string) (*model.Profile, error)
	SetCV(ctx context.Context, id, cv string, at time.Time) error
	Count(ctx context.Context) (int, error)
}

// ProfileArchive mirrors profiles into durable storage outside the process.
type ProfileArchive interface {
	SaveProfile(ctx context.Context, profile *model.Profile) error
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	SaveCV(ctx context.Context, id, cv string, at time.Time) error
	SaveMedia(ctx context.Context, id string, file model.MediaFile, at time.Time) error
}

// ConversationStore holds chat transcripts keyed by session id.
type ConversationStore interface {
	// History returns a copy of the transcript; unknown sessions yield nil.
	History(ctx context.Context, sessionID string) ([]model.ChatMessage, error)

	// Append adds messages to the end of the transcript, creating it lazily.
	Append(ctx context.Context, sessionID string, msgs ...model.ChatMessage) error
}
