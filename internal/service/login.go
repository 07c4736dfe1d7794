package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/spanisami/cv-backend/internal/apperror"
	"github.com/spanisami/cv-backend/internal/auth"
	"github.com/spanisami/cv-backend/internal/model"
	"github.com/spanisami/cv-backend/internal/phone"
	"github.com/spanisami/cv-backend/internal/repository"
	"github.com/spanisami/cv-backend/internal/sms"
)

// DefaultCodeTTL is how long an issued login code stays valid.
const DefaultCodeTTL = 5 * time.Minute

// invalidCodeMessage is shared by the unknown, wrong and expired cases so a
// caller cannot tell them apart.
const invalidCodeMessage = "Invalid or expired code"

// LoginService runs the phone one-time-code login:
//
//	RequestCode: normalize → generate → hash → store (overwrite) → SMS
//	VerifyCode:  normalize → consume if it matches → upsert user
//
// CONCURRENCY:
// Issue and verify for the same phone are serialized with a per-phone lock.
// Without it a verify could check the old code while a re-issue is replacing
// it. Different phones never wait on each other.
//
// The SMS sender is optional. When it is nil or fails, the code still comes
// back in the RequestCode result (demo mode) and Delivered is false.
type LoginService struct {
	codes  repository.CodeStore
	users  repository.UserRepository
	sender sms.Sender

	generator *auth.CodeGenerator
	hasher    *auth.CodeHasher
	ttl       time.Duration

	locks  *keyedMutex
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// NewLoginService wires the login flow. sender may be nil; ttl <= 0 means
// DefaultCodeTTL.
func NewLoginService(
	codes repository.CodeStore,
	users repository.UserRepository,
	sender sms.Sender,
	hasher *auth.CodeHasher,
	ttl time.Duration,
	logger *slog.Logger,
) *LoginService {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &LoginService{
		codes:     codes,
		users:     users,
		sender:    sender,
		generator: auth.NewCodeGenerator(),
		hasher:    hasher,
		ttl:       ttl,
		locks:     newKeyedMutex(),
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    logger,
	}
}

// CodeIssue is the result of RequestCode.
type CodeIssue struct {
	Phone     string
	Code      string
	ExpiresAt time.Time
	Delivered bool
}

// LoginResult is the result of a successful VerifyCode.
type LoginResult struct {
	NewUser   bool
	ProfileID string
	Name      *string
	Message   string
}

// RequestCode issues a fresh code for rawPhone, replacing any pending one.
func (s *LoginService) RequestCode(ctx context.Context, rawPhone string) (*CodeIssue, error) {
	canonical, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, err
	}

	issue, err := s.issue(ctx, canonical)
	if err != nil {
		return nil, err
	}

	// Delivery happens outside the per-phone lock; a slow gateway must not
	// hold up a verification for the same number.
	issue.Delivered = s.deliver(ctx, issue)
	return issue, nil
}

func (s *LoginService) issue(ctx context.Context, canonical string) (*CodeIssue, error) {
	unlock := s.locks.Lock(canonical)
	defer unlock()

	code, err := s.generator.Generate()
	if err != nil {
		return nil, fmt.Errorf("service/login: generating code: %w", err)
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, fmt.Errorf("service/login: hashing code: %w", err)
	}

	expiresAt := s.now().Add(s.ttl)
	err = s.codes.Put(ctx, model.LoginCode{
		Phone:     canonical,
		CodeHash:  hash,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("service/login: storing code for %s: %w", canonical, err)
	}

	s.logger.Info("login code issued",
		slog.String("phone", canonical),
		slog.Time("expires_at", expiresAt),
	)

	return &CodeIssue{Phone: canonical, Code: code, ExpiresAt: expiresAt}, nil
}

// deliver reports whether the SMS gateway accepted the message. Failures
// are logged and swallowed.
func (s *LoginService) deliver(ctx context.Context, issue *CodeIssue) bool {
	if s.sender == nil {
		s.logger.Warn("sms sender not configured, code returned in-band only",
			slog.String("phone", issue.Phone),
		)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, sms.SendTimeout)
	defer cancel()

	body := fmt.Sprintf("Your SpaniSami login code is %s. It expires in %d minutes.",
		issue.Code, int(s.ttl.Round(time.Minute)/time.Minute))

	sid, err := s.sender.Send(ctx, issue.Phone, body)
	if err != nil {
		s.logger.Warn("sms delivery failed, code returned in-band",
			slog.String("phone", issue.Phone),
			slog.String("error", err.Error()),
		)
		return false
	}

	s.logger.Info("login code sent", slog.String("phone", issue.Phone), slog.String("sid", sid))
	return true
}

// VerifyCode checks code against the pending code for rawPhone. On success
// the code is consumed (single use) and the user record is created or its
// last_login refreshed.
//
// A wrong code leaves the pending code in place, so the user can retry until
// it expires.
func (s *LoginService) VerifyCode(ctx context.Context, rawPhone, code string) (*LoginResult, error) {
	canonical, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, err
	}
	// compared byte for byte, so " 123456" is a wrong code
	if code == "" {
		return nil, apperror.ValidationFailed("code", "code required")
	}

	if err := s.consume(ctx, canonical, code); err != nil {
		return nil, err
	}

	return s.upsertUser(ctx, canonical)
}

func (s *LoginService) consume(ctx context.Context, canonical, code string) error {
	unlock := s.locks.Lock(canonical)
	defer unlock()

	now := s.now()
	_, err := s.codes.Consume(ctx, canonical, func(c model.LoginCode) bool {
		if c.Expired(now) {
			return false
		}
		return s.hasher.Verify(c.CodeHash, code) == nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperror.ErrNotFound), errors.Is(err, apperror.ErrInvalidCredential):
		s.logger.Info("login code rejected", slog.String("phone", canonical))
		return apperror.InvalidCredential(invalidCodeMessage)
	default:
		return fmt.Errorf("service/login: consuming code for %s: %w", canonical, err)
	}
}

// upsertUser finds or creates the user for a verified phone.
//
// Two first-time verifications can race to create the user. The loser gets
// ErrConflict from Create and re-reads the winner's record, so both callers
// end up with the same profile_id.
func (s *LoginService) upsertUser(ctx context.Context, canonical string) (*LoginResult, error) {
	now := s.now()

	existing, err := s.users.GetByPhone(ctx, canonical)
	switch {
	case err == nil:
		return s.returning(ctx, existing, now)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/login: looking up user %s: %w", canonical, err)
	}

	user := &model.User{
		Phone:     canonical,
		ProfileID: s.newID(),
		CreatedAt: now,
		LastLogin: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, fmt.Errorf("service/login: creating user %s: %w", canonical, err)
		}
		winner, err := s.users.GetByPhone(ctx, canonical)
		if err != nil {
			return nil, fmt.Errorf("service/login: re-reading user %s: %w", canonical, err)
		}
		return s.returning(ctx, winner, now)
	}

	s.logger.Info("user created",
		slog.String("phone", canonical),
		slog.String("profile_id", user.ProfileID),
	)

	return &LoginResult{
		NewUser:   true,
		ProfileID: user.ProfileID,
		Message:   "Welcome! Your account has been created.",
	}, nil
}

func (s *LoginService) returning(ctx context.Context, user *model.User, now time.Time) (*LoginResult, error) {
	if err := s.users.TouchLogin(ctx, user.Phone, now); err != nil {
		return nil, fmt.Errorf("service/login: updating last_login for %s: %w", user.Phone, err)
	}
	return &LoginResult{
		NewUser:   false,
		ProfileID: user.ProfileID,
		Name:      user.Name,
		Message:   "Welcome back!",
	}, nil
}
