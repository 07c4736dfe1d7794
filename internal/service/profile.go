package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/spanisami/cv-backend/internal/apperror"
	"github.com/spanisami/cv-backend/internal/llm"
	"github.com/spanisami/cv-backend/internal/model"
	"github.com/spanisami/cv-backend/internal/repository"
)

// DefaultLanguage is used when a request does not name one.
const DefaultLanguage = "en"

type profileInputKind int

const (
	profileStructured profileInputKind = iota + 1
	profileRaw
	profileByID
)

// ProfileInput is the profile a CV is generated from. Exactly one of three
// shapes: a structured JSON document, free text, or the id of a profile
// built earlier. The zero value is invalid.
type ProfileInput struct {
	kind       profileInputKind
	structured json.RawMessage
	raw        string
	id         string
}

func StructuredProfile(doc json.RawMessage) ProfileInput {
	return ProfileInput{kind: profileStructured, structured: doc}
}

func RawProfile(text string) ProfileInput {
	return ProfileInput{kind: profileRaw, raw: text}
}

func ProfileByID(id string) ProfileInput {
	return ProfileInput{kind: profileByID, id: id}
}

// ParseProfileInput picks the input shape from a /generate_cv body. An inline
// profile wins over profile_id; a JSON string is taken as free text and any
// other JSON value as a structured document.
func ParseProfileInput(profile json.RawMessage, profileID string) (ProfileInput, error) {
	trimmed := bytes.TrimSpace(profile)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if trimmed[0] == '"' {
			var text string
			if err := json.Unmarshal(trimmed, &text); err != nil {
				return ProfileInput{}, apperror.ValidationFailed("profile", "profile must be an object or a string")
			}
			return RawProfile(text), nil
		}
		return StructuredProfile(json.RawMessage(trimmed)), nil
	}

	if id := strings.TrimSpace(profileID); id != "" {
		return ProfileByID(id), nil
	}
	return ProfileInput{}, apperror.ValidationFailed("profile", "Send either 'profile' or 'profile_id'")
}

// Stats is a snapshot of the profile counters.
type Stats struct {
	ProfilesCreated  int64 `json:"profiles_created"`
	CVsGenerated     int64 `json:"cvs_generated"`
	ProfilesInMemory int   `json:"profiles_in_memory"`
}

// ProfileService builds profiles from free text and CVs from profiles.
//
// The registry is process-local. When an archive is configured every built
// profile and generated CV is mirrored there as well, and a profile_id the
// registry does not know is looked up in the archive before giving up.
// Archive failures are logged and otherwise ignored: the archive is a
// mirror, the request already has what it needs.
type ProfileService struct {
	profiles repository.ProfileRepository
	archive  repository.ProfileArchive // optional
	gen      generation

	profilesCreated atomic.Int64
	cvsGenerated    atomic.Int64

	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// NewProfileService creates a ProfileService. archive may be nil.
func NewProfileService(
	profiles repository.ProfileRepository,
	archive repository.ProfileArchive,
	gen llm.Generator,
	llmTimeout time.Duration,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		archive:  archive,
		gen:      newGeneration(gen, llmTimeout, logger),
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logger,
	}
}

// Build turns rawText into a profile via the LLM and registers it.
// The model's output is kept verbatim apart from a surrounding code fence.
func (s *ProfileService) Build(ctx context.Context, rawText, language string) (*model.Profile, error) {
	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return nil, apperror.ValidationFailed("raw_text", "raw_text is required")
	}
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultLanguage
	}

	text, err := s.gen.generate(ctx, "Failed to build profile", llm.BuildProfilePrompt(rawText, language))
	if err != nil {
		return nil, err
	}

	profile := &model.Profile{
		ID:        s.newID(),
		Content:   llm.StripCodeFences(text),
		CreatedAt: s.now().UTC(),
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("service/profile: registering profile: %w", err)
	}
	s.profilesCreated.Add(1)

	s.logger.Info("profile built",
		slog.String("profile_id", profile.ID),
		slog.String("language", language),
	)

	if s.archive != nil {
		if err := s.archive.SaveProfile(ctx, profile); err != nil {
			s.logger.Warn("archiving profile failed",
				slog.String("profile_id", profile.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return profile, nil
}

// GenerateCV writes a CV for in. targetRole, when set, tailors the CV.
//
// Errors:
//   - apperror.ErrValidation: zero ProfileInput or empty free text
//   - apperror.ErrNotFound: profile_id unknown to registry and archive
//   - apperror.ErrUpstream / ErrUpstreamTimeout: LLM failure
func (s *ProfileService) GenerateCV(ctx context.Context, in ProfileInput, targetRole string) (string, error) {
	profileText, err := s.resolve(ctx, in)
	if err != nil {
		return "", err
	}

	cv, err := s.gen.generate(ctx, "Failed to generate CV",
		llm.BuildCVPrompt(profileText, strings.TrimSpace(targetRole)))
	if err != nil {
		return "", err
	}
	s.cvsGenerated.Add(1)

	if in.kind == profileByID {
		s.recordCV(ctx, in.id, cv)
	}
	return cv, nil
}

func (s *ProfileService) resolve(ctx context.Context, in ProfileInput) (string, error) {
	switch in.kind {
	case profileStructured:
		var buf bytes.Buffer
		if err := json.Indent(&buf, in.structured, "", "  "); err != nil {
			return "", apperror.ValidationFailed("profile", "profile is not valid JSON")
		}
		return buf.String(), nil

	case profileRaw:
		text := strings.TrimSpace(in.raw)
		if text == "" {
			return "", apperror.ValidationFailed("profile", "profile must not be empty")
		}
		return text, nil

	case profileByID:
		p, err := s.lookup(ctx, in.id)
		if err != nil {
			return "", err
		}
		return p.Content, nil

	default:
		return "", apperror.ValidationFailed("profile", "Send either 'profile' or 'profile_id'")
	}
}

func (s *ProfileService) lookup(ctx context.Context, id string) (*model.Profile, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/profile: getting profile %s: %w", id, err)
	}
	if s.archive == nil {
		return nil, apperror.NotFound("profile", id)
	}

	p, err = s.archive.GetProfile(ctx, id)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, apperror.ErrNotFound):
		return nil, apperror.NotFound("profile", id)
	default:
		// archive down: answer as the registry did
		s.logger.Warn("archive lookup failed",
			slog.String("profile_id", id),
			slog.String("error", err.Error()),
		)
		return nil, apperror.NotFound("profile", id)
	}
}

func (s *ProfileService) recordCV(ctx context.Context, id, cv string) {
	at := s.now().UTC()

	if err := s.profiles.SetCV(ctx, id, cv, at); err != nil && !errors.Is(err, apperror.ErrNotFound) {
		s.logger.Warn("storing cv failed", slog.String("profile_id", id), slog.String("error", err.Error()))
	}
	if s.archive != nil {
		if err := s.archive.SaveCV(ctx, id, cv, at); err != nil {
			s.logger.Warn("archiving cv failed", slog.String("profile_id", id), slog.String("error", err.Error()))
		}
	}
}

// Stats returns the counters since process start.
func (s *ProfileService) Stats(ctx context.Context) (Stats, error) {
	n, err := s.profiles.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("service/profile: counting profiles: %w", err)
	}
	return Stats{
		ProfilesCreated:  s.profilesCreated.Load(),
		CVsGenerated:     s.cvsGenerated.Load(),
		ProfilesInMemory: n,
	}, nil
}
