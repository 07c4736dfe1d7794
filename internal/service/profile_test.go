package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanisami/cv-backend/internal/apperror"
	"github.com/spanisami/cv-backend/internal/model"
	"github.com/spanisami/cv-backend/internal/repository"
	"github.com/spanisami/cv-backend/internal/repository/memory"
)

func newTestProfileService(gen *fakeGenerator, archive repository.ProfileArchive) (*ProfileService, *memory.ProfileStore) {
	profiles := memory.NewProfileStore()
	svc := NewProfileService(profiles, archive, gen, time.Second, discardLogger())
	svc.now = newFakeClock().Now
	return svc, profiles
}

// =========================================================================
// ParseProfileInput TESTS
// =========================================================================

func TestParseProfileInput(t *testing.T) {
	tests := []struct {
		name     string
		profile  string
		id       string
		wantKind profileInputKind
		wantErr  bool
	}{
		{"object", `{"name":"Thandi"}`, "", profileStructured, false},
		{"array", `["cashier"]`, "", profileStructured, false},
		{"string", `"I sell airtime"`, "", profileRaw, false},
		{"id only", ``, "abc", profileByID, false},
		{"null profile falls back to id", `null`, "abc", profileByID, false},
		{"profile wins over id", `{"a":1}`, "abc", profileStructured, false},
		{"neither", ``, "  ", 0, true},
		{"null and no id", `null`, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := ParseProfileInput(json.RawMessage(tt.profile), tt.id)
			if tt.wantErr {
				require.ErrorIs(t, err, apperror.ErrValidation)
				assert.Equal(t, "Send either 'profile' or 'profile_id'", err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, in.kind)
		})
	}
}

// =========================================================================
// Build TESTS
// =========================================================================

func TestBuild_StoresVerbatimOutput(t *testing.T) {
	gen := &fakeGenerator{reply: "```json\n{\"name\":\"Thandi\"}\n```"}
	svc, profiles := newTestProfileService(gen, nil)
	ctx := context.Background()

	p, err := svc.Build(ctx, "  I help at my uncle's spaza  ", "")
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, `{"name":"Thandi"}`, p.Content)
	assert.Contains(t, gen.lastPrompt(), "I help at my uncle's spaza")
	assert.Contains(t, gen.lastPrompt(), "Respond in en.")
	assert.True(t, gen.deadline, "llm calls always carry a deadline")

	stored, err := profiles.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Content, stored.Content)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{ProfilesCreated: 1, CVsGenerated: 0, ProfilesInMemory: 1}, stats)
}

func TestBuild_Language(t *testing.T) {
	gen := &fakeGenerator{reply: "{}"}
	svc, _ := newTestProfileService(gen, nil)

	_, err := svc.Build(context.Background(), "text", "zu")
	require.NoError(t, err)
	assert.Contains(t, gen.lastPrompt(), "Respond in zu.")
}

func TestBuild_EmptyText(t *testing.T) {
	gen := &fakeGenerator{reply: "{}"}
	svc, _ := newTestProfileService(gen, nil)

	_, err := svc.Build(context.Background(), " \n\t", "en")
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Empty(t, gen.prompts, "no llm call for invalid input")
}

func TestBuild_UpstreamFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("insufficient_quota")}
	svc, _ := newTestProfileService(gen, nil)

	_, err := svc.Build(context.Background(), "text", "en")
	require.ErrorIs(t, err, apperror.ErrUpstream)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Failed to build profile", appErr.Message)
	assert.Equal(t, "insufficient_quota", appErr.Details)

	stats, _ := svc.Stats(context.Background())
	assert.Zero(t, stats.ProfilesCreated, "failed builds are not counted")
}

func TestBuild_Timeout(t *testing.T) {
	gen := &fakeGenerator{block: true}
	profiles := memory.NewProfileStore()
	svc := NewProfileService(profiles, nil, gen, 20*time.Millisecond, discardLogger())

	_, err := svc.Build(context.Background(), "text", "en")
	assert.ErrorIs(t, err, apperror.ErrUpstreamTimeout)
}

func TestBuild_ArchivesProfile(t *testing.T) {
	archive := newFakeArchive()
	svc, _ := newTestProfileService(&fakeGenerator{reply: `{"a":1}`}, archive)

	p, err := svc.Build(context.Background(), "text", "en")
	require.NoError(t, err)

	archived, ok := archive.profiles[p.ID]
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, archived.Content)
}

func TestBuild_ArchiveFailureIsNotFatal(t *testing.T) {
	archive := newFakeArchive()
	archive.err = errors.New("permission denied")
	svc, _ := newTestProfileService(&fakeGenerator{reply: `{}`}, archive)

	_, err := svc.Build(context.Background(), "text", "en")
	assert.NoError(t, err)
}

func TestBuild_ConcurrentCounters(t *testing.T) {
	svc, _ := newTestProfileService(&fakeGenerator{reply: `{}`}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Build(context.Background(), "text", "en")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(25), stats.ProfilesCreated)
	assert.Equal(t, 25, stats.ProfilesInMemory)
}

// =========================================================================
// GenerateCV TESTS
// =========================================================================

func TestGenerateCV_Structured(t *testing.T) {
	gen := &fakeGenerator{reply: "THANDI\nSkills: ..."}
	svc, _ := newTestProfileService(gen, nil)

	cv, err := svc.GenerateCV(context.Background(), StructuredProfile(json.RawMessage(`{"name":"Thandi"}`)), "")
	require.NoError(t, err)
	assert.Equal(t, "THANDI\nSkills: ...", cv)
	assert.Contains(t, gen.lastPrompt(), `"name": "Thandi"`)

	stats, _ := svc.Stats(context.Background())
	assert.Equal(t, int64(1), stats.CVsGenerated)
}

func TestGenerateCV_Raw(t *testing.T) {
	gen := &fakeGenerator{reply: "cv"}
	svc, _ := newTestProfileService(gen, nil)

	_, err := svc.GenerateCV(context.Background(), RawProfile("I fix phones"), "Technician")
	require.NoError(t, err)
	assert.Contains(t, gen.lastPrompt(), "I fix phones")
	assert.Contains(t, gen.lastPrompt(), "applying for this role: Technician")

	_, err = svc.GenerateCV(context.Background(), RawProfile("   "), "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestGenerateCV_ByID(t *testing.T) {
	gen := &fakeGenerator{reply: `{"name":"Thandi"}`}
	archive := newFakeArchive()
	svc, profiles := newTestProfileService(gen, archive)
	ctx := context.Background()

	p, err := svc.Build(ctx, "text", "en")
	require.NoError(t, err)

	gen.reply = "the cv"
	cv, err := svc.GenerateCV(ctx, ProfileByID(p.ID), "")
	require.NoError(t, err)
	assert.Equal(t, "the cv", cv)
	assert.Contains(t, gen.lastPrompt(), `{"name":"Thandi"}`)

	stored, err := profiles.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "the cv", stored.CV)
	require.NotNil(t, stored.CVGeneratedAt)

	assert.Equal(t, "the cv", archive.profiles[p.ID].CV)
}

func TestGenerateCV_UnknownID(t *testing.T) {
	gen := &fakeGenerator{reply: "cv"}
	svc, _ := newTestProfileService(gen, newFakeArchive())

	_, err := svc.GenerateCV(context.Background(), ProfileByID("nope"), "")
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Empty(t, gen.prompts)

	stats, _ := svc.Stats(context.Background())
	assert.Zero(t, stats.CVsGenerated)
}

func TestGenerateCV_FallsBackToArchive(t *testing.T) {
	gen := &fakeGenerator{reply: "cv"}
	archive := newFakeArchive()
	archive.profiles["from-before-restart"] = model.Profile{ID: "from-before-restart", Content: "archived text"}
	svc, _ := newTestProfileService(gen, archive)

	_, err := svc.GenerateCV(context.Background(), ProfileByID("from-before-restart"), "")
	require.NoError(t, err)
	assert.Contains(t, gen.lastPrompt(), "archived text")
	assert.Equal(t, "cv", archive.profiles["from-before-restart"].CV)
}

func TestGenerateCV_ArchiveDownIsNotFound(t *testing.T) {
	archive := newFakeArchive()
	archive.err = errors.New("connection refused")
	svc, _ := newTestProfileService(&fakeGenerator{reply: "cv"}, archive)

	_, err := svc.GenerateCV(context.Background(), ProfileByID("x"), "")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGenerateCV_ZeroInput(t *testing.T) {
	svc, _ := newTestProfileService(&fakeGenerator{reply: "cv"}, nil)

	_, err := svc.GenerateCV(context.Background(), ProfileInput{}, "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
