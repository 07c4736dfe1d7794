package realtimedb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanisami/cv-backend/internal/apperror"
	"github.com/spanisami/cv-backend/internal/model"
	rtdb "github.com/spanisami/cv-backend/internal/realtimedb"
)

// fakeTree keeps nodes as raw JSON so values go through the same
// encode/decode round trip as the real REST client.
type fakeTree struct {
	mu    sync.Mutex
	nodes map[string]json.RawMessage
	rev   map[string]int

	// beforeConditionalSet runs right before SetIfMatch checks the etag,
	// letting tests slip in a competing write.
	beforeConditionalSet func()
	failWith             error
}

func newFakeTree() *fakeTree {
	return &fakeTree{nodes: map[string]json.RawMessage{}, rev: map[string]int{}}
}

func (f *fakeTree) etag(path string) string {
	if _, ok := f.nodes[path]; !ok {
		return "null_etag"
	}
	return fmt.Sprintf("rev-%d", f.rev[path])
}

func (f *fakeTree) Get(ctx context.Context, path string, out any) error {
	_, err := f.GetETag(ctx, path, out)
	return err
}

func (f *fakeTree) GetETag(_ context.Context, path string, out any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return "", f.failWith
	}
	raw, ok := f.nodes[path]
	if !ok {
		return "null_etag", rtdb.ErrNotFound
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return "", err
		}
	}
	return f.etag(path), nil
}

func (f *fakeTree) put(path string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.nodes[path] = raw
	f.rev[path]++
	return nil
}

func (f *fakeTree) Set(_ context.Context, path string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	return f.put(path, v)
}

func (f *fakeTree) SetIfMatch(_ context.Context, path string, v any, etag string) error {
	if f.beforeConditionalSet != nil {
		f.beforeConditionalSet()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if etag != f.etag(path) {
		return rtdb.ErrPreconditionFailed
	}
	return f.put(path, v)
}

func (f *fakeTree) Update(_ context.Context, path string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	merged := map[string]json.RawMessage{}
	if raw, ok := f.nodes[path]; ok {
		if err := json.Unmarshal(raw, &merged); err != nil {
			return err
		}
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		merged[k] = raw
	}
	return f.put(path, merged)
}

func (f *fakeTree) raw(t *testing.T, path string) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var m map[string]any
	require.NoError(t, json.Unmarshal(f.nodes[path], &m))
	return m
}

func newUser(phone string) *model.User {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return &model.User{
		Phone:     phone,
		ProfileID: "profile-" + phone,
		CreatedAt: now,
		LastLogin: now,
	}
}

func TestStore_CreateAndGetUser(t *testing.T) {
	tree := newFakeTree()
	s := New(tree)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newUser("+27821234567")))

	got, err := s.GetByPhone(ctx, "+27821234567")
	require.NoError(t, err)
	assert.Equal(t, "+27821234567", got.Phone)
	assert.Equal(t, "profile-+27821234567", got.ProfileID)
	assert.Nil(t, got.Name)
	assert.Nil(t, got.Email)

	node := tree.raw(t, "users/+27821234567")
	assert.Contains(t, node, "name")
	assert.Nil(t, node["name"], "unknown name is stored as null")
}

func TestStore_GetUserNotFound(t *testing.T) {
	s := New(newFakeTree())

	_, err := s.GetByPhone(context.Background(), "+27000000000")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestStore_CreateDuplicate(t *testing.T) {
	s := New(newFakeTree())
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newUser("+27821234567")))
	err := s.Create(ctx, newUser("+27821234567"))
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestStore_CreateLosesRace(t *testing.T) {
	tree := newFakeTree()
	s := New(tree)
	ctx := context.Background()

	winner := newUser("+27821234567")
	winner.ProfileID = "winner"
	tree.beforeConditionalSet = func() {
		tree.beforeConditionalSet = nil
		tree.mu.Lock()
		defer tree.mu.Unlock()
		require.NoError(t, tree.put("users/+27821234567", userNode{ProfileID: winner.ProfileID}))
	}

	err := s.Create(ctx, newUser("+27821234567"))
	require.ErrorIs(t, err, apperror.ErrConflict)

	got, err := s.GetByPhone(ctx, "+27821234567")
	require.NoError(t, err)
	assert.Equal(t, "winner", got.ProfileID, "the loser must not overwrite the winner")
}

func TestStore_TouchLogin(t *testing.T) {
	s := New(newFakeTree())
	ctx := context.Background()

	u := newUser("+27821234567")
	require.NoError(t, s.Create(ctx, u))

	later := u.LastLogin.Add(2 * time.Hour)
	require.NoError(t, s.TouchLogin(ctx, u.Phone, later))

	got, err := s.GetByPhone(ctx, u.Phone)
	require.NoError(t, err)
	assert.True(t, got.LastLogin.Equal(later))
	assert.True(t, got.CreatedAt.Equal(u.CreatedAt))
	assert.Equal(t, u.ProfileID, got.ProfileID)
}

func TestStore_TouchLoginUnknown(t *testing.T) {
	tree := newFakeTree()
	s := New(tree)

	err := s.TouchLogin(context.Background(), "+27000000000", time.Now())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Empty(t, tree.nodes, "no stub node may be created")
}

func TestStore_ProfileArchive(t *testing.T) {
	tree := newFakeTree()
	s := New(tree)
	ctx := context.Background()

	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveProfile(ctx, &model.Profile{
		ID:        "p1",
		Content:   `{"name":"Thandi"}`,
		CreatedAt: created,
	}))

	got, err := s.GetProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Thandi"}`, got.Content)
	assert.Empty(t, got.CV)
	assert.Nil(t, got.CVGeneratedAt)

	cvAt := created.Add(time.Minute)
	require.NoError(t, s.SaveCV(ctx, "p1", "# Thandi", cvAt))
	require.NoError(t, s.SaveMedia(ctx, "p1", model.MediaFile{FileName: "a.pdf", FileURL: "https://cdn/a.pdf"}, cvAt))

	got, err = s.GetProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Thandi"}`, got.Content, "SaveCV merges, it does not replace")
	assert.Equal(t, "# Thandi", got.CV)
	require.NotNil(t, got.CVGeneratedAt)
	assert.True(t, got.CVGeneratedAt.Equal(cvAt))

	node := tree.raw(t, "profiles/p1")
	assert.Equal(t, map[string]any{"file_name": "a.pdf", "file_url": "https://cdn/a.pdf"}, node["media_files"])
	assert.Contains(t, node, "last_media_upload")
}

func TestStore_GetProfileNotFound(t *testing.T) {
	s := New(newFakeTree())

	_, err := s.GetProfile(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestStore_BackendErrorsAreWrapped(t *testing.T) {
	tree := newFakeTree()
	boom := errors.New("connection reset")
	tree.failWith = boom
	s := New(tree)

	_, err := s.GetByPhone(context.Background(), "+27821234567")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, apperror.ErrNotFound)
}

// Keys are single node names. Anything that would address another part of
// the tree is rejected before a request is made.
func TestStore_RejectsKeysThatEscapeTheirNode(t *testing.T) {
	ctx := context.Background()
	reached := errors.New("tree must not be reached")
	now := time.Now()

	t.Run("phone", func(t *testing.T) {
		tree := newFakeTree()
		tree.failWith = reached
		s := New(tree)

		// what phone.Normalize makes of "0/../profiles/victim-id"
		for _, phone := range []string{"+27/../profiles/victim-id", "+27821234567.json", "+27#x", "+27$", "+27[0]", ""} {
			err := s.Create(ctx, newUser(phone))
			assert.ErrorIs(t, err, apperror.ErrValidation, "Create %q", phone)

			_, err = s.GetByPhone(ctx, phone)
			assert.ErrorIs(t, err, apperror.ErrValidation, "GetByPhone %q", phone)

			err = s.TouchLogin(ctx, phone, now)
			assert.ErrorIs(t, err, apperror.ErrValidation, "TouchLogin %q", phone)
		}
	})

	t.Run("profile id", func(t *testing.T) {
		tree := newFakeTree()
		tree.failWith = reached
		s := New(tree)

		for _, id := range []string{"../users/+27821234567", "p1/cv", "p.1", ""} {
			_, err := s.GetProfile(ctx, id)
			assert.ErrorIs(t, err, apperror.ErrNotFound, "GetProfile %q", id)

			assert.ErrorIs(t, s.SaveProfile(ctx, &model.Profile{ID: id}), apperror.ErrNotFound)
			assert.ErrorIs(t, s.SaveCV(ctx, id, "cv", now), apperror.ErrNotFound)
			assert.ErrorIs(t, s.SaveMedia(ctx, id, model.MediaFile{}, now), apperror.ErrNotFound)
		}
	})

	t.Run("victim node untouched", func(t *testing.T) {
		tree := newFakeTree()
		s := New(tree)
		require.NoError(t, s.SaveProfile(ctx, &model.Profile{ID: "victim-id", Content: "mine", CreatedAt: now}))

		require.Error(t, s.Create(ctx, newUser("+27/../profiles/victim-id")))

		got, err := s.GetProfile(ctx, "victim-id")
		require.NoError(t, err)
		assert.Equal(t, "mine", got.Content)
		assert.Len(t, tree.nodes, 1)
	})
}
