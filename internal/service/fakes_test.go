package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spanisami/cv-backend/internal/apperror"
	"github.com/spanisami/cv-backend/internal/llm"
	"github.com/spanisami/cv-backend/internal/model"
	"github.com/spanisami/cv-backend/internal/storage"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a settable time source shared by a test and the service.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeGenerator records what it was asked and answers with reply/err.
// When block is set, calls wait for the context to end.
type fakeGenerator struct {
	mu       sync.Mutex
	prompts  []string
	chats    [][]llm.Message
	reply    string
	err      error
	block    bool
	deadline bool // whether the last call carried a deadline
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	_, f.deadline = ctx.Deadline()
	f.mu.Unlock()
	return f.answer(ctx)
}

func (f *fakeGenerator) Chat(ctx context.Context, msgs []llm.Message) (string, error) {
	f.mu.Lock()
	f.chats = append(f.chats, append([]llm.Message(nil), msgs...))
	_, f.deadline = ctx.Deadline()
	f.mu.Unlock()
	return f.answer(ctx)
}

func (f *fakeGenerator) answer(ctx context.Context) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// fakeSender captures outgoing SMS.
type fakeSender struct {
	mu   sync.Mutex
	sent []string // "to|body"
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, to+"|"+body)
	return "SM-fake", nil
}

// fakeUserRepo is an in-memory repository.UserRepository.
// createHook, when set, runs at the start of Create; tests use it to
// simulate a concurrent creator winning the race.
type fakeUserRepo struct {
	mu         sync.Mutex
	users      map[string]model.User
	createHook func()
	getErr     error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]model.User)}
}

func (f *fakeUserRepo) GetByPhone(_ context.Context, phone string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[phone]
	if !ok {
		return nil, apperror.NotFound("user", phone)
	}
	return &u, nil
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	if f.createHook != nil {
		hook := f.createHook
		f.createHook = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.Phone]; ok {
		return apperror.Conflict("user", user.Phone)
	}
	f.users[user.Phone] = *user
	return nil
}

func (f *fakeUserRepo) TouchLogin(_ context.Context, phone string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[phone]
	if !ok {
		return apperror.NotFound("user", phone)
	}
	u.LastLogin = at
	f.users[phone] = u
	return nil
}

// fakeArchive is an in-memory repository.ProfileArchive.
type fakeArchive struct {
	mu       sync.Mutex
	profiles map[string]model.Profile
	media    map[string]model.MediaFile
	err      error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{profiles: map[string]model.Profile{}, media: map[string]model.MediaFile{}}
}

func (f *fakeArchive) SaveProfile(_ context.Context, p *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.profiles[p.ID] = *p
	return nil
}

func (f *fakeArchive) GetProfile(_ context.Context, id string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, apperror.NotFound("profile", id)
	}
	return &p, nil
}

func (f *fakeArchive) SaveCV(_ context.Context, id, cv string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	p := f.profiles[id]
	p.ID, p.CV, p.CVGeneratedAt = id, cv, &at
	f.profiles[id] = p
	return nil
}

func (f *fakeArchive) SaveMedia(_ context.Context, id string, file model.MediaFile, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.media[id] = file
	return nil
}

// fakeObjectStore is an in-memory storage.ObjectStore.
type fakeObjectStore struct {
	objects map[string][]byte
	err     error
	lastTTL time.Duration
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (f *fakeObjectStore) Upload(_ context.Context, name, _ string, r io.Reader, _ int64) (*storage.Object, error) {
	if f.err != nil {
		return nil, f.err
	}
	key, err := storage.ObjectKey("fixed-id", name)
	if err != nil {
		return nil, err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.objects[key] = b
	return &storage.Object{Key: key, URL: "https://cdn.example/uploads/" + key}, nil
}

func (f *fakeObjectStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.lastTTL = ttl
	return "https://cdn.example/sign/" + key, nil
}
