package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/spanisami/cv-backend/internal/auth"
	"github.com/spanisami/cv-backend/internal/config"
	"github.com/spanisami/cv-backend/internal/llm"
	rtdb "github.com/spanisami/cv-backend/internal/realtimedb"
	"github.com/spanisami/cv-backend/internal/repository"
	"github.com/spanisami/cv-backend/internal/repository/memory"
	"github.com/spanisami/cv-backend/internal/repository/realtimedb"
	"github.com/spanisami/cv-backend/internal/repository/redisstore"
	sqliteRepo "github.com/spanisami/cv-backend/internal/repository/sqlite"
	"github.com/spanisami/cv-backend/internal/service"
	"github.com/spanisami/cv-backend/internal/sms"
	"github.com/spanisami/cv-backend/internal/storage"
)

// components is the assembled object graph.
type components struct {
	health   *service.HealthService
	profiles *service.ProfileService
	chat     *service.ChatService
	login    *service.LoginService
	media    *service.MediaService

	// for the startup log line
	userBackend    string
	codeBackend    string
	smsEnabled     bool
	storageEnabled bool

	closers   []io.Closer
	closeOnce sync.Once
	closeErr  error
}

func (c *components) close() error {
	c.closeOnce.Do(func() {
		var errs []error
		for i := len(c.closers) - 1; i >= 0; i-- {
			if err := c.closers[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

// buildComponents turns cfg into stores, clients and services.
//
// BACKEND SELECTION:
//   - users:    realtime database when FIREBASE_* is set, else SQLite at DB_PATH
//   - codes:    Redis when REDIS_URL is set, else process memory
//   - archive:  realtime database when configured, else none
//   - SMS:      Twilio when TWILIO_* is set, else codes are only returned in-band
//   - storage:  S3 when S3_* is set, else /upload answers 503
//
// Interfaces for optional collaborators stay untyped nil when unset; the
// services compare them against nil.
func buildComponents(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	var (
		users   repository.UserRepository
		archive repository.ProfileArchive
		codes   repository.CodeStore
		sender  sms.Sender
		objects storage.ObjectStore
	)

	if cfg.Firebase.Enabled() {
		sa, err := auth.LoadServiceAccount(cfg.Firebase.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("loading firebase service account: %w", err)
		}
		client, err := rtdb.NewWithServiceAccount(ctx, cfg.Firebase.DatabaseURL, sa)
		if err != nil {
			return nil, fmt.Errorf("creating realtime database client: %w", err)
		}
		store := realtimedb.New(client)
		users, archive = store, store
		c.userBackend = "realtimedb"
	} else {
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		c.closers = append(c.closers, db)
		users = db
		c.userBackend = "sqlite"
	}

	if cfg.RedisURL != "" {
		client, err := redisstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		c.closers = append(c.closers, client)
		codes = redisstore.NewCodeStore(client)
		c.codeBackend = "redis"
	} else {
		codes = memory.NewCodeStore()
		c.codeBackend = "memory"
	}

	if cfg.Twilio.Enabled() {
		sender = sms.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
		c.smsEnabled = true
	} else {
		logger.Warn("TWILIO_* not set, login codes are only returned in the response")
	}

	if cfg.S3.Enabled() {
		s3, err := storage.NewS3Store(ctx, storage.Config{
			Endpoint:      cfg.S3.Endpoint,
			Region:        cfg.S3.Region,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			Bucket:        cfg.S3.Bucket,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("creating object store: %w", err)
		}
		objects = s3
		c.storageEnabled = true
	} else {
		logger.Warn("S3_* not set, /upload and /files/signed_url are unavailable")
	}

	gen := llm.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)

	c.health = service.NewHealthService(gen, cfg.LLMTimeout, logger)
	c.profiles = service.NewProfileService(memory.NewProfileStore(), archive, gen, cfg.LLMTimeout, logger)
	c.chat = service.NewChatService(memory.NewConversationStore(), gen, cfg.LLMTimeout, logger)
	c.login = service.NewLoginService(codes, users, sender, auth.NewCodeHasher(), cfg.CodeTTL, logger)
	c.media = service.NewMediaService(objects, archive, logger)

	return c, nil
}
