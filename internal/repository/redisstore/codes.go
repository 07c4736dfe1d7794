// Package redisstore keeps short-lived login state in Redis so several
// server replicas can share it.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spanisami/cv-backend/internal/apperror"
	"github.com/spanisami/cv-backend/internal/model"
	"github.com/spanisami/cv-backend/internal/repository"
)

var _ repository.CodeStore = (*CodeStore)(nil)

const keyPrefix = "login:code:"

// expiryGrace keeps a key around a little past the code's own expiry. The
// service checks ExpiresAt itself; the Redis TTL only reclaims memory.
const expiryGrace = time.Minute

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// CodeStore stores one JSON-encoded model.LoginCode per phone.
type CodeStore struct {
	client *redis.Client
}

func NewCodeStore(client *redis.Client) *CodeStore {
	return &CodeStore{client: client}
}

func (s *CodeStore) Put(ctx context.Context, code model.LoginCode) error {
	raw, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("redis: encoding login code: %w", err)
	}

	ttl := time.Until(code.ExpiresAt) + expiryGrace
	if ttl < expiryGrace {
		ttl = expiryGrace
	}
	if err := s.client.Set(ctx, keyPrefix+code.Phone, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis: storing login code for %s: %w", code.Phone, err)
	}
	return nil
}

// Consume reads, matches and deletes inside a WATCH transaction. If another
// client rewrites the key between the read and the delete, EXEC aborts and
// the attempt is reported as an invalid credential: the caller matched a
// code that no longer exists.
func (s *CodeStore) Consume(ctx context.Context, phone string, match func(model.LoginCode) bool) (model.LoginCode, error) {
	key := keyPrefix + phone
	var consumed model.LoginCode

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return apperror.NotFound("login code", phone)
			}
			return err
		}

		var code model.LoginCode
		if err := json.Unmarshal(raw, &code); err != nil {
			return fmt.Errorf("decoding login code: %w", err)
		}
		if !match(code) {
			return apperror.InvalidCredential("login code does not match")
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			return nil
		})
		if err != nil {
			return err
		}
		consumed = code
		return nil
	}, key)

	switch {
	case err == nil:
		return consumed, nil
	case errors.Is(err, redis.TxFailedErr):
		return model.LoginCode{}, apperror.InvalidCredential("login code changed during verification")
	case errors.Is(err, apperror.ErrNotFound), errors.Is(err, apperror.ErrInvalidCredential):
		return model.LoginCode{}, err
	default:
		return model.LoginCode{}, fmt.Errorf("redis: consuming login code for %s: %w", phone, err)
	}
}
