package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spanisami/cv-backend/internal/apperror"
	"github.com/spanisami/cv-backend/internal/model"
	"github.com/spanisami/cv-backend/internal/repository"
	"github.com/spanisami/cv-backend/internal/storage"
)

// DefaultSignedURLTTL is the signed URL lifetime when the caller gives none.
const DefaultSignedURLTTL = time.Hour

// MediaService passes uploads through to object storage. Files are not
// inspected or transformed.
type MediaService struct {
	store   storage.ObjectStore       // optional
	archive repository.ProfileArchive // optional
	now     func() time.Time
	logger  *slog.Logger
}

func NewMediaService(store storage.ObjectStore, archive repository.ProfileArchive, logger *slog.Logger) *MediaService {
	return &MediaService{store: store, archive: archive, now: time.Now, logger: logger}
}

// Upload stores the file and, when profileID is set and an archive is
// configured, records it as the profile's latest upload.
func (s *MediaService) Upload(ctx context.Context, profileID, filename, contentType string, r io.Reader, size int64) (*model.MediaFile, error) {
	if s.store == nil {
		return nil, apperror.Unavailable("file storage is not configured")
	}
	if strings.TrimSpace(filename) == "" {
		return nil, apperror.ValidationFailed("file", "file name is required")
	}

	obj, err := s.store.Upload(ctx, filename, contentType, r, size)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			return nil, apperror.ValidationFailed("file", "file name is not usable")
		}
		s.logger.Error("upload failed", slog.String("file", filename), slog.String("error", err.Error()))
		return nil, apperror.Upstream("Failed to upload file", err)
	}

	file := &model.MediaFile{FileName: obj.Key, FileURL: obj.URL}

	profileID = strings.TrimSpace(profileID)
	if profileID != "" && s.archive != nil {
		if err := s.archive.SaveMedia(ctx, profileID, *file, s.now().UTC()); err != nil {
			s.logger.Warn("recording upload on profile failed",
				slog.String("profile_id", profileID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("file uploaded",
		slog.String("key", obj.Key),
		slog.String("profile_id", profileID),
		slog.Int64("size", size),
	)
	return file, nil
}

// SignedURL returns a temporary download link. ttl == 0 means
// DefaultSignedURLTTL.
func (s *MediaService) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.store == nil {
		return "", apperror.Unavailable("file storage is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", apperror.ValidationFailed("file_name", "file_name is required")
	}
	if ttl == 0 {
		ttl = DefaultSignedURLTTL
	}
	if ttl < time.Second || ttl > storage.MaxSignedURLTTL {
		return "", apperror.ValidationFailed("expires_in",
			fmt.Sprintf("expires_in must be between 1 and %d seconds", int(storage.MaxSignedURLTTL.Seconds())))
	}

	u, err := s.store.SignedURL(ctx, key, ttl)
	if err != nil {
		s.logger.Error("signing url failed", slog.String("key", key), slog.String("error", err.Error()))
		return "", apperror.Upstream("Failed to create signed URL", err)
	}
	return u, nil
}
