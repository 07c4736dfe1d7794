// Package storage uploads files to an S3-compatible object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrInvalidName is returned when a file name has no usable base name.
var ErrInvalidName = errors.New("storage: invalid file name")

// MaxSignedURLTTL is the longest lifetime a SigV4 presigned URL may have.
const MaxSignedURLTTL = 7 * 24 * time.Hour

// Object is a stored file.
type Object struct {
	Key string
	URL string
}

// ObjectStore is the object-storage collaborator.
type ObjectStore interface {
	// Upload stores r under a fresh key derived from name.
	Upload(ctx context.Context, name, contentType string, r io.Reader, size int64) (*Object, error)

	// SignedURL returns a time-limited download URL for key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Config holds the S3 connection settings.
type Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string // defaults to Endpoint
}

type putAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store implements ObjectStore on aws-sdk-go-v2. Any S3-compatible
// provider works (MinIO, R2, Supabase storage) given its endpoint.
type S3Store struct {
	api        putAPI
	presign    presignAPI
	bucket     string
	publicBase string
	newID      func() string
}

var _ ObjectStore = (*S3Store)(nil)

// NewS3Store creates a store with static credentials and path-style
// addressing against cfg.Endpoint.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	public := cfg.PublicBaseURL
	if public == "" {
		public = cfg.Endpoint
	}

	return &S3Store{
		api:        client,
		presign:    s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(public, "/"),
		newID:      uuid.NewString,
	}, nil
}

// ObjectKey derives the stored key for an uploaded file name:
// "<id>_<basename>". Directory parts (either slash style) are dropped.
func ObjectKey(id, name string) (string, error) {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if base == "." || base == "/" || base == "" {
		return "", ErrInvalidName
	}
	return id + "_" + base, nil
}

func (s *S3Store) Upload(ctx context.Context, name, contentType string, r io.Reader, size int64) (*Object, error) {
	key, err := ObjectKey(s.newID(), name)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}

	if _, err := s.api.PutObject(ctx, in); err != nil {
		return nil, fmt.Errorf("storage: uploading %s: %w", key, err)
	}

	return &Object{Key: key, URL: s.PublicURL(key)}, nil
}

// PublicURL is the unsigned URL of key, valid when the bucket is public.
func (s *S3Store) PublicURL(key string) string {
	return s.publicBase + "/" + s.bucket + "/" + key
}

func (s *S3Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidName
	}
	if ttl <= 0 || ttl > MaxSignedURLTTL {
		return "", fmt.Errorf("storage: signed url lifetime %s out of range", ttl)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("storage: presigning %s: %w", key, err)
	}
	return req.URL, nil
}
