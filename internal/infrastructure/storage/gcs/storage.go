package gcs

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/api/storage/v1"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/gcp"
)

// Storage reads and writes lecture documents in Cloud Storage buckets.
type Storage struct {
	svc           *storage.Service
	defaultBucket string
}

func New(ctx context.Context, defaultBucket string, cfg gcp.ClientConfig) (*Storage, error) {
	opts, err := gcp.ClientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}
	return &Storage{svc: svc, defaultBucket: defaultBucket}, nil
}

func (s *Storage) Open(ctx context.Context, ref domain.DocumentRef) (io.ReadCloser, error) {
	bucket, err := s.bucket(ref)
	if err != nil {
		return nil, err
	}
	resp, err := s.svc.Objects.Get(bucket, ref.Key).Context(ctx).Download()
	if err != nil {
		return nil, gcp.WrapError("gcs download "+ref.String(), err, domain.ErrTransient)
	}
	return resp.Body, nil
}

func (s *Storage) Save(ctx context.Context, ref domain.DocumentRef, contentType string, data io.Reader) error {
	bucket, err := s.bucket(ref)
	if err != nil {
		return err
	}
	object := &storage.Object{Name: ref.Key, ContentType: contentType}
	if _, err := s.svc.Objects.Insert(bucket, object).Media(data).Context(ctx).Do(); err != nil {
		return gcp.WrapError("gcs upload "+ref.String(), err, domain.ErrTransient)
	}
	return nil
}

func (s *Storage) bucket(ref domain.DocumentRef) (string, error) {
	if ref.Bucket != "" {
		return ref.Bucket, nil
	}
	if s.defaultBucket != "" {
		return s.defaultBucket, nil
	}
	return "", domain.WrapError(domain.ErrInvalidInput, "resolve bucket", fmt.Errorf("no bucket for %q", ref.Key))
}
