package stage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSStage stages artifacts in a Google Cloud Storage bucket, writing each
// object at most once and issuing V4 signed URLs for model access.
type GCSStage struct {
	bucket *storage.BucketHandle
	logger *slog.Logger
}

func NewGCSStage(ctx context.Context, bucketName string, logger *slog.Logger) (*GCSStage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStage{bucket: client.Bucket(bucketName), logger: logger}, nil
}

// Put writes the object only if it does not already exist. A precondition
// failure means another writer staged it first and counts as success.
func (s *GCSStage) Put(ctx context.Context, name string, data []byte, contentType string) error {
	w := s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		if isPreconditionFailed(err) {
			s.logger.Debug("stage.put.exists", "name", name)
			return nil
		}
		return fmt.Errorf("write gcs object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			s.logger.Debug("stage.put.exists", "name", name)
			return nil
		}
		return fmt.Errorf("finalize gcs object %s: %w", name, err)
	}

	s.logger.Info("stage.put.ok", "name", name, "bytes", len(data))
	return nil
}

func (s *GCSStage) Get(ctx context.Context, name string) ([]byte, error) {
	r, err := s.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gcs object %s: %w", name, err)
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			s.logger.Warn("stage.get.close_error", "name", name, "error", cerr)
		}
	}()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gcs object %s: %w", name, err)
	}
	return data, nil
}

func (s *GCSStage) SignedURL(_ context.Context, name string, ttl time.Duration) (string, error) {
	u, err := s.bucket.SignedURL(name, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", name, err)
	}
	return u, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}
