// Package stage holds extracted artifacts (uploaded documents, embedded
// images) and hands out time-bounded references the inference layer can pass
// to a model by URL.
package stage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Stage is blob storage for staged artifacts.
type Stage interface {
	// Put stores data under name. Staging the same name twice is a no-op on
	// the second write.
	Put(ctx context.Context, name string, data []byte, contentType string) error
	Get(ctx context.Context, name string) ([]byte, error)
	// SignedURL returns a reference to a staged artifact valid for ttl.
	SignedURL(ctx context.Context, name string, ttl time.Duration) (string, error)
}

// FSStage stages artifacts on the local filesystem. Its signed URLs are
// file:// references with an advisory expiry parameter; they suit local
// development and tests, not remote model endpoints.
type FSStage struct {
	dir    string
	logger *slog.Logger
}

func NewFSStage(dir string, logger *slog.Logger) (*FSStage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create stage dir: %w", err)
	}
	return &FSStage{dir: dir, logger: logger}, nil
}

func (s *FSStage) Put(_ context.Context, name string, data []byte, _ string) error {
	path := filepath.Join(s.dir, filepath.Base(name))
	if _, err := os.Stat(path); err == nil {
		s.logger.Debug("stage.put.exists", "name", name)
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("stage write %s: %w", name, err)
	}
	s.logger.Info("stage.put.ok", "name", name, "bytes", len(data))
	return nil
}

func (s *FSStage) Get(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("stage read %s: %w", name, err)
	}
	return data, nil
}

func (s *FSStage) SignedURL(_ context.Context, name string, ttl time.Duration) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(name))
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stage stat %s: %w", name, err)
	}
	u := url.URL{
		Scheme:   "file",
		Path:     path,
		RawQuery: "expires=" + strconv.FormatInt(time.Now().Add(ttl).Unix(), 10),
	}
	return u.String(), nil
}
