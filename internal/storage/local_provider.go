package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LocalProvider stores blobs on the local filesystem. Intended for
// development and single-node deployments.
type LocalProvider struct {
	basePath string
	baseURL  string
	logger   *logrus.Logger
}

// NewLocalProvider creates a local filesystem blob store rooted at basePath
func NewLocalProvider(basePath, baseURL string, logger *logrus.Logger) (*LocalProvider, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalProvider{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}, nil
}

// Put writes the content under basePath/key
func (p *LocalProvider) Put(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
	cleaned := filepath.Clean(key)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid storage key: %s", key)
	}

	fullPath := filepath.Join(p.basePath, cleaned)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, content)
	if err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"key":   cleaned,
		"bytes": written,
	}).Debug("Stored file locally")

	return cleaned, nil
}

// SignedURL returns the public URL for the key. Local files are served by the
// application itself, so no signature is applied.
func (p *LocalProvider) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("%s/%s", p.baseURL, key), nil
}
