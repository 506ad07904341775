package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// BlobStore is the port for uploaded-file storage. Put stores content under a
// key; SignedURL returns a time-limited download URL for the key.
type BlobStore interface {
	Put(ctx context.Context, key string, content io.Reader, contentType string) (string, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// MockStore is the fallback when no storage backend is configured. It accepts
// uploads without persisting and hands out deterministic URLs so the rest of
// the pipeline keeps working in development.
type MockStore struct {
	baseURL string
}

// NewMockStore creates a mock blob store
func NewMockStore(baseURL string) *MockStore {
	if baseURL == "" {
		baseURL = "https://mock-storage.invalid"
	}
	return &MockStore{baseURL: baseURL}
}

// Put discards the content and returns the key
func (s *MockStore) Put(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
	if _, err := io.Copy(io.Discard, content); err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	return key, nil
}

// SignedURL returns a deterministic mock URL
func (s *MockStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("%s/%s", s.baseURL, key), nil
}
