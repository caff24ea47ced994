package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// maxObjectSize bounds ReadObject; stored objects are small email templates.
const maxObjectSize = 1 << 20

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Bucket() string
}

// Storage wraps an ObjectStorage backend with byte-oriented helpers.
type Storage struct {
	backend ObjectStorage
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// ReadObject returns the full contents of key, or ErrNotFound.
func (s *Storage) ReadObject(ctx context.Context, key string) ([]byte, error) {
	r, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, maxObjectSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxObjectSize {
		return nil, fmt.Errorf("storage: object %s exceeds %d bytes", key, maxObjectSize)
	}
	return data, nil
}

// WriteObject uploads data under key.
func (s *Storage) WriteObject(ctx context.Context, key string, data []byte, contentType string) error {
	return s.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}
