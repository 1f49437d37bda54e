// Package storage provides the file-storage collaborator contract from
// spec §6's /api/files/... surface, plus the minimal concrete
// implementation needed to exercise it: a local-disk backend. Object
// storage SDKs (S3, GCS) are out of scope per spec's own framing of
// file-storage backends as a contract-only collaborator.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound     = errors.New("file not found")
	ErrInvalidKey   = errors.New("invalid file key")
	ErrAlreadyExist = errors.New("file already exists")
)

// Backend is the contract every file-storage implementation satisfies.
// Keys are opaque, slash-separated relative paths.
type Backend interface {
	Put(ctx context.Context, key string, r io.Reader) (size int64, err error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
