// Package storage provides file storage for table snapshots and archived
// uploads, grouped by namespace.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a file does not exist in a namespace.
var ErrNotFound = errors.New("file not found")

// FileInfo contains metadata about a stored file
type FileInfo struct {
	ID          uuid.UUID `json:"id"`
	Namespace   string    `json:"namespace"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"` // Internal storage path
	CreatedAt   time.Time `json:"created_at"`
}

// Storage defines the interface for file storage operations
type Storage interface {
	// Upload stores a file under a new ID and returns its metadata
	Upload(ctx context.Context, namespace, filename, contentType string, r io.Reader) (*FileInfo, error)

	// Put stores a file under a name, replacing earlier content with that name
	Put(ctx context.Context, namespace, name, contentType string, r io.Reader) (*FileInfo, error)

	// Download retrieves a file by its ID
	Download(ctx context.Context, namespace string, fileID uuid.UUID) (io.ReadCloser, *FileInfo, error)

	// Delete removes a file by its ID
	Delete(ctx context.Context, namespace string, fileID uuid.UUID) error

	// List returns all files of a namespace
	List(ctx context.Context, namespace string) ([]*FileInfo, error)

	// GetInfo returns metadata for a file without downloading
	GetInfo(ctx context.Context, namespace string, fileID uuid.UUID) (*FileInfo, error)
}

// NameID is the ID Put assigns to name in namespace.
func NameID(namespace, name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace+"/"+name))
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
)

// Config holds storage configuration
type Config struct {
	Type      StorageType
	LocalPath string
}

// New creates a new Storage implementation based on configuration
func New(cfg *Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	}
	return nil, errors.New("unsupported storage type: " + string(cfg.Type))
}
