// Package storage provides the byte-level storage abstraction used for
// backup artifacts, with implementations for local disk and for offsite
// transports (SSH remote, S3-compatible object storage).
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Read when the object does not exist.
var ErrNotFound = errors.New("object not found")

// Storage is a flat key/value store for artifacts. Keys are slash-separated
// relative paths such as "<project>/<backup-name>".
type Storage interface {
	Write(ctx context.Context, key string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Location returns a human-readable location for key, used in records and logs.
	Location(key string) string
	Close() error
}

// ArtifactKey builds the storage key for a project's backup artifact.
func ArtifactKey(projectID, backupName string) string {
	return projectID + "/" + backupName
}

// cleanKey rejects keys that are absolute or escape the storage root.
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty storage key")
	}
	cleaned := path.Clean(strings.ReplaceAll(key, "\\", "/"))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == "." {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return cleaned, nil
}
