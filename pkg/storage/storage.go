// Package storage persists run artifacts (protected WAV files) on local
// disk or in an S3-compatible object store.
//
// Keys are forward-slash separated and relative to the store root; the
// protected recording of a run lives at [ArtifactKey](id).
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Common errors.
var (
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("storage: not found")

	// ErrInvalidKey is returned for empty, absolute or escaping keys.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// ContentTypeWAV is the media type of protected recordings.
const ContentTypeWAV = "audio/wav"

// Store holds immutable blobs addressed by key.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get returns the object stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key holds an object.
	Exists(ctx context.Context, key string) (bool, error)

	// URI returns a location string for key, for display and records.
	URI(key string) string
}

// ArtifactKey returns the key of the protected recording of a run.
func ArtifactKey(runID string) string {
	return "runs/" + runID + "/protected.wav"
}

// cleanKey validates key and returns its canonical form.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	c := path.Clean(key)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return c, nil
}
