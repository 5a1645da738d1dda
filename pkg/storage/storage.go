// Package storage archives finished session recordings.
//
// Objects are whole blobs addressed by forward-slash paths such as
// "sessions/<id>.wav". Local disk and S3-compatible object stores are
// supported.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("storage: not found")

// Archive stores blobs.
type Archive interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// SessionPath returns the archive path of a session recording.
func SessionPath(sessionID string) string {
	return fmt.Sprintf("sessions/%s.wav", sessionID)
}
