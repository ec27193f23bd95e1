// Package storage uploads finished export files to their destinations.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for upload operations.
var (
	ErrUploadFailed    = errors.New("upload failed")
	ErrShareUnresolved = errors.New("share link could not be resolved")
	ErrNoDestination   = errors.New("no upload destination configured")
)

// Uploader publishes a local file under name.
// Implementations include a Graph drive folder, S3 and a local directory.
type Uploader interface {
	// Upload copies the file at localPath to the destination. name is the
	// file name at the destination; an existing file with that name is
	// replaced.
	Upload(ctx context.Context, localPath, name string) error
}

// TokenSource supplies bearer tokens for authenticated destinations.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Multi uploads to every destination in order. All destinations are
// attempted; the errors of failed ones are joined.
type Multi []Uploader

// Upload implements Uploader.
func (m Multi) Upload(ctx context.Context, localPath, name string) error {
	if len(m) == 0 {
		return ErrNoDestination
	}
	var errs []error
	for i, u := range m {
		if err := u.Upload(ctx, localPath, name); err != nil {
			errs = append(errs, fmt.Errorf("destination %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
