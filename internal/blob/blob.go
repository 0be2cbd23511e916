// Package blob provides the path-based client for the photo archive.
//
// The archive itself is an external collaborator; the core only needs a
// path-based upload/download surface for the upload-photo queue operations.
package blob

import "context"

// Store is the opaque blob store surface consumed by the sync core.
type Store interface {
	// Upload writes data under a path.
	Upload(ctx context.Context, path string, data []byte) error

	// Download reads the data stored under a path.
	Download(ctx context.Context, path string) ([]byte, error)

	// Delete removes the data under a path.
	Delete(ctx context.Context, path string) error

	// List returns all paths with a prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
