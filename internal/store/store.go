// Package store provides snapshot persistence for tables: a table is
// written to a SQLite snapshot file, uploaded to object storage, and
// read back into memory later. Per-column bloom sidecars let a
// multi-snapshot store prune which snapshots can contain a given
// column value before downloading anything.
package store

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts the object store holding snapshots.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Upload copies a local file to object storage.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies an object to the local filesystem.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting an absent object is not an
	// error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object is present.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
