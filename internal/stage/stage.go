// Package stage provides the durable object store that holds serialized
// batch payloads between production and warehouse loading. Every staged
// object is a cleanup liability from the moment it is written: loaders
// delete it on success and failure alike.
package stage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Stage is a bucket-scoped object store session.
type Stage interface {
	// Ping verifies connectivity and credentials.
	Ping(ctx context.Context) error
	// EnsureBucket creates the configured bucket if missing.
	EnsureBucket(ctx context.Context) error

	Upload(ctx context.Context, blob string, data []byte) error
	// UploadStream stages from a reader without materializing the payload.
	// size may be -1 when unknown.
	UploadStream(ctx context.Context, blob string, r io.Reader, size int64) error

	Download(ctx context.Context, blob string) ([]byte, error)
	// Open streams a staged object; the caller closes the reader.
	Open(ctx context.Context, blob string) (io.ReadCloser, error)

	// Delete removes a staged object. Deleting an absent object is not an
	// error; the return reports whether the object existed.
	Delete(ctx context.Context, blob string) (bool, error)

	List(ctx context.Context, prefix string) ([]string, error)

	// SignedURL mints a pre-authorized URL for direct access to a blob.
	// method is "GET" or "PUT".
	SignedURL(ctx context.Context, blob, method string, ttl time.Duration) (string, error)
}

// BlobName builds the staging path for one table payload:
// {dataset}/{table}/{timestamp}_{filename}. The nanosecond timestamp keeps
// concurrent stagings of the same file from colliding.
func BlobName(dataset, table, filename string) string {
	return fmt.Sprintf("%s/%s/%d_%s", dataset, table, time.Now().UnixNano(), filename)
}
