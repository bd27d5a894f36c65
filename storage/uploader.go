package storage

import (
	"context"
	"io"
)

// UploadResult describes a stored object. Location is the browsable URL
// handed back to clients; Key is what Delete and GetPublicURL operate on.
type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader is the object-storage seam for payment proof screenshots and
// ticket images. Keys are path-style ("proofs/...", "tickets/...").
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	// Delete removes a stored object, e.g. the proof screenshot of a purged
	// registration.
	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}
