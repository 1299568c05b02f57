package object

import (
	"context"
	"io"
	"time"
)

// Object describes a stored blob.
type Object struct {
	Key       string
	SizeBytes int64
	MimeType  string
}

// ObjectStore defines the contract for saving and retrieving plan files.
// URL returns an address the external workflow can fetch the object from.
type ObjectStore interface {
	Save(ctx context.Context, userID string, fileName string, r io.Reader) (Object, error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	URL(storageKey string) string
}

// PresignedUpload is a direct-to-bucket upload target handed to the browser.
type PresignedUpload struct {
	UploadURL string
	Key       string
	FileURL   string
	ExpiresIn time.Duration
}

// Presigner is implemented by stores that support direct browser uploads.
type Presigner interface {
	PresignPut(ctx context.Context, userID, fileName, contentType string, expires time.Duration) (PresignedUpload, error)
}
