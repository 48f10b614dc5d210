package storage

import (
	"context"
	"path"
	"time"

	"github.com/google/uuid"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

// FileStorage defines the interface for object storage operations.
type FileStorage interface {
	// GeneratePresignedUploadURL creates a temporary URL that allows PUT requests
	// for uploading an object directly to the storage provider.
	GeneratePresignedUploadURL(ctx context.Context, objectKey string, contentType string, expires time.Duration) (string, error)

	// GeneratePresignedDownloadURL creates a temporary URL that allows GET requests
	// so the generation service can fetch a form-check video.
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)
}

// FormCheckObjectKey builds a unique object key for a form-check video owned
// by ownerHex. The original extension is kept so content sniffing works.
func FormCheckObjectKey(ownerHex, fileName string) string {
	return path.Join("form-checks", ownerHex, uuid.NewString()+path.Ext(fileName))
}
