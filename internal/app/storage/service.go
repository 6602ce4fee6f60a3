package storage

import (
	"context"
	"strings"
	"time"
)

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// S3PublicBaseURL is the public origin objects are served from (CDN or bucket domain).
	S3PublicBaseURL string
}

// StorageService defines the public interface for the profile image storage service.
type StorageService interface {
	// PresignUpload generates a pre-signed URL for uploading a file.
	PresignUpload(
		ctx context.Context,
		key string,
		mimeType string,
		fileSize int64,
		duration time.Duration,
	) (string, error)

	// Delete removes the file specified by the given key.
	Delete(ctx context.Context, key string) error

	// PublicURL returns the URL clients use to read the object.
	PublicURL(key string) string

	// KeyFromURL reverses PublicURL. ok is false for URLs this service does not own.
	KeyFromURL(url string) (key string, ok bool)
}

// NewStorageService is the factory function for StorageService.
// Currently, only S3 compatible implementations are supported.
func NewStorageService(ctx context.Context, cfg ServiceConfig) (StorageService, error) {
	return newS3Client(ctx, cfg)
}

func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

func keyFromURL(base, url string) (string, bool) {
	prefix := strings.TrimRight(base, "/") + "/"
	if base == "" || !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	return key, key != ""
}
