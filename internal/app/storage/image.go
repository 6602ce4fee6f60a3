package storage

import (
	"path/filepath"
	"strings"
	"time"

	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/randx"
)

const (
	// MaxImageSizeMB is the maximum allowed profile image size in megabytes.
	MaxImageSizeMB = 5

	// MaxImageSize is the maximum allowed profile image size in bytes.
	MaxImageSize = MaxImageSizeMB * 1024 * 1024

	// PresignedURLDuration is the fixed duration for which the upload URL is valid (5 minutes).
	PresignedURLDuration = 5 * time.Minute

	avatarPrefix = "avatars"
)

// AllowedMIMETypes defines the set of permitted MIME types for profile images.
var AllowedMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// ExtToMIME maps file extensions to their corresponding MIME types.
var ExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// ValidateFileSize checks if the provided file size is within acceptable limits.
func ValidateFileSize(fileSize int64) *errs.CustomError {
	if fileSize <= 0 {
		return errs.NewError(errs.ErrInvalidParams).WithField("fileSize", "must be greater than 0")
	}

	if fileSize > MaxImageSize {
		return errs.NewError(errs.ErrFileSizeTooLarge)
	}

	return nil
}

// ValidateFileType checks that the MIME type is allowed and agrees with the file extension.
func ValidateFileType(fileName string, mimeType string) *errs.CustomError {
	lowerMimeType := strings.ToLower(mimeType)

	if _, ok := AllowedMIMETypes[lowerMimeType]; !ok {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	expectedMIME, ok := ExtToMIME[ext]
	if !ok || expectedMIME != lowerMimeType {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}

	return nil
}

// AvatarKey builds a fresh object key for a user's profile image.
func AvatarKey(userID, fileName string) (string, error) {
	name, err := randx.Base62(16)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	return avatarPrefix + "/" + userID + "/" + name + ext, nil
}

// OwnsAvatar reports whether key lives under the user's avatar prefix.
func OwnsAvatar(userID, key string) bool {
	return strings.HasPrefix(key, avatarPrefix+"/"+userID+"/")
}
