package storage

import (
	"strings"
	"testing"

	"cycleconnect/internal/pkg/errs"
)

func TestValidateFileType(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		mimeType string
		wantCode int
	}{
		{"jpeg", "me.JPG", "image/jpeg", 0},
		{"png upper mime", "me.png", "IMAGE/PNG", 0},
		{"mismatch", "me.png", "image/jpeg", errs.ErrFileTypeInvalid},
		{"no extension", "me", "image/png", errs.ErrFileTypeInvalid},
		{"pdf", "cv.pdf", "application/pdf", errs.ErrFileTypeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFileType(tt.fileName, tt.mimeType)
			if tt.wantCode == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Code != tt.wantCode {
				t.Fatalf("expected code %d, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestValidateFileSize(t *testing.T) {
	if err := ValidateFileSize(1024); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateFileSize(0); err == nil || err.Code != errs.ErrInvalidParams {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
	if err := ValidateFileSize(MaxImageSize + 1); err == nil || err.Code != errs.ErrFileSizeTooLarge {
		t.Errorf("expected ErrFileSizeTooLarge, got %v", err)
	}
}

func TestAvatarKey(t *testing.T) {
	key, err := AvatarKey("user-1", "Face.PNG")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(key, "avatars/user-1/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("unexpected key %q", key)
	}
	if !OwnsAvatar("user-1", key) {
		t.Error("user should own their avatar key")
	}
	if OwnsAvatar("user-2", key) {
		t.Error("another user must not own the key")
	}
	other, _ := AvatarKey("user-1", "Face.PNG")
	if other == key {
		t.Error("keys should be unique")
	}
}

func TestPublicURLRoundTrip(t *testing.T) {
	base := "https://cdn.example.com/"
	url := publicURL(base, "avatars/u/abc.png")
	if url != "https://cdn.example.com/avatars/u/abc.png" {
		t.Fatalf("unexpected url %q", url)
	}

	key, ok := keyFromURL(base, url)
	if !ok || key != "avatars/u/abc.png" {
		t.Fatalf("expected key back, got %q %v", key, ok)
	}

	if _, ok := keyFromURL(base, "https://elsewhere.example.com/x.png"); ok {
		t.Error("foreign URL must not resolve to a key")
	}
	if _, ok := keyFromURL("", url); ok {
		t.Error("empty base must not resolve")
	}
}
