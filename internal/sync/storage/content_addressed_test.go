// Package storage tests for content-addressed object keys.
package storage

import (
	"strings"
	"testing"

	"github.com/kimhsiao/damagelog/backend/internal/models"
)

// Minimal PNG header, enough for sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestCalculateHash(t *testing.T) {
	// SHA-256 of "hello"
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := CalculateHash([]byte("hello")); got != want {
		t.Errorf("CalculateHash() = %s, want %s", got, want)
	}
	if CalculateHash([]byte("a")) == CalculateHash([]byte("b")) {
		t.Error("different content produced the same hash")
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", pngHeader, "image/png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F', 0}, "image/jpeg"},
		{"text strips charset", []byte("plain words"), "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectContentType(tt.data); got != tt.want {
				t.Errorf("DetectContentType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtension(t *testing.T) {
	if got := Extension("image/jpeg", nil); got != ".jpg" {
		t.Errorf("Extension(image/jpeg) = %q, want .jpg", got)
	}
	if got := Extension("", pngHeader); got != ".png" {
		t.Errorf("Extension(sniffed png) = %q, want .png", got)
	}
	if got := Extension("application/x-unknown-thing", []byte{0x00, 0x01}); got != ".bin" {
		t.Errorf("Extension(unknown) = %q, want .bin", got)
	}
}

func TestObjectKey(t *testing.T) {
	a := models.Attachment{ContentType: "image/png", Data: pngHeader}
	key := ObjectKey("0190a5d0-ac96-774b-bcce-b302099a8057", models.KindImage, a)

	prefix := "reports/0190a5d0-ac96-774b-bcce-b302099a8057/image/"
	if !strings.HasPrefix(key, prefix) {
		t.Fatalf("ObjectKey() = %q, want prefix %q", key, prefix)
	}
	if !strings.HasSuffix(key, ".png") {
		t.Errorf("ObjectKey() = %q, want .png suffix", key)
	}
	if name := strings.TrimSuffix(strings.TrimPrefix(key, prefix), ".png"); len(name) != HashPrefixLen {
		t.Errorf("hash part = %q, want %d chars", name, HashPrefixLen)
	}

	if ObjectKey("x", models.KindImage, a) != ObjectKey("x", models.KindImage, a) {
		t.Error("ObjectKey() must be deterministic")
	}
	other := models.Attachment{ContentType: "image/png", Data: append([]byte{}, append(pngHeader, 1)...)}
	if ObjectKey("x", models.KindImage, a) == ObjectKey("x", models.KindImage, other) {
		t.Error("different content must map to different keys")
	}
}
