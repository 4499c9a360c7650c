// Package storage derives content-addressed object keys for uploaded attachments.
//
// A retried upload of the same attachment lands on the same key, so a drain that
// fails after an upload does not leave a new orphan object on every attempt.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kimhsiao/damagelog/backend/internal/models"
)

// HashPrefixLen is the number of hex digits of the content hash used in keys.
const HashPrefixLen = 16

// CalculateHash calculates SHA-256 hash of content.
func CalculateHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// DetectContentType sniffs the MIME type of data, ignoring any parameters.
func DetectContentType(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return mt
}

// Extension returns the file extension (with dot) for a content type.
// It falls back to sniffing data when the content type is unknown.
func Extension(contentType string, data []byte) string {
	if contentType != "" {
		if mt := mimetype.Lookup(contentType); mt != nil && mt.Extension() != "" {
			return mt.Extension()
		}
	}
	if ext := mimetype.Detect(data).Extension(); ext != "" {
		return ext
	}
	return ".bin"
}

// ObjectKey returns reports/<entry id>/<kind>/<hash prefix><ext>.
func ObjectKey(entryID string, kind models.AttachmentKind, a models.Attachment) string {
	hash := CalculateHash(a.Data)
	return fmt.Sprintf("reports/%s/%s/%s%s", entryID, kind, hash[:HashPrefixLen], Extension(a.ContentType, a.Data))
}
