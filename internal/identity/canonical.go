// Package identity maps free-form account identifiers (emails) to canonical
// keys safe for use as storage path segments.
package identity

import (
	"strings"

	"github.com/genericchat/backend/internal/domain"
)

// Canonicalize replaces every '.' and '@' in an email address with '-'.
// It is pure and total: no syntax validation is performed, and distinct
// addresses may collide after substitution. Callers must treat the resulting
// key, not the original email, as the source of truth.
func Canonicalize(email string) domain.CanonicalKey {
	safe := strings.ReplaceAll(email, ".", "-")
	safe = strings.ReplaceAll(safe, "@", "-")
	return domain.CanonicalKey(safe)
}

// ProfilePictureName returns the blob-store object name for an account's
// profile picture.
func ProfilePictureName(key domain.CanonicalKey) string {
	return string(key) + "_profile_picture.png"
}
