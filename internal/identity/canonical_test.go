package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/genericchat/backend/internal/domain"
)

func TestCanonicalize(t *testing.T) {
	t.Run("ReplacesDotsAndAt", func(t *testing.T) {
		assert.Equal(t, domain.CanonicalKey("alice-example-com"), Canonicalize("alice@example.com"))
		assert.Equal(t, domain.CanonicalKey("first-last-mail-co-uk"), Canonicalize("first.last@mail.co.uk"))
	})

	t.Run("NeverContainsDotOrAt", func(t *testing.T) {
		inputs := []string{
			"a@b.c",
			"...@@@",
			"",
			"no-special-chars",
			"weird@@double@.dots..",
		}
		for _, in := range inputs {
			key := string(Canonicalize(in))
			assert.False(t, strings.ContainsAny(key, ".@"), "key %q from %q", key, in)
		}
	})

	t.Run("IdempotentOnCanonicalInput", func(t *testing.T) {
		key := Canonicalize("bob@example.com")
		assert.Equal(t, key, Canonicalize(string(key)))
	})

	t.Run("DistinctAddressesMayCollide", func(t *testing.T) {
		// Distinct addresses that collide after substitution map to one key.
		assert.Equal(t, Canonicalize("a.b@c.com"), Canonicalize("a@b@c-com"))
	})
}

func TestProfilePictureName(t *testing.T) {
	assert.Equal(t, "alice-example-com_profile_picture.png",
		ProfilePictureName(Canonicalize("alice@example.com")))
}
