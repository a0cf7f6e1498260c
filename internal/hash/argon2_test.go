package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	h := New()

	digest, err := h.Hash("secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(digest, "$argon2id$"))

	assert.True(t, h.Verify(digest, "secret"))
	assert.False(t, h.Verify(digest, "not-the-secret"))
	assert.False(t, h.Verify(digest, ""))
}

func TestHashUsesFreshSalt(t *testing.T) {
	h := New()

	first, err := h.Hash("secret")
	require.NoError(t, err)
	second, err := h.Hash("secret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, h.Verify(first, "secret"))
	assert.True(t, h.Verify(second, "secret"))
}

func TestVerifyRejectsMalformedDigests(t *testing.T) {
	h := New()

	digest, err := h.Hash("secret")
	require.NoError(t, err)

	for _, bad := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=3,p=4$c2FsdA$a2V5",
		strings.Replace(digest, "argon2id", "argon2id ", 1),
		digest[:len(digest)-4],
	} {
		assert.False(t, h.Verify(bad, "secret"), "digest %q", bad)
	}
}
