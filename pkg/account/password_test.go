package account

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse", DefaultBcryptCost)
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.NotContains(t, hash, "correct horse")

	u := &User{PasswordHash: hash}
	assert.True(t, VerifyPassword(u, "correct horse"))
	assert.False(t, VerifyPassword(u, "battery staple"))
}

func TestHashPasswordFloorsCost(t *testing.T) {
	// A cost below the floor must not weaken the hash
	hash, err := HashPassword("secret", 4)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2a$12$"), "hash should carry the floored cost: %s", hash)
}

func TestVerifyPasswordFederationOnlyAccount(t *testing.T) {
	// Google-only accounts have no hash; any candidate must fail closed
	u := &User{PasswordHash: ""}
	assert.False(t, VerifyPassword(u, ""))
	assert.False(t, VerifyPassword(u, "anything"))
}
