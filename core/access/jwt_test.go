package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	identity := &Identity{Username: "alice", Role: "viewer", MustChangePassword: true}

	token, err := NewToken(identity, "secret", TokenLifetime)
	require.NoError(t, err)

	parsed, err := ParseToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, identity, parsed)
	assert.False(t, parsed.IsAdmin())
}

func TestTokenExpiry(t *testing.T) {
	identity := &Identity{Username: "alice", Role: "viewer"}

	token, err := NewToken(identity, "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "secret")
	assert.Error(t, err)
}

func TestTokenWrongSecret(t *testing.T) {
	identity := &Identity{Username: "alice", Role: "admin"}

	token, err := NewToken(identity, "secret", TokenLifetime)
	require.NoError(t, err)

	_, err = ParseToken(token, "other")
	assert.Error(t, err)
}

func TestTokenGarbage(t *testing.T) {
	_, err := ParseToken("not.a.token", "secret")
	assert.Error(t, err)
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, (&Identity{Username: "root", Role: RoleAdmin}).IsAdmin())
	assert.False(t, (&Identity{Username: "alice", Role: "viewer"}).IsAdmin())
	var nobody *Identity
	assert.False(t, nobody.IsAdmin())
}
