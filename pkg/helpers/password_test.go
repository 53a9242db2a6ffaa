package helpers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-password")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-password", hash)
	assert.True(t, strings.HasPrefix(hash, "$2a$"))

	assert.True(t, CompareHashAndPassword(hash, "s3cret-password"))
	assert.False(t, CompareHashAndPassword(hash, "wrong-password"))
}

func TestHashPasswordSalted(t *testing.T) {
	a, err := HashPassword("same-input")
	require.NoError(t, err)
	b, err := HashPassword("same-input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
