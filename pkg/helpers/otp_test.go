package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenOTPCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenOTPCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "code %q contains non-digit", code)
		}
		seen[code] = true
	}
	// 50 draws from a million values should essentially never collapse to one
	assert.Greater(t, len(seen), 1)
}

func TestOTPEqual(t *testing.T) {
	assert.True(t, OTPEqual("123456", "123456"))
	assert.False(t, OTPEqual("123456", "654321"))
	assert.False(t, OTPEqual("123456", "12345"))
	// empty stored code matches nothing, including empty input
	assert.False(t, OTPEqual("", ""))
	assert.False(t, OTPEqual("", "123456"))
}

func TestGenTwoFactorSecret(t *testing.T) {
	a, err := GenTwoFactorSecret()
	require.NoError(t, err)
	b, err := GenTwoFactorSecret()
	require.NoError(t, err)
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
