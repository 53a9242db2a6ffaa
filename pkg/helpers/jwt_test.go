package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(sessionTTL, verifyTTL time.Duration) *TokenManager {
	return NewTokenManager("session-secret", "verify-secret", sessionTTL, verifyTTL)
}

func TestSessionTokenRoundTrip(t *testing.T) {
	m := newTestManager(time.Hour, time.Hour)

	token, exp, err := m.GenerateSessionToken("user-1", "Researcher")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.ParseSessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "Researcher", claims.Role)
}

func TestVerifyTokenRoundTrip(t *testing.T) {
	m := newTestManager(time.Hour, time.Hour)

	token, _, err := m.GenerateVerifyToken("user-2")
	require.NoError(t, err)

	claims, err := m.ParseVerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-2", claims.UserID)
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	m := newTestManager(time.Hour, time.Hour)

	session, _, err := m.GenerateSessionToken("user-3", "Technician")
	require.NoError(t, err)
	verify, _, err := m.GenerateVerifyToken("user-3")
	require.NoError(t, err)

	_, err = m.ParseVerifyToken(session)
	assert.Error(t, err)
	_, err = m.ParseSessionToken(verify)
	assert.Error(t, err)
}

func TestExpiredSessionTokenRejected(t *testing.T) {
	m := newTestManager(-time.Minute, time.Hour)

	token, _, err := m.GenerateSessionToken("user-4", "Admin")
	require.NoError(t, err)

	_, err = m.ParseSessionToken(token)
	assert.Error(t, err)
}

func TestTamperedTokenRejected(t *testing.T) {
	m := newTestManager(time.Hour, time.Hour)
	other := NewTokenManager("other-secret", "other-verify", time.Hour, time.Hour)

	token, _, err := other.GenerateSessionToken("user-5", "Researcher")
	require.NoError(t, err)

	_, err = m.ParseSessionToken(token)
	assert.Error(t, err)
}
