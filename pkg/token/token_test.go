package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	s := NewSigner("test-secret")

	tok, claims, err := s.Mint("agent-1", "session-9")
	require.NoError(t, err)
	require.NotEmpty(t, tok)
	assert.Equal(t, "agent-1", claims.AgentID)
	assert.Equal(t, "session-9", claims.SessionID)
	assert.Equal(t, claims.IssuedAt+int64(TTL.Seconds()), claims.ExpiresAt)

	got, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, claims, got)
}

func TestMintWithoutSession(t *testing.T) {
	s := NewSigner("test-secret")

	tok, _, err := s.Mint("agent-1", "")
	require.NoError(t, err)

	claims, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", claims.AgentID)
	assert.Empty(t, claims.SessionID)
}

func TestMintRequiresAgentID(t *testing.T) {
	s := NewSigner("test-secret")
	_, _, err := s.Mint("", "")
	require.Error(t, err)
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := NewSigner("test-secret")
	tok, _, err := s.Mint("agent-1", "")
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewSigner("other-secret")
		_, err := other.Verify(tok)
		assert.ErrorIs(t, err, ErrSignature)
	})

	t.Run("modified payload", func(t *testing.T) {
		dot := strings.IndexByte(tok, '.')
		forged := "eyJhZ2VudF9pZCI6ImV2aWwifQ" + tok[dot:]
		_, err := s.Verify(forged)
		assert.ErrorIs(t, err, ErrSignature)
	})

	t.Run("no separator", func(t *testing.T) {
		_, err := s.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("bad base64", func(t *testing.T) {
		_, err := s.Verify("!!!." + tok[strings.IndexByte(tok, '.')+1:])
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestVerifyExpired(t *testing.T) {
	s := NewSigner("test-secret")

	minted := time.Now()
	s.now = func() time.Time { return minted }
	tok, _, err := s.Mint("agent-1", "")
	require.NoError(t, err)

	// Just before expiry the token is still valid.
	s.now = func() time.Time { return minted.Add(TTL - 2*time.Second) }
	_, err = s.Verify(tok)
	require.NoError(t, err)

	s.now = func() time.Time { return minted.Add(TTL + time.Second) }
	_, err = s.Verify(tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestConfigured(t *testing.T) {
	assert.True(t, NewSigner("secret").Configured())
	assert.False(t, NewSigner("").Configured())
}
