// Package token mints and verifies the HMAC-signed tokens the bridge uses to
// authenticate WebSocket clients. The wire format is
// base64url(payload) "." hex(HMAC_SHA256(secret, payload)).
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TTL is the token lifetime.
const TTL = time.Hour

// Verification errors. ErrExpired maps to the AUTH_EXPIRED code on the wire.
var (
	ErrMalformed = errors.New("malformed token")
	ErrSignature = errors.New("token signature mismatch")
	ErrExpired   = errors.New("token expired")
)

// Claims is the signed payload.
type Claims struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Signer mints and verifies tokens with a shared secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer. The secret must match between the API process
// (mint) and the bridge process (verify).
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// Configured reports whether a signing secret is set.
func (s *Signer) Configured() bool {
	return len(s.secret) > 0
}

// Mint issues a token for an agent, optionally bound to a session.
func (s *Signer) Mint(agentID, sessionID string) (string, Claims, error) {
	if agentID == "" {
		return "", Claims{}, fmt.Errorf("agent_id required")
	}

	now := s.now().UTC()
	claims := Claims{
		AgentID:   agentID,
		SessionID: sessionID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(TTL).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", Claims{}, fmt.Errorf("failed to marshal token claims: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(payload) + "." + s.sign(payload), claims, nil
}

// Verify checks the signature and expiry and returns the claims.
func (s *Signer) Verify(tok string) (Claims, error) {
	dot := strings.IndexByte(tok, '.')
	if dot < 0 {
		return Claims{}, ErrMalformed
	}

	payload, err := base64.RawURLEncoding.DecodeString(tok[:dot])
	if err != nil {
		return Claims{}, ErrMalformed
	}

	// Timing-safe comparison over the hex signature.
	if !hmac.Equal([]byte(s.sign(payload)), []byte(tok[dot+1:])) {
		return Claims{}, ErrSignature
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, ErrMalformed
	}
	if claims.AgentID == "" {
		return Claims{}, ErrMalformed
	}
	if s.now().UTC().Unix() >= claims.ExpiresAt {
		return Claims{}, ErrExpired
	}
	return claims, nil
}

func (s *Signer) sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
