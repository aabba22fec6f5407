package moderation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// CallbackTokenParam is the query parameter that carries a callback's token.
const CallbackTokenParam = "token"

// ErrNoCallbackSecret is returned by NewCallbackSigner for an empty secret.
var ErrNoCallbackSecret = errors.New("moderation: callback secret is required")

// CallbackSigner issues and checks the tokens embedded in callback URLs. A
// token binds one moderation handle, so a URL handed to a provider cannot be
// replayed against another transaction.
type CallbackSigner struct {
	key []byte
}

// NewCallbackSigner returns a signer keyed by secret.
func NewCallbackSigner(secret string) (*CallbackSigner, error) {
	if secret == "" {
		return nil, ErrNoCallbackSecret
	}
	return &CallbackSigner{key: []byte(secret)}, nil
}

// Sign returns the token for handle.
func (s *CallbackSigner) Sign(handle string) string {
	mac := hmac.New(sha256.New, s.key)
	_, _ = mac.Write([]byte(handle))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether token was issued for handle.
func (s *CallbackSigner) Verify(handle, token string) bool {
	if token == "" {
		return false
	}
	return hmac.Equal([]byte(s.Sign(handle)), []byte(token))
}
