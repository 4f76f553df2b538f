// Package tokens issues confirmation link tokens and hashes them for storage.
//
// A token is 32 random bytes, base64url encoded. Only its digest is persisted:
// SHA-256 by default, HMAC-SHA256 when a key is configured.
package tokens

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
)

const (
	TokenBytes      = 32
	MinHMACKeyBytes = 32
)

var ErrHMACKeyTooShort = errors.New("tokens: hmac key too short")

type Issuer struct {
	key     []byte
	entropy io.Reader
}

// NewIssuer returns an issuer hashing with HMAC when key is non-empty.
func NewIssuer(key []byte) (*Issuer, error) {
	if len(key) > 0 && len(key) < MinHMACKeyBytes {
		return nil, ErrHMACKeyTooShort
	}
	return &Issuer{key: key, entropy: rand.Reader}, nil
}

func (i *Issuer) IssuePair() (string, string, error) {
	customer, err := i.newToken()
	if err != nil {
		return "", "", err
	}
	provider, err := i.newToken()
	if err != nil {
		return "", "", err
	}
	return customer, provider, nil
}

func (i *Issuer) Hash(token string) string {
	if len(i.key) == 0 {
		sum := sha256.Sum256([]byte(token))
		return hex.EncodeToString(sum[:])
	}
	m := hmac.New(sha256.New, i.key)
	_, _ = m.Write([]byte(token))
	return hex.EncodeToString(m.Sum(nil))
}

func (i *Issuer) newToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(i.entropy, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
