package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// randomBytes is the entropy behind verifiers and state tokens.
// 32 bytes encode to 43 base64url characters, inside the 43..128 range
// RFC 7636 allows for a code verifier.
const randomBytes = 32

// PKCEPair is a code verifier and its S256 challenge.
type PKCEPair struct {
	CodeVerifier  string
	CodeChallenge string
}

// GenerateCodeVerifier returns a new random PKCE code verifier.
func GenerateCodeVerifier() (string, error) {
	return randomURLToken()
}

// GenerateCodeChallenge derives the S256 challenge for a verifier.
func GenerateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyCodeChallenge reports whether challenge is the S256 challenge of verifier.
func VerifyCodeChallenge(verifier, challenge string) bool {
	expected := GenerateCodeChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) == 1
}

// GenerateState returns a CSRF state token. It is drawn independently
// of any verifier.
func GenerateState() (string, error) {
	return randomURLToken()
}

// CreatePKCEPair generates a verifier and its challenge.
func CreatePKCEPair() (*PKCEPair, error) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return nil, err
	}
	return &PKCEPair{
		CodeVerifier:  verifier,
		CodeChallenge: GenerateCodeChallenge(verifier),
	}, nil
}

func randomURLToken() (string, error) {
	b := make([]byte, randomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
