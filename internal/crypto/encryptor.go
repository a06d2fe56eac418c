package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// keySize is the required key size for AES-256
	keySize = 32

	// ivSize is the GCM nonce length used by the stored format.
	ivSize = 16

	// tagSize is the GCM authentication tag length.
	tagSize = 16

	// defaultTokenBytes is the entropy of GenerateToken when no size is given.
	defaultTokenBytes = 32
)

var (
	// ErrMissingKey is returned when no encryption key is configured.
	ErrMissingKey = errors.New("encryption key is not configured")

	// ErrInvalidKey is returned when the key is not 64 hex characters.
	ErrInvalidKey = errors.New("encryption key must be 64 hex characters")

	// ErrInvalidFormat is returned when a stored value is not iv:tag:ciphertext.
	ErrInvalidFormat = errors.New("invalid encrypted value format")

	// ErrAuthenticationFailed is returned when the tag does not verify
	// (wrong key or tampered data).
	ErrAuthenticationFailed = errors.New("failed to authenticate encrypted value")
)

// Encryptor handles AES-256-GCM encryption of secrets at rest.
// The stored format is hex(iv) ":" hex(tag) ":" hex(ciphertext).
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor creates an encryptor from a 64 character hex key.
func NewEncryptor(hexKey string) (*Encryptor, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, ErrMissingKey
	}
	if len(hexKey) != keySize*2 {
		return nil, fmt.Errorf("%w: got %d characters", ErrInvalidKey, len(hexKey))
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: not hex", ErrInvalidKey)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &Encryptor{gcm: gcm}, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	// Seal appends the tag to the ciphertext.
	sealed := e.gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt opens a value produced by Encrypt.
func (e *Encryptor) Decrypt(encrypted string) (string, error) {
	parts := strings.Split(encrypted, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 parts, got %d", ErrInvalidFormat, len(parts))
	}

	iv, err := decodeHex(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", fmt.Errorf("%w: bad iv", ErrInvalidFormat)
	}
	tag, err := decodeHex(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: bad tag", ErrInvalidFormat)
	}
	ciphertext, err := decodeHex(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext", ErrInvalidFormat)
	}

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := e.gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	return string(plaintext), nil
}

// decodeHex accepts lowercase hex only, matching what Encrypt emits.
func decodeHex(s string) ([]byte, error) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return nil, ErrInvalidFormat
		}
	}
	return hex.DecodeString(s)
}

// Hash returns the hex SHA-256 digest of data.
func Hash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// GenerateToken returns n random bytes hex encoded.
// A non-positive n uses 32 bytes.
func GenerateToken(n int) (string, error) {
	if n <= 0 {
		n = defaultTokenBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
