package driven

// TokenEncryptor encrypts token material before it reaches a store.
type TokenEncryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}
