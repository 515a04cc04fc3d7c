package session

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher encrypts session blobs before they hit the database. Persisted CMS
// cookies are credentials; a database dump must not leak them.
type Cipher struct {
	key []byte
}

// NewCipher derives a cipher from the configured secret
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	key := sha256.Sum256([]byte(secret))
	return &Cipher{key: key[:]}, nil
}

// Encrypt seals plaintext with a random nonce prepended to the ciphertext
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt
func (c *Cipher) Decrypt(blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(blob) < aead.NonceSize() {
		return nil, fmt.Errorf("session blob too short")
	}

	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session blob: %w", err)
	}
	return plaintext, nil
}
