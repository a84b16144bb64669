package blob

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// Sealer encrypts and authenticates blob payloads.
type Sealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(ciphertext, aad []byte) ([]byte, error)
}

// AESSealer seals with AES-GCM. The random nonce is prepended to the output.
type AESSealer struct {
	aead cipher.AEAD
}

// NewAESSealer creates a sealer from a 16, 24 or 32 byte key.
func NewAESSealer(key []byte) (*AESSealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &AESSealer{aead: aead}, nil
}

// Seal implements Sealer.
func (s *AESSealer) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open implements Sealer.
func (s *AESSealer) Open(ciphertext, aad []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, errors.New("sealed payload too short")
	}
	return s.aead.Open(nil, ciphertext[:n], ciphertext[n:], aad)
}
