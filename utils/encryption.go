package utils

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrDecrypt = errors.New("decryption failed")

// TokenCipher seals access tokens for storage with a 32 byte key.
type TokenCipher struct {
	key [32]byte
}

func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	c := &TokenCipher{}
	copy(c.key[:], key)
	return c, nil
}

// Encrypt returns base64(nonce || sealed box).
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *TokenCipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
