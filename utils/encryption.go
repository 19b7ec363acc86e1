package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// Mailbox credentials are sealed with AES-CFB under the deployment's
// ENCRYPTION_KEY and stored as base64url(iv || ciphertext). The key length
// (16, 24 or 32 bytes) is enforced at config load; callers pass it in so
// the crypto layer stays free of globals.

// Encrypt seals plaintext under key. An empty plaintext stays empty, so
// optional credentials round-trip without a key.
func Encrypt(plaintext, key string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}

	sealed := make([]byte, aes.BlockSize+len(plaintext))
	iv := sealed[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(sealed[aes.BlockSize:], []byte(plaintext))

	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. An empty ciphertext stays empty.
func Decrypt(ciphertext, key string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	sealed, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	if len(sealed) < aes.BlockSize {
		return "", errors.New("decrypt: ciphertext shorter than one block")
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	plain := sealed[aes.BlockSize:]
	cipher.NewCFBDecrypter(block, sealed[:aes.BlockSize]).XORKeyStream(plain, plain)

	return string(plain), nil
}
