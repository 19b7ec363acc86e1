package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := "smtp-secret-password"
	encrypted, err := Encrypt(plaintext, testKey)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, encrypted)

	decrypted, err := Decrypt(encrypted, testKey)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptEmptyString(t *testing.T) {
	encrypted, err := Encrypt("", testKey)
	require.NoError(t, err)
	assert.Empty(t, encrypted)

	decrypted, err := Decrypt("", testKey)
	require.NoError(t, err)
	assert.Empty(t, decrypted)
}

func TestEncryptIsRandomized(t *testing.T) {
	a, err := Encrypt("same input", testKey)
	require.NoError(t, err)
	b, err := Encrypt("same input", testKey)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "a fresh IV must produce different ciphertexts")
}

func TestEncryptRejectsBadKey(t *testing.T) {
	_, err := Encrypt("secret", "short-key")
	assert.Error(t, err)
}

func TestDecryptGarbage(t *testing.T) {
	_, err := Decrypt("not-base64!!!", testKey)
	assert.Error(t, err)

	_, err = Decrypt("c2hvcnQ=", testKey) // valid base64, shorter than one AES block
	assert.Error(t, err)
}
