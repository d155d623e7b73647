package state

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// EncryptionKeyEnvVar holds the key used to encrypt state at rest.
	EncryptionKeyEnvVar = "DEPLOYR_STATE_ENCRYPTION_KEY"

	encryptedHeader = "# DEPLOYR_ENCRYPTED_STATE\n"
)

// Seal encrypts content with AES-256-GCM when an encryption key is configured,
// and returns it unchanged otherwise.
func Seal(content []byte) ([]byte, error) {
	gcm, err := stateCipher()
	if err != nil || gcm == nil {
		return content, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, content, nil)
	return []byte(encryptedHeader + base64.StdEncoding.EncodeToString(sealed) + "\n"), nil
}

// Open reverses Seal. Plain content passes through untouched.
func Open(content []byte) ([]byte, error) {
	if !IsEncrypted(content) {
		return content, nil
	}

	gcm, err := stateCipher()
	if err != nil {
		return nil, err
	}
	if gcm == nil {
		return nil, fmt.Errorf("state is encrypted but %s is not set", EncryptionKeyEnvVar)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(strings.TrimPrefix(string(content), encryptedHeader)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted state: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state (wrong key?): %w", err)
	}
	return plain, nil
}

// IsEncrypted checks if state content carries the encryption header.
func IsEncrypted(content []byte) bool {
	return strings.HasPrefix(string(content), encryptedHeader)
}

// stateCipher returns nil without error when no key is configured.
func stateCipher() (cipher.AEAD, error) {
	secret := os.Getenv(EncryptionKeyEnvVar)
	if secret == "" {
		return nil, nil
	}

	// AES-256: shorter keys are zero padded, longer ones truncated.
	key := make([]byte, 32)
	copy(key, secret)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
