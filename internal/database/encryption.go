package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/mariovalmir/chatwoot/internal/constants"

	"golang.org/x/crypto/pbkdf2"
)

// encryptedPrefix marks values written by an enabled encryptor, so rows
// stored before encryption was switched on still read back.
const encryptedPrefix = "enc:v1:"

// encryptor seals contact phone numbers at rest with AES-GCM. A nil gcm
// passes values through unchanged.
type encryptor struct {
	gcm cipher.AEAD
}

// newEncryptor derives the key from secret. An empty secret disables
// encryption.
func newEncryptor(secret string) (*encryptor, error) {
	if secret == "" {
		return &encryptor{}, nil
	}
	if len(secret) < constants.MinEncryptionKeyChars {
		return nil, fmt.Errorf("encryption key must be at least %d characters long", constants.MinEncryptionKeyChars)
	}

	key := pbkdf2.Key([]byte(secret), []byte(constants.EncryptionSalt), constants.EncryptionIterations, constants.EncryptionKeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, constants.EncryptionNonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &encryptor{gcm: gcm}, nil
}

func (e *encryptor) enabled() bool { return e != nil && e.gcm != nil }

func (e *encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || !e.enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, constants.EncryptionNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *encryptor) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, encryptedPrefix) {
		return stored, nil
	}
	if !e.enabled() {
		return "", fmt.Errorf("value is encrypted but no encryption key is configured")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < constants.EncryptionNonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := data[:constants.EncryptionNonceSize], data[constants.EncryptionNonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
