package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prefix marks a credential value sealed with Seal.
const Prefix = "enc:"

var (
	ErrInvalidKey    = errors.New("SECRETS_KEY must be 32 bytes or base64-encoded 32 bytes")
	ErrSealedNoKey   = errors.New("sealed credential found but SECRETS_KEY is not set")
	errShortEnvelope = errors.New("sealed value is too short")
)

var newGCM = cipher.NewGCM

func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(decoded) != 32 {
		return nil, ErrInvalidKey
	}
	return decoded, nil
}

func IsSealed(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), Prefix)
}

// Seal encrypts plaintext with AES-GCM and returns it with Prefix so it can
// be stored in the environment.
func Seal(key []byte, plaintext string) (string, error) {
	gcm, err := aead(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	envelope := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(envelope), nil
}

// Open returns value unchanged unless it carries Prefix, in which case it is
// decrypted with key.
func Open(key []byte, value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if len(key) == 0 {
		return "", ErrSealedNoKey
	}
	gcm, err := aead(key)
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), Prefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	if len(data) < gcm.NonceSize() {
		return "", errShortEnvelope
	}
	plain, err := gcm.Open(nil, data[:gcm.NonceSize()], data[gcm.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plain), nil
}

func aead(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return newGCM(block)
}
