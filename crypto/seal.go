package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Key derivation parameters for sealed blobs.
const (
	kdfTime    uint32 = 2
	kdfMemory  uint32 = 19 * 1024
	kdfThreads uint8  = 1
	saltSize          = 16
)

const ErrMalformed = Error("malformed secret blob")
const ErrDecrypt = Error("message authentication failed")

type Error string

func (err Error) Error() string {
	return string(err)
}

// Seal encrypts plaintext with a key derived from passphrase and returns
// base64(salt | nonce | ciphertext).
func Seal(passphrase string, plaintext []byte) (string, error) {
	if passphrase == "" {
		return "", fmt.Errorf("empty key")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	blob := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+aead.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = aead.Seal(blob, nonce, plaintext, nil)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Open reverses Seal. A wrong passphrase yields ErrDecrypt.
func Open(passphrase string, sealed string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("empty key")
	}

	blob, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w - %s", ErrMalformed, err)
	}
	if len(blob) < saltSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, ErrMalformed
	}

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	ciphertext := blob[saltSize+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, chacha20poly1305.KeySize)
}
