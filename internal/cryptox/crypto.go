// Package cryptox implements the audit cipher engine: AES-256-GCM
// envelopes with the layout nonce(12) || tag(16) || ciphertext.
//
// The same envelope is written either as raw bytes (media blobs) or as a
// single base64 line (conversation logs); Open accepts both via Open and
// OpenString respectively.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/dmsavelyev/chatvault/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the only accepted key length (AES-256).
	KeySize = 32

	nonceSize = 12
	tagSize   = 16
)

// Cipher seals and opens audit envelopes under a single 32-byte key.
// The key is supplied once at process start; a missing or wrong-length key
// is a configuration error, never a per-operation failure.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher returns a Cipher for the given 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: audit key must be %d bytes, got %d", common.ErrConfig, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfig, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfig, err)
	}
	return &Cipher{aead: aead}, nil
}

// LoadKey decodes a base64-encoded 32-byte key.
func LoadKey(b64 string) ([]byte, error) {
	if b64 == "" {
		return nil, fmt.Errorf("%w: audit key is not set (expected base64 of %d bytes)", common.ErrConfig, KeySize)
	}
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: audit key is not valid base64: %v", common.ErrConfig, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: audit key must be %d bytes, got %d", common.ErrConfig, KeySize, len(key))
	}
	return key, nil
}

// DeriveKey derives a 32-byte key from a passphrase and salt using argon2id.
// The same passphrase and salt always produce the same key, so a vault
// captured with a derived key can be remounted later from the passphrase.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// Seal encrypts plaintext into a self-contained envelope. A fresh random
// nonce is generated on every call; this is the sole non-determinism.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	// aead.Seal appends the tag after the ciphertext; the envelope layout
	// carries it between nonce and ciphertext.
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	envelope := make([]byte, 0, nonceSize+tagSize+len(ciphertext))
	envelope = append(envelope, nonce...)
	envelope = append(envelope, tag...)
	envelope = append(envelope, ciphertext...)
	return envelope, nil
}

// Open decrypts an envelope produced by Seal. It returns common.ErrIntegrity
// if the envelope is truncated or the authentication tag does not verify.
func (c *Cipher) Open(envelope []byte) ([]byte, error) {
	if len(envelope) < nonceSize+tagSize {
		return nil, fmt.Errorf("%w: envelope too short (%d bytes)", common.ErrIntegrity, len(envelope))
	}
	nonce := envelope[:nonceSize]
	tag := envelope[nonceSize : nonceSize+tagSize]
	ciphertext := envelope[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIntegrity, err)
	}
	return plaintext, nil
}

// SealString seals a UTF-8 payload and returns the envelope encoded as a
// single base64 line, suitable for appending to a conversation log.
func (c *Cipher) SealString(plaintext string) (string, error) {
	envelope, err := c.Seal([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(envelope), nil
}

// OpenString decodes a base64 log line and opens the envelope.
func (c *Cipher) OpenString(line string) (string, error) {
	envelope, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		return "", fmt.Errorf("%w: envelope is not valid base64: %v", common.ErrIntegrity, err)
	}
	plaintext, err := c.Open(envelope)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
