// Package secret encrypts per-user secrets with a key derived from a
// process-wide master key and a per-secret salt.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	// SaltSize is the salt length in bytes
	SaltSize = 16
	// NonceSize is the AES-GCM nonce length in bytes
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag length in bytes
	TagSize = 16

	masterKeySize = 32
	derivedKeyLen = 32

	// scrypt cost parameters
	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

var (
	ErrInvalidMasterKey = errors.New("master key must be 64 hex characters (32 bytes)")
	ErrInvalidSalt      = errors.New("salt must be 16 bytes, hex encoded")
	ErrMalformedToken   = errors.New("ciphertext token must be nonce:tag:ciphertext in hex")
	ErrDecryption       = errors.New("secret decryption failed")
)

// Codec encrypts and decrypts secrets. It is safe for concurrent use.
type Codec struct {
	masterKey []byte
	random    io.Reader
}

// NewCodec validates the hex master key and creates a codec
func NewCodec(masterKeyHex string) (*Codec, error) {
	key, err := hex.DecodeString(strings.TrimSpace(masterKeyHex))
	if err != nil || len(key) != masterKeySize {
		return nil, ErrInvalidMasterKey
	}
	return &Codec{masterKey: key, random: rand.Reader}, nil
}

// NewSalt returns a fresh random salt, hex encoded
func (c *Codec) NewSalt() (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(c.random, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(salt), nil
}

// Encrypt seals plaintext under the key derived for saltHex and returns nonceHex:tagHex:ciphertextHex
func (c *Codec) Encrypt(plaintext, saltHex string) (string, error) {
	aead, err := c.aead(saltHex)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, ":"), nil
}

// Decrypt authenticates and opens a token produced by Encrypt.
// Any tampering, wrong salt or wrong master key yields ErrDecryption.
func (c *Codec) Decrypt(token, saltHex string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", ErrMalformedToken
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != NonceSize {
		return "", ErrMalformedToken
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != TagSize {
		return "", ErrMalformedToken
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformedToken
	}

	aead, err := c.aead(saltHex)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}

// aead derives the per-salt key on every call; derived keys are never cached.
func (c *Codec) aead(saltHex string) (cipher.AEAD, error) {
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) != SaltSize {
		return nil, ErrInvalidSalt
	}

	key, err := scrypt.Key(c.masterKey, salt, scryptN, scryptR, scryptP, derivedKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, NonceSize)
}
