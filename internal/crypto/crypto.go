// Package crypto holds the gateway's three primitives: the AES-256-GCM AEAD
// used to seal the device-id cookie, the HMAC-SHA512 verification of request
// signatures, and the Blake2b digest used for IP hashing.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const (
	nonceSize = 12
	// A sealed 36-byte UUID is nonce(12) + ciphertext(36) + tag(16).
	sealedSize = 64
)

var (
	// ErrDecode means the ciphertext was not valid base64 or had the wrong shape.
	ErrDecode = errors.New("crypto: malformed ciphertext")
	// ErrAuth means the AEAD tag did not verify.
	ErrAuth = errors.New("crypto: authentication failed")
	// ErrSignature means the request signature did not verify.
	ErrSignature = errors.New("crypto: invalid signature")
)

// devSecret is the fixed development key. It is only used when SECRET is
// unset and the environment is development; config.Load refuses to start
// without a SECRET anywhere else. The bytes match the historic dev key so
// recorded device-id cookies keep decrypting in tests.
var devSecret = []byte{
	129, 164, 171, 19, 88, 96, 172, 49, 218, 122, 106, 79, 226, 124,
	112, 233, 172, 165, 64, 54, 31, 139, 249, 226, 199, 148, 8, 27,
	76, 91, 164, 146,
}

// DevSecret returns a copy of the development AEAD key.
func DevSecret() []byte {
	out := make([]byte, len(devSecret))
	copy(out, devSecret)
	return out
}

// DecodeSecret decodes a base64url (unpadded) process secret and checks its size.
func DecodeSecret(encoded string) ([]byte, error) {
	secret, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding SECRET: %w", err)
	}
	if len(secret) != 32 {
		return nil, fmt.Errorf("SECRET must be 32 bytes, got %d", len(secret))
	}
	return secret, nil
}

// Cipher seals and opens device-id cookies under the process-wide secret.
// It is read-only after construction and safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds the AEAD from a 256-bit secret.
func NewCipher(secret []byte) (*Cipher, error) {
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("building AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("building GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts a cleartext device id with a fresh random nonce and returns
// base64(nonce || ciphertext || tag).
func (c *Cipher) Seal(cleartext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("drawing nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(cleartext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed device id. Decode failures return ErrDecode, tag
// failures ErrAuth; callers collapse both into a bad-device-id response.
func (c *Cipher) Open(ciphertext string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecode
	}
	if len(decoded) <= nonceSize {
		return "", ErrDecode
	}

	nonce, sealed := decoded[:nonceSize], decoded[nonceSize:]
	cleartext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrAuth
	}
	return string(cleartext), nil
}

// VerifyHMAC checks a base64 HMAC-SHA512 signature of data under key using a
// constant-time compare. Any failure maps to ErrSignature.
func VerifyHMAC(key, data []byte, signatureB64 string) error {
	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return ErrSignature
	}

	mac := hmac.New(sha512.New, key)
	mac.Write(data)

	if !hmac.Equal(mac.Sum(nil), signature) {
		return ErrSignature
	}
	return nil
}

// HashIP returns the base64 Blake2b-512 digest of the IP string.
func HashIP(ip string) string {
	digest := blake2b.Sum512([]byte(ip))
	return base64.StdEncoding.EncodeToString(digest[:])
}
