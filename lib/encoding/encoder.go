// Package encoding seals request attributes so they can travel inside
// server-rendered markup (data-hx-ajax) and be trusted by the client.
//
// Two modes are supported:
//   - Signed: msgpack + HMAC, readable but tamper-proof ("s." prefix)
//   - Encrypted: msgpack + AES-256-GCM, opaque ("e." prefix)
//
// The prefix tells Open which mode was used, so the client never needs to
// know in advance.
package encoding

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Errors returned by Open.
var (
	ErrInvalidFormat    = errors.New("encoding: invalid sealed attributes")
	ErrSignatureInvalid = errors.New("encoding: signature verification failed")
	ErrDecryptFailed    = errors.New("encoding: decryption failed")
)

const (
	signedPrefix    = "s."
	encryptedPrefix = "e."
	sigLen          = 16
)

// Codec seals and opens attribute maps with a shared key.
type Codec struct {
	key []byte
	gcm cipher.AEAD
}

// NewCodec creates a Codec. Keys shorter than 32 bytes are stretched with
// SHA-256.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) < 32 {
		h := sha256.Sum256(key)
		key = h[:]
	}
	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{key: key, gcm: gcm}, nil
}

// Seal encodes attrs. Sensitive attributes are encrypted, others signed.
func (c *Codec) Seal(attrs map[string]any, sensitive bool) (string, error) {
	packed, err := msgpack.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("encoding: marshal: %w", err)
	}
	if sensitive {
		return encryptedPrefix + c.encrypt(packed), nil
	}
	return signedPrefix + c.sign(packed), nil
}

// Open verifies or decrypts sealed attributes.
func (c *Codec) Open(sealed string) (map[string]any, error) {
	var packed []byte
	var err error
	switch {
	case strings.HasPrefix(sealed, signedPrefix):
		packed, err = c.verify(strings.TrimPrefix(sealed, signedPrefix))
	case strings.HasPrefix(sealed, encryptedPrefix):
		packed, err = c.decrypt(strings.TrimPrefix(sealed, encryptedPrefix))
	default:
		return nil, ErrInvalidFormat
	}
	if err != nil {
		return nil, err
	}

	var attrs map[string]any
	if err := msgpack.Unmarshal(packed, &attrs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return attrs, nil
}

func (c *Codec) mac(data []byte) []byte {
	m := hmac.New(sha256.New, c.key)
	m.Write(data)
	return m.Sum(nil)[:sigLen]
}

// sign produces base64(data) "." base64(mac).
func (c *Codec) sign(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data) + "." + base64.RawURLEncoding.EncodeToString(c.mac(data))
}

func (c *Codec) verify(encoded string) ([]byte, error) {
	body, sig, ok := strings.Cut(encoded, ".")
	if !ok {
		return nil, ErrInvalidFormat
	}
	data, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, ErrInvalidFormat
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return nil, ErrInvalidFormat
	}
	if !hmac.Equal(got, c.mac(data)) {
		return nil, ErrSignatureInvalid
	}
	return data, nil
}

func (c *Codec) encrypt(data []byte) string {
	nonce := make([]byte, c.gcm.NonceSize())
	_, _ = rand.Read(nonce)
	return base64.RawURLEncoding.EncodeToString(c.gcm.Seal(nonce, nonce, data, nil))
}

func (c *Codec) decrypt(encoded string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidFormat
	}
	if len(raw) < c.gcm.NonceSize() {
		return nil, ErrDecryptFailed
	}
	nonce, ciphertext := raw[:c.gcm.NonceSize()], raw[c.gcm.NonceSize():]
	data, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return data, nil
}
