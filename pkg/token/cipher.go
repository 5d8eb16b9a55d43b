package token

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/turtacn/trustkit/pkg/errors"
)

// payloadCipher encrypts the payload segment of a signed token with AES-CBC.
// The random IV is prepended to the ciphertext and the plaintext is PKCS#7 padded.
type payloadCipher struct {
	block cipher.Block
}

func newPayloadCipher(key string) (*payloadCipher, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, errors.ErrCrypto("invalid encryption key: must be 16, 24 or 32 bytes").
			WithCause(err).
			WithMetadata("key_length", len(key))
	}
	return &payloadCipher{block: block}, nil
}

func (c *payloadCipher) seal(plaintext []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	padded := pkcs7Pad(plaintext, bs)

	out := make([]byte, bs+len(padded))
	iv := out[:bs]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, errors.ErrCrypto("failed to generate IV").WithCause(err)
	}
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[bs:], padded)
	return out, nil
}

func (c *payloadCipher) open(data []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	if len(data) < 2*bs || len(data)%bs != 0 {
		return nil, errors.ErrCrypto("ciphertext has invalid length").
			WithMetadata("length", len(data))
	}
	iv, body := data[:bs], data[bs:]
	plaintext := make([]byte, len(body))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plaintext, body)
	return pkcs7Unpad(plaintext, bs)
}

// encryptPayload replaces the payload segment of token with its ciphertext.
// Header and signature segments are left untouched.
func (c *payloadCipher) encryptPayload(token string) (string, error) {
	parts, err := splitSegments(token)
	if err != nil {
		return "", err
	}
	plaintext, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", errors.ErrCrypto("payload segment is not base64url").WithCause(err)
	}
	sealed, err := c.seal(plaintext)
	if err != nil {
		return "", err
	}
	parts[1] = base64.RawURLEncoding.EncodeToString(sealed)
	return strings.Join(parts, "."), nil
}

// decryptPayload reverses encryptPayload, restoring the signed payload segment.
func (c *payloadCipher) decryptPayload(token string) (string, error) {
	parts, err := splitSegments(token)
	if err != nil {
		return "", err
	}
	sealed, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", errors.ErrCrypto("encrypted payload is not base64url").WithCause(err)
	}
	plaintext, err := c.open(sealed)
	if err != nil {
		return "", err
	}
	parts[1] = base64.RawURLEncoding.EncodeToString(plaintext)
	return strings.Join(parts, "."), nil
}

func splitSegments(token string) ([]string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.ErrVerification(fmt.Sprintf("token must have 3 segments, got %d", len(parts)))
	}
	return parts, nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errors.ErrCrypto("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errors.ErrCrypto("invalid padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.ErrCrypto("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
