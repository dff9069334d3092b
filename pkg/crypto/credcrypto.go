// Package crypto implements credential encryption at rest:
// AES-256-CBC keyed by SHA-256(CREDENTIALS_ENCRYPTION_KEY), with
// ciphertext serialised as hex(iv):hex(ct). When no key is configured the
// box degrades to plaintext passthrough with a logged warning — acceptable
// in development, fatal to leave that way in production.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"
)

// EnvKey is the environment variable the process-level key is derived from.
const EnvKey = "CREDENTIALS_ENCRYPTION_KEY"

// Box seals and opens credential payloads with one process-level key.
type Box struct {
	key []byte // nil means plaintext passthrough
}

// NewBox derives the AES-256 key from secret via SHA-256. An empty secret
// yields a passthrough Box and logs a warning; callers running in production
// should treat that as a misconfiguration.
func NewBox(secret string) *Box {
	if strings.TrimSpace(secret) == "" {
		logx.Slowf("crypto: %s not set, credentials will be stored as plaintext", EnvKey)
		return &Box{}
	}
	sum := sha256.Sum256([]byte(secret))
	return &Box{key: sum[:]}
}

// Encrypting reports whether the box actually encrypts.
func (b *Box) Encrypting() bool { return len(b.key) > 0 }

// Seal encrypts plaintext and returns hex(iv):hex(ct). A passthrough box
// returns the plaintext unchanged.
func (b *Box) Seal(plaintext []byte) (string, error) {
	if !b.Encrypting() {
		return string(plaintext), nil
	}

	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", fmt.Errorf("crypto: new cipher: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("crypto: read iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ct), nil
}

// Open decrypts a hex(iv):hex(ct) value produced by Seal. Input without the
// iv:ct shape is treated as legacy plaintext and returned as-is, so rows
// written before a key was configured stay readable after one is added.
func (b *Box) Open(sealed string) ([]byte, error) {
	ivHex, ctHex, found := strings.Cut(sealed, ":")
	if !found || !b.Encrypting() {
		return []byte(sealed), nil
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		// Not our format after all; a raw credential JSON may contain ':'.
		return []byte(sealed), nil
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return []byte(sealed), nil
	}

	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("crypto: open: %w", err)
	}
	return unpadded, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	pad := int(data[len(data)-1])
	if pad < 1 || pad > blockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid padding byte %d", pad)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:len(data)-pad], nil
}
