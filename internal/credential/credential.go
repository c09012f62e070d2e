// Package credential encrypts login credentials the way the provider's API expects.
//
// The scheme is fixed by the server: a 16-byte key derived with a single round
// of PBKDF2-SHA1 over the key material and salt published by GET /config, then
// AES-128 in ECB mode over PKCS#7 padded plaintext.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength  = 16
	iterations = 1
)

// Cipher encrypts and decrypts credential fields under one derived key.
type Cipher struct {
	block cipher.Block
}

// New derives the session key from the server's key material and salt.
func New(key, salt []byte) (*Cipher, error) {
	derived := pbkdf2.Key(key, salt, iterations, keyLength, sha1.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("cannot create cipher: %w", err)
	}
	return &Cipher{block: block}, nil
}

// Encrypt derives a key from key and salt and encrypts plaintext with it.
func Encrypt(plaintext string, key, salt []byte) ([]byte, error) {
	c, err := New(key, salt)
	if err != nil {
		return nil, err
	}
	return c.Encrypt(plaintext), nil
}

// Encrypt returns the raw ciphertext of plaintext's UTF-8 bytes.
func (c *Cipher) Encrypt(plaintext string) []byte {
	padded := AddPadding([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		c.block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}
	return out
}

// EncryptString returns the base64 encoded ciphertext, ready for the wire.
func (c *Cipher) EncryptString(plaintext string) string {
	return base64.StdEncoding.EncodeToString(c.Encrypt(plaintext))
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(ciphertext []byte) (string, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		c.block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}
	plain, err := RemovePadding(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// DecryptString decodes a base64 ciphertext and decrypts it.
func (c *Cipher) DecryptString(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("cannot decode ciphertext: %w", err)
	}
	return c.Decrypt(raw)
}
