// Package cryptox seals small JSON-serializable values with AES-GCM.
// It is used to keep caller cloud credentials confidential inside session
// tokens, which are only signed, not encrypted, by themselves.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dmitrijs2005/filecatalog/internal/common"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length produced by DeriveKey.
const KeySize = 32

// DeriveKey expands secret into a KeySize-byte key bound to info using
// HKDF-SHA256. The same (secret, info) pair always yields the same key.
func DeriveKey(secret []byte, info string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("derive key: empty secret")
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Seal serializes v to JSON and encrypts it with AES-GCM under key.
// A fresh random nonce is generated for every call and returned
// separately from the ciphertext.
//
// key must be 16, 24 or 32 bytes long.
func Seal(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	defer common.WipeByteArray(plaintext)

	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = common.GenerateRandByteArray(aead.NonceSize())
	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Open decrypts ciphertext produced by Seal and unmarshals the JSON into v.
func Open(ciphertext, nonce, key []byte, v any) error {
	aead, err := newGCM(key)
	if err != nil {
		return err
	}
	if len(nonce) != aead.NonceSize() {
		return fmt.Errorf("invalid nonce size %d", len(nonce))
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)

	return json.Unmarshal(plaintext, v)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
