package kms

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// KeyCache decrypts a ciphertext on first use and keeps the plaintext for the life of the
// process. Failed attempts are not cached.
type KeyCache struct {
	keys       KeyService
	ciphertext []byte

	mu        sync.Mutex
	plaintext []byte
}

func NewKeyCache(keys KeyService, ciphertext []byte) *KeyCache {
	return &KeyCache{keys: keys, ciphertext: ciphertext}
}

// NewKeyCacheFromBase64 accepts the base64 ciphertext as it appears in configuration.
func NewKeyCacheFromBase64(keys KeyService, encoded string) (*KeyCache, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, errors.Wrap(err, "decode encrypted key")
	}

	return NewKeyCache(keys, ciphertext), nil
}

func (c *KeyCache) Get(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.plaintext != nil {
		return c.plaintext, nil
	}

	plaintext, err := c.keys.Decrypt(ctx, c.ciphertext)
	if err != nil {
		return nil, err
	}

	c.plaintext = plaintext
	return plaintext, nil
}
