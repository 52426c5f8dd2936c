// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

// sealedPrefix marks values written by a [Sealer] so plain legacy values can still be read.
const sealedPrefix = "sb1:"

const nonceSize = 24

// ErrUnseal is returned when a sealed value fails authentication.
var ErrUnseal = errors.New("sec: sealed value could not be opened")

// Sealer encrypts persisted session values with nacl/secretbox.
//
// A nil *Sealer is valid and passes values through unchanged.
type Sealer struct {
	key [32]byte
}

// NewSealer derives a secretbox key from secret. An empty secret returns nil.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, nil
	}

	s := &Sealer{}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("bizmap token store"))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return nil, fmt.Errorf("sec: failed to derive sealing key: %w", err)
	}
	return s, nil
}

// Seal encrypts plaintext and returns a printable value.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil {
		return plaintext, nil
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("sec: failed to generate nonce: %w", err)
	}

	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(box), nil
}

// Open reverses [Sealer.Seal]. Values without the sealed prefix are returned as-is.
func (s *Sealer) Open(value string) (string, error) {
	if s == nil || !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}

	box, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil || len(box) < nonceSize {
		return "", ErrUnseal
	}

	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])

	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrUnseal
	}
	return string(plain), nil
}
