// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Keys holds the symmetric key material for one encryption level: an
// AEAD for payload protection and a block cipher for header protection.
//
// Deriving these from the TLS handshake transcript is the handshake's
// job and stays out of scope for this package; NewKeys instead derives
// them from an opaque per-level secret handed in by that external
// collaborator, using the same HKDF-based schedule shape RFC 9001 uses,
// simplified since the label/context inputs the handshake would supply
// aren't modeled here.
type Keys struct {
	aead       cipher.AEAD
	hpBlock    cipher.Block
	iv         []byte
	set        bool
}

// IsSet reports whether keys have been installed for this level yet;
// the send path checks this before attempting to build a packet at a
// given level.
func (k Keys) IsSet() bool { return k.set }

// NewKeys derives AEAD and header-protection keys from secret using
// HKDF-SHA256 (golang.org/x/crypto/hkdf).
func NewKeys(secret []byte) (Keys, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte("kwik quic key"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return Keys{}, fmt.Errorf("derive aead key: %w", err)
	}
	iv := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(r, iv); err != nil {
		return Keys{}, fmt.Errorf("derive iv: %w", err)
	}
	hpKey := make([]byte, 16)
	if _, err := io.ReadFull(r, hpKey); err != nil {
		return Keys{}, fmt.Errorf("derive header protection key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return Keys{}, fmt.Errorf("build aead: %w", err)
	}
	hpBlock, err := aes.NewCipher(padTo16(hpKey))
	if err != nil {
		return Keys{}, fmt.Errorf("build header protection cipher: %w", err)
	}
	return Keys{aead: aead, hpBlock: hpBlock, iv: iv, set: true}, nil
}

func padTo16(b []byte) []byte {
	if len(b) >= 16 {
		return b[:16]
	}
	out := make([]byte, 16)
	copy(out, b)
	return out
}

// nonce returns the per-packet nonce: the IV XORed with the packet
// number, per RFC 9001 §5.3.
func (k Keys) nonce(pn int64) []byte {
	n := append([]byte(nil), k.iv...)
	for i := 0; i < 8 && i < len(n); i++ {
		n[len(n)-1-i] ^= byte(pn >> (8 * i))
	}
	return n
}

// Seal AEAD-protects payload into a newly allocated slice, returning
// ciphertext+tag; payload itself is left unmodified. aad is
// the packet header bytes preceding the payload.
func (k Keys) Seal(pn int64, aad, payload []byte) []byte {
	return k.aead.Seal(nil, k.nonce(pn), payload, aad)
}

// Open reverses Seal.
func (k Keys) Open(pn int64, aad, ciphertext []byte) ([]byte, error) {
	return k.aead.Open(nil, k.nonce(pn), ciphertext, aad)
}

// headerProtectionMask derives the header protection mask from a sample
// of ciphertext, per RFC 9001 §5.4. It returns the full cipher block;
// callers use only its first 5 bytes.
func (k Keys) headerProtectionMask(sample []byte) []byte {
	mask := make([]byte, k.hpBlock.BlockSize())
	k.hpBlock.Encrypt(mask, sample)
	return mask
}
