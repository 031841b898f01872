// Package vcrypto implements the cryptographic primitives vfsarc uses to
// encrypt pages: PBKDF2-HMAC-SHA256 key derivation, AES-256-CBC with
// PKCS-style padding, and a secure random number source with a documented
// fallback chain.
package vcrypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// KeyLen is the length in bytes of an AES-256 key.
const KeyLen = 32

// SaltLen is the length in bytes of the per-archive salt stored alongside
// a password-derived key.
const SaltLen = 16

// DeriveKey runs PBKDF2-HMAC-SHA256 over password and salt for iterations
// rounds, returning a keyLen-byte key. The inner HMAC state reuse that
// makes PBKDF2 cheap is entirely inside golang.org/x/crypto/pbkdf2; we
// don't hand-roll HMAC here.
func DeriveKey(password, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key(password, salt, iterations, keyLen, sha256.New)
}
