package vcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// BlockSize is the AES block size and also the IV length used for every
// encrypted page.
const BlockSize = aes.BlockSize

// ErrBadPadding is returned by Unpad when the trailing PKCS-style padding
// bytes are not all equal to the pad count, or the pad count is out of
// range. It is a hard error: a page that fails to unpad cannot be trusted.
var ErrBadPadding = fmt.Errorf("vcrypto: invalid padding")

// Pad appends PKCS-style padding to b so the result's length is a multiple
// of BlockSize. Unlike textbook PKCS#7, which is block-size-agnostic only
// in theory, vfsarc always pads even when len(b) is already a multiple of
// BlockSize: a full block of padding (value 16, repeated 16 times) is
// appended, so Unpad can always find at least one padding byte.
func Pad(b []byte) []byte {
	padLen := BlockSize - (len(b) % BlockSize)
	out := make([]byte, len(b)+padLen)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

// Unpad validates and strips PKCS-style padding added by Pad. Every
// padding byte must equal the pad count; this is what lets a wrong
// decryption key be detected as ErrBadPadding rather than silently
// returning garbage.
func Unpad(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b)%BlockSize != 0 {
		return nil, ErrBadPadding
	}
	padLen := int(b[len(b)-1])
	if padLen == 0 || padLen > BlockSize || padLen > len(b) {
		return nil, ErrBadPadding
	}
	for _, c := range b[len(b)-padLen:] {
		if int(c) != padLen {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-padLen], nil
}

// EncryptCBC encrypts plaintext (which must already be a multiple of
// BlockSize; callers pass the output of Pad) using AES-256-CBC with the
// given key and iv, returning the ciphertext in a new slice; plaintext is
// left unmodified. iv is not modified and not consumed from plaintext; the caller is responsible for storing it alongside the
// ciphertext.
func EncryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("vcrypto: key must be %d bytes, got %d", KeyLen, len(key))
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("vcrypto: iv must be %d bytes, got %d", BlockSize, len(iv))
	}
	if len(plaintext)%BlockSize != 0 {
		return nil, fmt.Errorf("vcrypto: plaintext length %d is not a multiple of %d", len(plaintext), BlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out, nil
}

// DecryptCBC decrypts ciphertext using AES-256-CBC with the given key and
// iv. The result still carries PKCS-style padding; pass it through Unpad.
func DecryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("vcrypto: key must be %d bytes, got %d", KeyLen, len(key))
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("vcrypto: iv must be %d bytes, got %d", BlockSize, len(iv))
	}
	if len(ciphertext)%BlockSize != 0 {
		return nil, fmt.Errorf("vcrypto: ciphertext length %d is not a multiple of %d", len(ciphertext), BlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

// EncryptPage pads plaintext, generates a fresh random IV, encrypts it
// under key, and returns iv||ciphertext. The pages package writes its
// one-byte compression tag in front of this envelope, so an encrypted page
// on disk is tag, then IV, then ciphertext; the IV does not precede the
// tag.
func EncryptPage(key, plaintext []byte) ([]byte, error) {
	iv, err := RandomBytes(BlockSize)
	if err != nil {
		return nil, err
	}
	ct, err := EncryptCBC(key, iv, Pad(plaintext))
	if err != nil {
		return nil, err
	}
	return append(iv, ct...), nil
}

// DecryptPage reverses EncryptPage: ivAndCiphertext is iv||ciphertext, and
// the returned bytes are the original unpadded plaintext.
func DecryptPage(key, ivAndCiphertext []byte) ([]byte, error) {
	if len(ivAndCiphertext) < BlockSize {
		return nil, ErrBadPadding
	}
	iv := ivAndCiphertext[:BlockSize]
	ct := ivAndCiphertext[BlockSize:]
	padded, err := DecryptCBC(key, iv, ct)
	if err != nil {
		return nil, err
	}
	return Unpad(padded)
}

// WrapDataKey encrypts a long-lived random data key under a
// password-derived key, for the "encrypt-key" key mode: the archive stores
// WrapDataKey's output, and re-keying (changing the password) only needs
// to redo this wrap, not re-encrypt every page.
func WrapDataKey(passwordKey, dataKey []byte) ([]byte, error) {
	return EncryptPage(passwordKey, dataKey)
}

// UnwrapDataKey reverses WrapDataKey.
func UnwrapDataKey(passwordKey, wrapped []byte) ([]byte, error) {
	return DecryptPage(passwordKey, wrapped)
}
