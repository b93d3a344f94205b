package cryptocore

import (
	"encoding/base64"

	"golang.org/x/crypto/chacha20poly1305"
)

// Encrypt seals plaintext under key with XChaCha20-Poly1305. Every call draws
// a fresh 24-byte nonce, returned as ivB64.
func Encrypt(key RoomKey, plaintext []byte) (ivB64, ciphertextB64 string, err error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return "", "", err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if err := readRandom(nonce); err != nil {
		return "", "", err
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(nonce), base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt opens a message produced by Encrypt. Any malformed input, wrong key
// or tampering yields ErrDecrypt.
func Decrypt(key RoomKey, ivB64, ciphertextB64 string) ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrDecrypt
	}
	ct, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, ErrDecrypt
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}
