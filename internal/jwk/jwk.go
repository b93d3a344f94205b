// Package jwk encodes and validates X25519 device public keys in JWK form.
package jwk

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	KeyTypeOKP   = "OKP"
	CurveX25519  = "X25519"
	x25519KeyLen = 32
)

var ErrInvalidKey = errors.New("jwk: invalid X25519 public key")

// Key is an OKP JWK. D is only populated for locally stored private keys.
type Key struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	D   string `json:"d,omitempty"`
	Kid string `json:"kid,omitempty"`
}

func FromPublic(pub [32]byte) Key {
	return Key{
		Kty: KeyTypeOKP,
		Crv: CurveX25519,
		X:   base64.RawURLEncoding.EncodeToString(pub[:]),
	}
}

// Public returns the key without any private member.
func (k Key) Public() Key {
	k.D = ""
	return k
}

// ParsePublic decodes a JWK document and returns the raw X25519 public key.
// Documents carrying private material are rejected.
func ParsePublic(raw []byte) ([32]byte, error) {
	var out [32]byte
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if _, ok := fields["d"]; ok {
		return out, fmt.Errorf("%w: private member present", ErrInvalidKey)
	}
	var k Key
	if err := json.Unmarshal(raw, &k); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return k.PublicBytes()
}

func (k Key) PublicBytes() ([32]byte, error) {
	var out [32]byte
	if k.Kty != KeyTypeOKP {
		return out, fmt.Errorf("%w: kty %q", ErrInvalidKey, k.Kty)
	}
	if k.Crv != CurveX25519 {
		return out, fmt.Errorf("%w: crv %q", ErrInvalidKey, k.Crv)
	}
	x, err := decodeMember(k.X)
	if err != nil || len(x) != x25519KeyLen {
		return out, fmt.Errorf("%w: x must be %d bytes", ErrInvalidKey, x25519KeyLen)
	}
	copy(out[:], x)
	return out, nil
}

func (k Key) PrivateBytes() ([32]byte, error) {
	var out [32]byte
	d, err := decodeMember(k.D)
	if err != nil || len(d) != x25519KeyLen {
		return out, fmt.Errorf("%w: d must be %d bytes", ErrInvalidKey, x25519KeyLen)
	}
	copy(out[:], d)
	return out, nil
}

// decodeMember accepts unpadded base64url and tolerates padding.
func decodeMember(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
