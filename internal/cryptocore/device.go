package cryptocore

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"chatcore/internal/jwk"

	"golang.org/x/crypto/curve25519"
)

// DeviceKeyPair is the X25519 key pair of one installation.
type DeviceKeyPair struct {
	Public  [32]byte
	Private [32]byte
}

func GenerateDeviceKeyPair() (*DeviceKeyPair, error) {
	var priv [32]byte
	if err := readRandom(priv[:]); err != nil {
		return nil, err
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64
	return deviceKeyPairFromPrivate(priv)
}

func deviceKeyPairFromPrivate(priv [32]byte) (*DeviceKeyPair, error) {
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyPair, err)
	}
	kp := &DeviceKeyPair{Private: priv}
	copy(kp.Public[:], pub)
	return kp, nil
}

// PublicJWK is the form registered with the device key registry.
func (k *DeviceKeyPair) PublicJWK() jwk.Key {
	return jwk.FromPublic(k.Public)
}

// PrivateJWK includes the private scalar and must only be written to local
// device storage.
func (k *DeviceKeyPair) PrivateJWK() jwk.Key {
	out := jwk.FromPublic(k.Public)
	out.D = base64.RawURLEncoding.EncodeToString(k.Private[:])
	return out
}

// ImportDeviceKeyPair restores a pair from PrivateJWK output and checks that
// the public half matches the private scalar.
func ImportDeviceKeyPair(key jwk.Key) (*DeviceKeyPair, error) {
	priv, err := key.PrivateBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyPair, err)
	}
	pub, err := key.PublicBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyPair, err)
	}
	kp, err := deviceKeyPairFromPrivate(priv)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(kp.Public[:], pub[:]) != 1 {
		return nil, fmt.Errorf("%w: public key does not match private key", ErrInvalidKeyPair)
	}
	return kp, nil
}

// Fingerprint renders a short safety code for a public key, grouped for
// reading aloud.
func Fingerprint(pub [32]byte) string {
	sum := sha256.Sum256(pub[:])
	hexed := strings.ToUpper(hex.EncodeToString(sum[:10]))
	groups := make([]string, 0, len(hexed)/4)
	for i := 0; i < len(hexed); i += 4 {
		groups = append(groups, hexed[i:i+4])
	}
	return strings.Join(groups, " ")
}
