package cryptocore

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"

	"chatcore/internal/jwk"
)

// counterReader is a deterministic, non-repeating byte stream.
type counterReader struct {
	seed    []byte
	counter uint64
	buf     []byte
}

func (r *counterReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(r.buf) == 0 {
			var ctr [8]byte
			binary.BigEndian.PutUint64(ctr[:], r.counter)
			r.counter++
			sum := sha256.Sum256(append(append([]byte(nil), r.seed...), ctr[:]...))
			r.buf = sum[:]
		}
		c := copy(p[n:], r.buf)
		r.buf = r.buf[c:]
		n += c
	}
	return n, nil
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateRoomKey()
	if err != nil {
		t.Fatalf("GenerateRoomKey: %v", err)
	}
	for _, pt := range [][]byte{nil, []byte("hi"), bytes.Repeat([]byte{0xAB}, 4096)} {
		iv, ct, err := Encrypt(key, pt)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		got, err := Decrypt(key, iv, ct)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if !bytes.Equal(got, pt) {
			t.Fatalf("round trip mismatch: got %q want %q", got, pt)
		}
	}
}

func TestDecryptRejectsWrongKeyAndTampering(t *testing.T) {
	key, _ := GenerateRoomKey()
	other, _ := GenerateRoomKey()
	iv, ct, err := Encrypt(key, []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := Decrypt(other, iv, ct); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("wrong key: expected ErrDecrypt, got %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(ct)
	raw[0] ^= 0x01
	if _, err := Decrypt(key, iv, base64.StdEncoding.EncodeToString(raw)); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("tampered ciphertext: expected ErrDecrypt, got %v", err)
	}

	nonce, _ := base64.StdEncoding.DecodeString(iv)
	nonce[3] ^= 0x80
	if _, err := Decrypt(key, base64.StdEncoding.EncodeToString(nonce), ct); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("tampered nonce: expected ErrDecrypt, got %v", err)
	}

	if _, err := Decrypt(key, "!!", ct); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("bad iv encoding: expected ErrDecrypt, got %v", err)
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	restore := UseDeterministicRandom(&counterReader{seed: []byte("nonce-test")})
	defer restore()

	key, err := GenerateRoomKey()
	if err != nil {
		t.Fatalf("GenerateRoomKey: %v", err)
	}
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		iv, _, err := Encrypt(key, []byte("same plaintext"))
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		if seen[iv] {
			t.Fatalf("nonce repeated after %d encryptions", i)
		}
		seen[iv] = true
	}
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	device, err := GenerateDeviceKeyPair()
	if err != nil {
		t.Fatalf("GenerateDeviceKeyPair: %v", err)
	}
	key, err := GenerateRoomKey()
	if err != nil {
		t.Fatalf("GenerateRoomKey: %v", err)
	}
	wrapped, err := WrapRoomKey(device.Public, key)
	if err != nil {
		t.Fatalf("WrapRoomKey: %v", err)
	}
	got, err := UnwrapRoomKey(device, wrapped)
	if err != nil {
		t.Fatalf("UnwrapRoomKey: %v", err)
	}
	if got != key {
		t.Fatalf("unwrapped key mismatch")
	}

	stranger, _ := GenerateDeviceKeyPair()
	if _, err := UnwrapRoomKey(stranger, wrapped); !errors.Is(err, ErrUnwrap) {
		t.Fatalf("stranger unwrap: expected ErrUnwrap, got %v", err)
	}
	if _, err := UnwrapRoomKey(device, "%%"); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("bad encoding: expected ErrInvalidEncoding, got %v", err)
	}
}

func TestDeviceKeyPairJWKRoundTrip(t *testing.T) {
	device, err := GenerateDeviceKeyPair()
	if err != nil {
		t.Fatalf("GenerateDeviceKeyPair: %v", err)
	}

	pubDoc, err := json.Marshal(device.PublicJWK())
	if err != nil {
		t.Fatalf("marshal public: %v", err)
	}
	pub, err := jwk.ParsePublic(pubDoc)
	if err != nil {
		t.Fatalf("ParsePublic: %v", err)
	}
	if pub != device.Public {
		t.Fatalf("public key mismatch after JWK round trip")
	}

	privDoc, err := json.Marshal(device.PrivateJWK())
	if err != nil {
		t.Fatalf("marshal private: %v", err)
	}
	if _, err := jwk.ParsePublic(privDoc); !errors.Is(err, jwk.ErrInvalidKey) {
		t.Fatalf("private JWK accepted as public key: %v", err)
	}
	restored, err := ImportDeviceKeyPair(device.PrivateJWK())
	if err != nil {
		t.Fatalf("ImportDeviceKeyPair: %v", err)
	}
	if *restored != *device {
		t.Fatalf("restored key pair mismatch")
	}

	mismatched := device.PrivateJWK()
	other, _ := GenerateDeviceKeyPair()
	mismatched.X = other.PublicJWK().X
	if _, err := ImportDeviceKeyPair(mismatched); !errors.Is(err, ErrInvalidKeyPair) {
		t.Fatalf("mismatched pair: expected ErrInvalidKeyPair, got %v", err)
	}
}

func TestFingerprintStable(t *testing.T) {
	var pub [32]byte
	a := Fingerprint(pub)
	b := Fingerprint(pub)
	if a != b {
		t.Fatalf("fingerprint not deterministic")
	}
	if len(a) != 24 {
		t.Fatalf("expected 5 groups of 4 hex chars, got %q", a)
	}
}

func FuzzDecryptNeverPanics(f *testing.F) {
	f.Add("AAAA", "AAAA")
	f.Add("", "")
	f.Fuzz(func(t *testing.T, iv, ct string) {
		var key RoomKey
		if _, err := Decrypt(key, iv, ct); err == nil {
			t.Fatalf("decrypt of arbitrary input unexpectedly succeeded")
		}
	})
}
