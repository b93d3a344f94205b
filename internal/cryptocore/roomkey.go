package cryptocore

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

const RoomKeySize = 32

// RoomKey is the symmetric key shared by every device in one conversation.
type RoomKey [RoomKeySize]byte

func GenerateRoomKey() (RoomKey, error) {
	var k RoomKey
	if err := readRandom(k[:]); err != nil {
		return RoomKey{}, err
	}
	return k, nil
}

// WrapRoomKey seals key to recipient with an anonymous box: an ephemeral
// X25519 key agreement followed by XSalsa20-Poly1305. Only the holder of the
// recipient private key can open the result.
func WrapRoomKey(recipient [32]byte, key RoomKey) (string, error) {
	sealed, err := box.SealAnonymous(nil, key[:], &recipient, random())
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func UnwrapRoomKey(pair *DeviceKeyPair, encryptedKeyB64 string) (RoomKey, error) {
	sealed, err := base64.StdEncoding.DecodeString(encryptedKeyB64)
	if err != nil {
		return RoomKey{}, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	opened, ok := box.OpenAnonymous(nil, sealed, &pair.Public, &pair.Private)
	if !ok || len(opened) != RoomKeySize {
		return RoomKey{}, ErrUnwrap
	}
	var k RoomKey
	copy(k[:], opened)
	return k, nil
}
