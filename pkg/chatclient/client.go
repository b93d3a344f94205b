// Package chatclient is the device-side half of the chat core: it holds the
// device private key, manages room keys and encrypts or decrypts message
// bodies. The relay only ever sees wrapped keys and ciphertext.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatcore/internal/cryptocore"
	"chatcore/internal/domain"
	"chatcore/internal/dto"
	"chatcore/internal/jwk"

	"github.com/google/uuid"
)

// Identity is one registered device.
type Identity struct {
	UserID      uuid.UUID
	DeviceKeyID uuid.UUID
	Keys        *cryptocore.DeviceKeyPair
}

type Client struct {
	api API
	id  Identity

	mu sync.Mutex
	// keyring holds every room key seen per conversation, newest last.
	keyring map[uuid.UUID][]cryptocore.RoomKey
}

func New(api API, id Identity) *Client {
	return &Client{api: api, id: id, keyring: make(map[uuid.UUID][]cryptocore.RoomKey)}
}

// RegisterDevice publishes the device public key and returns the identity
// the relay assigned to it.
func RegisterDevice(ctx context.Context, api API, userID uuid.UUID, deviceID string, keys *cryptocore.DeviceKeyPair) (Identity, error) {
	res, err := api.RegisterDeviceKey(ctx, deviceID, keys.PublicJWK())
	if err != nil {
		return Identity{}, err
	}
	deviceKeyID, err := uuid.Parse(res.DeviceKeyID)
	if err != nil {
		return Identity{}, fmt.Errorf("chatclient: relay returned device key id %q: %w", res.DeviceKeyID, err)
	}
	return Identity{UserID: userID, DeviceKeyID: deviceKeyID, Keys: keys}, nil
}

func (c *Client) Identity() Identity { return c.id }

// EnsureRoomKey returns the conversation room key for this device. A wrapped
// copy addressed to this device is preferred. When none exists, or it does not
// open with the current key pair, a privileged caller (any DIRECT participant,
// or a GROUP owner/admin) generates a key and distributes it to every
// participant device. Anyone else gets domain.ErrMissingRoomKey.
func (c *Client) EnsureRoomKey(ctx context.Context, convID uuid.UUID) (cryptocore.RoomKey, error) {
	if key, ok := c.current(convID); ok {
		return key, nil
	}

	wrapped, err := c.api.MyRoomKeys(ctx, convID)
	if err != nil {
		return cryptocore.RoomKey{}, err
	}
	for _, w := range wrapped {
		if w.DeviceKeyID != c.id.DeviceKeyID.String() {
			continue
		}
		key, err := cryptocore.UnwrapRoomKey(c.id.Keys, w.EncryptedKeyB64)
		if err != nil {
			// Wrapped for a key pair this device no longer holds.
			break
		}
		c.remember(convID, key)
		return key, nil
	}

	conv, err := c.api.GetConversation(ctx, convID)
	if err != nil {
		return cryptocore.RoomKey{}, err
	}
	if !mayGenerate(conv) {
		return cryptocore.RoomKey{}, fmt.Errorf("%w: waiting for an owner or admin to share the room key", domain.ErrMissingRoomKey)
	}
	return c.generateAndDistribute(ctx, convID)
}

// ShareRoomKey wraps the current room key for every device of userIDs. It
// never rotates the key.
func (c *Client) ShareRoomKey(ctx context.Context, convID uuid.UUID, userIDs ...uuid.UUID) (int, error) {
	key, err := c.EnsureRoomKey(ctx, convID)
	if err != nil {
		return 0, err
	}
	items, err := c.wrapFor(ctx, key, userIDs)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}
	return c.api.DistributeRoomKeys(ctx, convID, items)
}

// RotateRoomKey replaces the room key and distributes it to every current
// participant device. Older keys stay in the local keyring so history this
// device could already read still decrypts.
func (c *Client) RotateRoomKey(ctx context.Context, convID uuid.UUID) (cryptocore.RoomKey, error) {
	conv, err := c.api.GetConversation(ctx, convID)
	if err != nil {
		return cryptocore.RoomKey{}, err
	}
	if !mayGenerate(conv) {
		return cryptocore.RoomKey{}, fmt.Errorf("%w: only owners and admins may rotate the room key", domain.ErrForbidden)
	}
	return c.generateAndDistribute(ctx, convID)
}

func (c *Client) generateAndDistribute(ctx context.Context, convID uuid.UUID) (cryptocore.RoomKey, error) {
	key, err := cryptocore.GenerateRoomKey()
	if err != nil {
		return cryptocore.RoomKey{}, err
	}
	parts, err := c.api.ListParticipants(ctx, convID)
	if err != nil {
		return cryptocore.RoomKey{}, err
	}
	userIDs := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		id, err := uuid.Parse(p.UserID)
		if err != nil {
			return cryptocore.RoomKey{}, err
		}
		userIDs = append(userIDs, id)
	}
	items, err := c.wrapFor(ctx, key, userIDs)
	if err != nil {
		return cryptocore.RoomKey{}, err
	}
	if !containsDevice(items, c.id.DeviceKeyID) {
		own, err := cryptocore.WrapRoomKey(c.id.Keys.Public, key)
		if err != nil {
			return cryptocore.RoomKey{}, err
		}
		items = append(items, dto.WrappedKeyItem{
			DeviceKeyID:     c.id.DeviceKeyID.String(),
			UserID:          c.id.UserID.String(),
			EncryptedKeyB64: own,
		})
	}
	if _, err := c.api.DistributeRoomKeys(ctx, convID, items); err != nil {
		return cryptocore.RoomKey{}, err
	}
	c.remember(convID, key)
	return key, nil
}

func (c *Client) wrapFor(ctx context.Context, key cryptocore.RoomKey, userIDs []uuid.UUID) ([]dto.WrappedKeyItem, error) {
	var items []dto.WrappedKeyItem
	seen := make(map[uuid.UUID]bool, len(userIDs))
	for _, userID := range userIDs {
		if seen[userID] {
			continue
		}
		seen[userID] = true
		devices, err := c.api.ListDeviceKeys(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, d := range devices {
			pub, err := jwk.ParsePublic(d.PublicKey)
			if err != nil {
				return nil, fmt.Errorf("chatclient: device key %s: %w", d.DeviceKeyID, err)
			}
			sealed, err := cryptocore.WrapRoomKey(pub, key)
			if err != nil {
				return nil, err
			}
			items = append(items, dto.WrappedKeyItem{
				DeviceKeyID:     d.DeviceKeyID,
				UserID:          userID.String(),
				EncryptedKeyB64: sealed,
			})
		}
	}
	return items, nil
}

// Send encrypts p under the room key and posts it. A failure is always
// returned to the caller; sends are not retried.
func (c *Client) Send(ctx context.Context, convID uuid.UUID, p Payload) (dto.Message, error) {
	key, err := c.EnsureRoomKey(ctx, convID)
	if err != nil {
		return dto.Message{}, err
	}
	plaintext, err := EncodePayload(p)
	if err != nil {
		return dto.Message{}, err
	}
	iv, ct, err := cryptocore.Encrypt(key, plaintext)
	if err != nil {
		return dto.Message{}, err
	}
	return c.api.SendMessage(ctx, convID, dto.SendMessageRequest{
		Type:          string(p.MessageType()),
		IVB64:         iv,
		CiphertextB64: ct,
	})
}

// Decrypted is one history entry: either Payload or Err is set.
type Decrypted struct {
	Message dto.Message
	Payload Payload
	Err     error
}

// DecryptHistory fetches a page and decrypts each message independently. A
// message that cannot be decrypted carries its error; a missing room key
// marks every entry rather than failing the page.
func (c *Client) DecryptHistory(ctx context.Context, convID uuid.UUID, before *time.Time, limit int) ([]Decrypted, error) {
	msgs, err := c.api.ListMessages(ctx, convID, before, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Decrypted, 0, len(msgs))
	if _, err := c.EnsureRoomKey(ctx, convID); err != nil {
		if !errors.Is(err, domain.ErrMissingRoomKey) {
			return nil, err
		}
		for _, m := range msgs {
			out = append(out, Decrypted{Message: m, Err: err})
		}
		return out, nil
	}
	for _, m := range msgs {
		p, err := c.Decrypt(convID, m)
		out = append(out, Decrypted{Message: m, Payload: p, Err: err})
	}
	return out, nil
}

// Decrypt opens m with any room key this device holds for convID, newest
// first. It fails with cryptocore.ErrDecrypt when none fits.
func (c *Client) Decrypt(convID uuid.UUID, m dto.Message) (Payload, error) {
	c.mu.Lock()
	keys := append([]cryptocore.RoomKey(nil), c.keyring[convID]...)
	c.mu.Unlock()
	if len(keys) == 0 {
		return Payload{}, fmt.Errorf("%w: no room key loaded", domain.ErrMissingRoomKey)
	}
	for i := len(keys) - 1; i >= 0; i-- {
		plaintext, err := cryptocore.Decrypt(keys[i], m.IVB64, m.CiphertextB64)
		if err == nil {
			return DecodePayload(plaintext), nil
		}
	}
	return Payload{}, cryptocore.ErrDecrypt
}

// Forget drops cached keys for convID so the next call refetches them.
func (c *Client) Forget(convID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keyring, convID)
}

func (c *Client) current(convID uuid.UUID) (cryptocore.RoomKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.keyring[convID]
	if len(keys) == 0 {
		return cryptocore.RoomKey{}, false
	}
	return keys[len(keys)-1], true
}

func (c *Client) remember(convID uuid.UUID, key cryptocore.RoomKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.keyring[convID]
	for i, k := range keys {
		if k == key {
			keys = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	c.keyring[convID] = append(keys, key)
}

func mayGenerate(conv dto.Conversation) bool {
	if conv.Type == string(domain.ConversationDirect) {
		return true
	}
	return domain.Role(conv.Role).CanManage()
}

func containsDevice(items []dto.WrappedKeyItem, id uuid.UUID) bool {
	for _, it := range items {
		if it.DeviceKeyID == id.String() {
			return true
		}
	}
	return false
}
