package service

import (
	"context"

	"chatcore/internal/domain"
)

// WrappedKeyItem is one device's sealed copy of a room key as uploaded by a
// client. The server never sees the unwrapped key.
type WrappedKeyItem struct {
	DeviceKeyID     domain.DeviceKeyID
	UserID          domain.UserID
	EncryptedKeyB64 string
	IVB64           string
}

type RoomKeyService interface {
	Distribute(ctx context.Context, caller domain.UserID, convID domain.ConversationID, items []WrappedKeyItem) (int, error)
	MyWrappedKeys(ctx context.Context, caller domain.UserID, convID domain.ConversationID) ([]domain.WrappedRoomKey, error)
}
