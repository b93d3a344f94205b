package service

import (
	"context"
	"encoding/json"

	"chatcore/internal/domain"
)

type DeviceKeyService interface {
	RegisterOrUpdate(ctx context.Context, userID domain.UserID, deviceID string, publicKey json.RawMessage) (*domain.DeviceKey, error)
	ListForUser(ctx context.Context, userID domain.UserID) ([]domain.DeviceKey, error)
}
