package dto

import (
	"encoding/json"
	"time"

	"chatcore/internal/domain"
)

type RegisterDeviceKeyRequest struct {
	DeviceID  string          `json:"deviceId"`
	PublicKey json.RawMessage `json:"publicKey"`
}

type DeviceKey struct {
	DeviceKeyID string          `json:"deviceKeyId"`
	UserID      string          `json:"userId"`
	DeviceID    string          `json:"deviceId"`
	PublicKey   json.RawMessage `json:"publicKey"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type DeviceKeyList struct {
	Keys []DeviceKey `json:"keys"`
}

func FromDeviceKey(k domain.DeviceKey) DeviceKey {
	return DeviceKey{
		DeviceKeyID: k.ID.String(),
		UserID:      k.UserID.String(),
		DeviceID:    k.DeviceID,
		PublicKey:   json.RawMessage(k.PublicKey),
		CreatedAt:   k.CreatedAt,
		UpdatedAt:   k.UpdatedAt,
	}
}

func FromDeviceKeys(keys []domain.DeviceKey) DeviceKeyList {
	out := DeviceKeyList{Keys: make([]DeviceKey, 0, len(keys))}
	for _, k := range keys {
		out.Keys = append(out.Keys, FromDeviceKey(k))
	}
	return out
}
