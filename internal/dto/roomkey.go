package dto

import (
	"time"

	"chatcore/internal/domain"
)

type WrappedKeyItem struct {
	DeviceKeyID     string `json:"deviceKeyId"`
	UserID          string `json:"userId"`
	EncryptedKeyB64 string `json:"encryptedKeyB64"`
	IVB64           string `json:"ivB64,omitempty"`
}

type DistributeRoomKeysRequest struct {
	Items []WrappedKeyItem `json:"items"`
}

type DistributeRoomKeysResponse struct {
	Written int `json:"written"`
}

type WrappedRoomKey struct {
	ConversationID  string    `json:"conversationId"`
	DeviceKeyID     string    `json:"deviceKeyId"`
	UserID          string    `json:"userId"`
	EncryptedKeyB64 string    `json:"encryptedKeyB64"`
	IVB64           string    `json:"ivB64,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type WrappedRoomKeyList struct {
	Keys []WrappedRoomKey `json:"keys"`
}

func FromWrappedRoomKeys(keys []domain.WrappedRoomKey) WrappedRoomKeyList {
	out := WrappedRoomKeyList{Keys: make([]WrappedRoomKey, 0, len(keys))}
	for _, k := range keys {
		out.Keys = append(out.Keys, WrappedRoomKey{
			ConversationID:  k.ConversationID.String(),
			DeviceKeyID:     k.DeviceKeyID.String(),
			UserID:          k.UserID.String(),
			EncryptedKeyB64: k.EncryptedKeyB64,
			IVB64:           k.IVB64,
			UpdatedAt:       k.UpdatedAt,
		})
	}
	return out
}
