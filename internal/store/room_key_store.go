package store

import (
	"context"

	"chatcore/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoomKeyStore struct{ db *gorm.DB }

func (s *Store) RoomKeys() *RoomKeyStore { return &RoomKeyStore{db: s.DB} }

// UpsertBatch writes every row in one statement; a re-wrap for the same
// (conversation, device key) overwrites the previous ciphertext.
func (r *RoomKeyStore) UpsertBatch(ctx context.Context, keys []domain.WrappedRoomKey) error {
	if len(keys) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "device_key_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "iv_b64", "encrypted_key_b64", "updated_at"}),
		}).
		Create(&keys).Error)
}

func (r *RoomKeyStore) ListForUser(ctx context.Context, convID domain.ConversationID, userID domain.UserID) ([]domain.WrappedRoomKey, error) {
	var keys []domain.WrappedRoomKey
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Order("updated_at DESC").
		Find(&keys).Error
	if err != nil {
		return nil, translate(err)
	}
	return keys, nil
}

// DeleteForDevice removes every wrapped copy addressed to deviceKeyID and
// reports how many rows went.
func (r *RoomKeyStore) DeleteForDevice(ctx context.Context, deviceKeyID domain.DeviceKeyID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("device_key_id = ?", deviceKeyID).
		Delete(&domain.WrappedRoomKey{})
	return res.RowsAffected, translate(res.Error)
}

func (r *RoomKeyStore) Count(ctx context.Context, convID domain.ConversationID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.WrappedRoomKey{}).
		Where("conversation_id = ?", convID).
		Count(&n).Error
	return n, translate(err)
}
