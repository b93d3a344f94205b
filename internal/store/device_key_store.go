package store

import (
	"context"

	"chatcore/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeviceKeyStore struct{ db *gorm.DB }

func (s *Store) DeviceKeys() *DeviceKeyStore { return &DeviceKeyStore{db: s.DB} }

// Upsert inserts or refreshes the key for (user, device) and returns the
// stored row, whose ID is stable across refreshes.
func (d *DeviceKeyStore) Upsert(ctx context.Context, key domain.DeviceKey) (*domain.DeviceKey, error) {
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "device_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"public_key": key.PublicKey,
				"updated_at": key.UpdatedAt,
			}),
		}).
		Create(&key).Error
	if err != nil {
		return nil, translate(err)
	}
	return d.GetByDevice(ctx, key.UserID, key.DeviceID)
}

func (d *DeviceKeyStore) GetByDevice(ctx context.Context, userID domain.UserID, deviceID string) (*domain.DeviceKey, error) {
	var key domain.DeviceKey
	err := d.db.WithContext(ctx).
		First(&key, "user_id = ? AND device_id = ?", userID, deviceID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &key, nil
}

func (d *DeviceKeyStore) GetMany(ctx context.Context, ids []domain.DeviceKeyID) (map[domain.DeviceKeyID]domain.DeviceKey, error) {
	out := make(map[domain.DeviceKeyID]domain.DeviceKey, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var keys []domain.DeviceKey
	if err := d.db.WithContext(ctx).Where("id IN ?", ids).Find(&keys).Error; err != nil {
		return nil, translate(err)
	}
	for _, k := range keys {
		out[k.ID] = k
	}
	return out, nil
}

func (d *DeviceKeyStore) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.DeviceKey, error) {
	var keys []domain.DeviceKey
	err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&keys).Error
	if err != nil {
		return nil, translate(err)
	}
	return keys, nil
}
