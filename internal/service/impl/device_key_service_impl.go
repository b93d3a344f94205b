package impl

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"chatcore/internal/domain"
	"chatcore/internal/jsonx"
	"chatcore/internal/jwk"
	"chatcore/internal/service"
	"chatcore/internal/store"

	"github.com/google/uuid"
)

const (
	minDeviceIDLen = 8
	maxDeviceIDLen = 128
)

var _ service.DeviceKeyService = (*DeviceKeyServiceImpl)(nil)

type DeviceKeyServiceImpl struct {
	store *store.Store
	now   func() time.Time
	log   *slog.Logger
}

func NewDeviceKeyServiceImpl(st *store.Store) *DeviceKeyServiceImpl {
	return &DeviceKeyServiceImpl{
		store: st,
		now:   utcNow,
		log:   slog.Default().With("component", "device_keys"),
	}
}

// WithClock overrides the time source.
func (d *DeviceKeyServiceImpl) WithClock(now func() time.Time) *DeviceKeyServiceImpl {
	d.now = now
	return d
}

func (d *DeviceKeyServiceImpl) RegisterOrUpdate(ctx context.Context, userID domain.UserID, deviceID string, publicKey json.RawMessage) (*domain.DeviceKey, error) {
	if d.store == nil {
		return nil, errStoreNotConfigured
	}
	if userID == uuid.Nil {
		return nil, validationf("userId is required")
	}
	deviceID = strings.TrimSpace(deviceID)
	if len(deviceID) < minDeviceIDLen {
		return nil, validationf("deviceId must be at least %d characters", minDeviceIDLen)
	}
	if len(deviceID) > maxDeviceIDLen {
		return nil, validationf("deviceId must be at most %d characters", maxDeviceIDLen)
	}
	pub, err := jwk.ParsePublic(publicKey)
	if err != nil {
		return nil, validationf("publicKey: %v", err)
	}
	canonical, err := json.Marshal(jwk.FromPublic(pub))
	if err != nil {
		return nil, err
	}

	now := d.now()
	var out *domain.DeviceKey
	err = d.store.WithTx(ctx, func(tx *store.Store) error {
		prev, err := tx.DeviceKeys().GetByDevice(ctx, userID, deviceID)
		if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			return err
		}
		key, err := tx.DeviceKeys().Upsert(ctx, domain.DeviceKey{
			ID:        uuid.New(),
			UserID:    userID,
			DeviceID:  deviceID,
			PublicKey: jsonx.JSON(canonical),
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		// Copies wrapped for the old key pair can no longer be opened.
		if prev != nil && keyChanged(prev.PublicKey, pub) {
			n, err := tx.RoomKeys().DeleteForDevice(ctx, key.ID)
			if err != nil {
				return err
			}
			d.log.Info("device key replaced", "user_id", userID, "device_key_id", key.ID, "stale_room_keys", n)
		}
		out = key
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func keyChanged(stored jsonx.JSON, pub [32]byte) bool {
	prev, err := jwk.ParsePublic(stored)
	return err != nil || prev != pub
}

func (d *DeviceKeyServiceImpl) ListForUser(ctx context.Context, userID domain.UserID) ([]domain.DeviceKey, error) {
	if d.store == nil {
		return nil, errStoreNotConfigured
	}
	if userID == uuid.Nil {
		return nil, validationf("userId is required")
	}
	return d.store.DeviceKeys().ListByUser(ctx, userID)
}
