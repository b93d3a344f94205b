package impl

import (
	"context"
	"time"

	"chatcore/internal/domain"
	"chatcore/internal/service"
	"chatcore/internal/store"

	"github.com/google/uuid"
)

const maxWrappedKeyBytes = 4 << 10

var _ service.RoomKeyService = (*RoomKeyServiceImpl)(nil)

type RoomKeyServiceImpl struct {
	store *store.Store
	now   func() time.Time
}

func NewRoomKeyServiceImpl(st *store.Store) *RoomKeyServiceImpl {
	return &RoomKeyServiceImpl{
		store: st,
		now:   utcNow,
	}
}

func (r *RoomKeyServiceImpl) WithClock(now func() time.Time) *RoomKeyServiceImpl {
	r.now = now
	return r
}

// Distribute upserts every wrapped copy in one transaction. Either all
// items are written or none are.
func (r *RoomKeyServiceImpl) Distribute(ctx context.Context, caller domain.UserID, convID domain.ConversationID, items []service.WrappedKeyItem) (int, error) {
	if r.store == nil {
		return 0, errStoreNotConfigured
	}
	if len(items) == 0 {
		return 0, validationf("items must not be empty")
	}
	seen := make(map[domain.DeviceKeyID]bool, len(items))
	deviceIDs := make([]domain.DeviceKeyID, 0, len(items))
	userIDs := make([]domain.UserID, 0, len(items))
	for i, it := range items {
		if it.DeviceKeyID == uuid.Nil || it.UserID == uuid.Nil {
			return 0, validationf("items[%d]: deviceKeyId and userId are required", i)
		}
		if seen[it.DeviceKeyID] {
			return 0, validationf("items[%d]: duplicate deviceKeyId %s", i, it.DeviceKeyID)
		}
		seen[it.DeviceKeyID] = true
		n, err := decodeBase64Field(it.EncryptedKeyB64, "encryptedKeyB64")
		if err != nil {
			return 0, err
		}
		if n > maxWrappedKeyBytes {
			return 0, validationf("items[%d]: encryptedKeyB64 too large", i)
		}
		if it.IVB64 != "" {
			if _, err := decodeBase64Field(it.IVB64, "ivB64"); err != nil {
				return 0, err
			}
		}
		deviceIDs = append(deviceIDs, it.DeviceKeyID)
		userIDs = append(userIDs, it.UserID)
	}

	now := r.now()
	err := r.store.WithTx(ctx, func(tx *store.Store) error {
		conv, part, err := membership(ctx, tx, convID, caller)
		if err != nil {
			return err
		}
		if conv.Type == domain.ConversationGroup && !part.Role.CanManage() {
			return forbiddenf("only owners and admins may distribute room keys")
		}
		devices, err := tx.DeviceKeys().GetMany(ctx, deviceIDs)
		if err != nil {
			return err
		}
		members, err := tx.Participants().Members(ctx, convID, userIDs)
		if err != nil {
			return err
		}
		rows := make([]domain.WrappedRoomKey, 0, len(items))
		for i, it := range items {
			dev, ok := devices[it.DeviceKeyID]
			if !ok {
				return validationf("items[%d]: unknown deviceKeyId %s", i, it.DeviceKeyID)
			}
			if dev.UserID != it.UserID {
				return validationf("items[%d]: deviceKeyId does not belong to userId", i)
			}
			if !members[it.UserID] {
				return validationf("items[%d]: user %s is not a participant", i, it.UserID)
			}
			rows = append(rows, domain.WrappedRoomKey{
				ConversationID:  convID,
				DeviceKeyID:     it.DeviceKeyID,
				UserID:          it.UserID,
				IVB64:           it.IVB64,
				EncryptedKeyB64: it.EncryptedKeyB64,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}
		return tx.RoomKeys().UpsertBatch(ctx, rows)
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (r *RoomKeyServiceImpl) MyWrappedKeys(ctx context.Context, caller domain.UserID, convID domain.ConversationID) ([]domain.WrappedRoomKey, error) {
	if r.store == nil {
		return nil, errStoreNotConfigured
	}
	if _, _, err := membership(ctx, r.store, convID, caller); err != nil {
		return nil, err
	}
	return r.store.RoomKeys().ListForUser(ctx, convID, caller)
}
