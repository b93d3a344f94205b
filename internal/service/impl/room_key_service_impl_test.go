package impl_test

import (
	"context"
	"errors"
	"testing"

	"chatcore/internal/domain"
	"chatcore/internal/service"

	"github.com/google/uuid"
)

func TestDistributeGroupRequiresManager(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	u := users(3)
	owner, b, c := u[0], u[1], u[2]
	conv := newGroup(t, s, owner, b, c)
	bKey := registerDevice(t, s, b, "b-device-01")

	items := []service.WrappedKeyItem{{DeviceKeyID: bKey.ID, UserID: b, EncryptedKeyB64: "d3JhcHBlZA=="}}
	if _, err := s.keys.Distribute(ctx, b, conv.ID, items); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("member distribute: expected forbidden, got %v", err)
	}
	if _, err := s.keys.Distribute(ctx, uuid.New(), conv.ID, items); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("outsider distribute: expected forbidden, got %v", err)
	}
	n, err := s.keys.Distribute(ctx, owner, conv.ID, items)
	if err != nil {
		t.Fatalf("owner distribute: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row written, got %d", n)
	}

	if err := s.convs.SetRole(ctx, owner, conv.ID, c, domain.RoleAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}
	items[0].EncryptedKeyB64 = "cmV3cmFwcGVk"
	if _, err := s.keys.Distribute(ctx, c, conv.ID, items); err != nil {
		t.Fatalf("admin distribute: %v", err)
	}
	rows, err := s.keys.MyWrappedKeys(ctx, b, conv.ID)
	if err != nil {
		t.Fatalf("my keys: %v", err)
	}
	if len(rows) != 1 || rows[0].EncryptedKeyB64 != "cmV3cmFwcGVk" {
		t.Fatalf("expected re-wrapped row, got %+v", rows)
	}
}

func TestDistributeDirectAllowsEitherParticipant(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	conv, _, err := s.convs.GetOrCreateDirect(ctx, a, b)
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	aKey := registerDevice(t, s, a, "a-device-01")
	bKey := registerDevice(t, s, b, "b-device-01")

	if _, err := s.keys.Distribute(ctx, b, conv.ID, []service.WrappedKeyItem{
		{DeviceKeyID: aKey.ID, UserID: a, EncryptedKeyB64: "YQ=="},
		{DeviceKeyID: bKey.ID, UserID: b, EncryptedKeyB64: "Yg=="},
	}); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	rows, err := s.keys.MyWrappedKeys(ctx, a, conv.ID)
	if err != nil {
		t.Fatalf("my keys: %v", err)
	}
	if len(rows) != 1 || rows[0].DeviceKeyID != aKey.ID {
		t.Fatalf("expected only a's row, got %+v", rows)
	}
}

func TestDistributeIsAllOrNothing(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	u := users(3)
	owner, b, outsider := u[0], u[1], u[2]
	conv := newGroup(t, s, owner, b)
	bKey := registerDevice(t, s, b, "b-device-01")
	outsiderKey := registerDevice(t, s, outsider, "x-device-01")

	cases := map[string][]service.WrappedKeyItem{
		"non participant": {
			{DeviceKeyID: bKey.ID, UserID: b, EncryptedKeyB64: "YQ=="},
			{DeviceKeyID: outsiderKey.ID, UserID: outsider, EncryptedKeyB64: "YQ=="},
		},
		"device of other user": {
			{DeviceKeyID: bKey.ID, UserID: owner, EncryptedKeyB64: "YQ=="},
		},
		"unknown device": {
			{DeviceKeyID: bKey.ID, UserID: b, EncryptedKeyB64: "YQ=="},
			{DeviceKeyID: uuid.New(), UserID: b, EncryptedKeyB64: "YQ=="},
		},
		"bad base64": {
			{DeviceKeyID: bKey.ID, UserID: b, EncryptedKeyB64: "not base64!"},
		},
		"duplicate device": {
			{DeviceKeyID: bKey.ID, UserID: b, EncryptedKeyB64: "YQ=="},
			{DeviceKeyID: bKey.ID, UserID: b, EncryptedKeyB64: "Yg=="},
		},
		"empty": nil,
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := s.keys.Distribute(ctx, owner, conv.ID, items); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	n, err := s.store.RoomKeys().Count(ctx, conv.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no rows after rejected batches, got %d", n)
	}
}

func TestMyWrappedKeysRequiresParticipant(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	owner := uuid.New()
	conv := newGroup(t, s, owner)

	if _, err := s.keys.MyWrappedKeys(ctx, uuid.New(), conv.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	rows, err := s.keys.MyWrappedKeys(ctx, owner, conv.ID)
	if err != nil {
		t.Fatalf("owner keys: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows yet, got %d", len(rows))
	}
}
