package impl_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"chatcore/internal/domain"
	"chatcore/internal/jwk"
	"chatcore/internal/service"
	"chatcore/internal/service/impl"
	"chatcore/internal/store"
	"chatcore/internal/testutil"

	"github.com/google/uuid"
)

type services struct {
	store   *store.Store
	devices *impl.DeviceKeyServiceImpl
	convs   *impl.ConversationServiceImpl
	msgs    *impl.MessageServiceImpl
	keys    *impl.RoomKeyServiceImpl
}

func setupServices(t *testing.T) services {
	t.Helper()
	st := testutil.OpenStore(t)
	clock := testutil.NewClock()
	return services{
		store:   st,
		devices: impl.NewDeviceKeyServiceImpl(st).WithClock(clock.Now),
		convs:   impl.NewConversationServiceImpl(st).WithClock(clock.Now),
		msgs:    impl.NewMessageServiceImpl(st, 100).WithClock(clock.Now),
		keys:    impl.NewRoomKeyServiceImpl(st).WithClock(clock.Now),
	}
}

func publicJWK(t *testing.T, seed byte) json.RawMessage {
	t.Helper()
	var pub [32]byte
	for i := range pub {
		pub[i] = seed + byte(i)
	}
	raw, err := json.Marshal(jwk.FromPublic(pub))
	if err != nil {
		t.Fatalf("marshal jwk: %v", err)
	}
	return raw
}

func registerDevice(t *testing.T, s services, userID domain.UserID, deviceID string) *domain.DeviceKey {
	t.Helper()
	key, err := s.devices.RegisterOrUpdate(context.Background(), userID, deviceID, publicJWK(t, byte(len(deviceID))))
	if err != nil {
		t.Fatalf("register device %s: %v", deviceID, err)
	}
	return key
}

func sendText(t *testing.T, s services, sender domain.UserID, convID domain.ConversationID, body string) *domain.Message {
	t.Helper()
	msg, err := s.msgs.Send(context.Background(), sender, convID, service.SendMessageInput{
		Type:          domain.MessageText,
		IVB64:         base64.StdEncoding.EncodeToString(make([]byte, 24)),
		CiphertextB64: base64.StdEncoding.EncodeToString([]byte(body)),
	})
	if err != nil {
		t.Fatalf("send %q: %v", body, err)
	}
	return msg
}

func newGroup(t *testing.T, s services, owner domain.UserID, members ...domain.UserID) *domain.Conversation {
	t.Helper()
	conv, err := s.convs.CreateGroup(context.Background(), owner, "team", members)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return conv
}

func users(n int) []domain.UserID {
	out := make([]domain.UserID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}
