package chatclient_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"chatcore/internal/cryptocore"
	"chatcore/internal/domain"
	"chatcore/internal/dto"
	"chatcore/internal/testutil/chatserver"
	"chatcore/pkg/chatclient"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type device struct {
	userID uuid.UUID
	api    *chatclient.HTTPAPI
	client *chatclient.Client
}

func newDevice(t *testing.T, srv *chatserver.Server, userID uuid.UUID, name string) device {
	t.Helper()
	keys, err := cryptocore.GenerateDeviceKeyPair()
	require.NoError(t, err)
	api := chatclient.NewHTTPAPI(srv.URL, srv.Token(t, userID))
	id, err := chatclient.RegisterDevice(context.Background(), api, userID, name, keys)
	require.NoError(t, err)
	return device{userID: userID, api: api, client: chatclient.New(api, id)}
}

func convID(t *testing.T, conv dto.Conversation) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(conv.ID)
	require.NoError(t, err)
	return id
}

func texts(t *testing.T, entries []chatclient.Decrypted) []string {
	t.Helper()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		require.NoError(t, e.Err, "message %s", e.Message.ID)
		out = append(out, e.Payload.Text)
	}
	return out
}

func TestDirectConversationRoundTrip(t *testing.T) {
	srv := chatserver.Start(t)
	ctx := context.Background()
	alice := newDevice(t, srv, uuid.New(), "alice-laptop")
	bob := newDevice(t, srv, uuid.New(), "bob-phone-01")

	conv, err := alice.api.CreateDirect(ctx, bob.userID)
	require.NoError(t, err)
	id := convID(t, conv)

	_, err = alice.client.Send(ctx, id, chatclient.TextPayload("hello bob"))
	require.NoError(t, err)
	_, err = bob.client.Send(ctx, id, chatclient.TextPayload("hi alice"))
	require.NoError(t, err)

	for _, d := range []device{alice, bob} {
		history, err := d.client.DecryptHistory(ctx, id, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"hello bob", "hi alice"}, texts(t, history))
	}

	ka, err := alice.client.EnsureRoomKey(ctx, id)
	require.NoError(t, err)
	kb, err := bob.client.EnsureRoomKey(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)

	msgs, err := bob.api.ListMessages(ctx, id, nil, 0)
	require.NoError(t, err)
	for _, m := range msgs {
		raw, err := base64.StdEncoding.DecodeString(m.CiphertextB64)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "hello")
	}
}

func TestGroupMemberBlockedUntilOwnerDistributes(t *testing.T) {
	srv := chatserver.Start(t)
	ctx := context.Background()
	owner := newDevice(t, srv, uuid.New(), "owner-desktop")
	member := newDevice(t, srv, uuid.New(), "member-phone")
	memberTablet := newDevice(t, srv, member.userID, "member-tablet")

	conv, err := owner.api.CreateGroup(ctx, "project", []uuid.UUID{member.userID})
	require.NoError(t, err)
	id := convID(t, conv)

	_, err = member.client.EnsureRoomKey(ctx, id)
	require.ErrorIs(t, err, domain.ErrMissingRoomKey)
	_, err = member.client.Send(ctx, id, chatclient.TextPayload("too early"))
	require.ErrorIs(t, err, domain.ErrMissingRoomKey)

	history, err := member.client.DecryptHistory(ctx, id, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	ownerKey, err := owner.client.EnsureRoomKey(ctx, id)
	require.NoError(t, err)
	n, err := srv.Store.RoomKeys().Count(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n, "one wrapped copy per participant device")

	for _, d := range []device{member, memberTablet} {
		key, err := d.client.EnsureRoomKey(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ownerKey, key)
	}
}

func TestRefreshedDeviceKeyWaitsForReshare(t *testing.T) {
	srv := chatserver.Start(t)
	ctx := context.Background()
	owner := newDevice(t, srv, uuid.New(), "owner-desktop")
	member := newDevice(t, srv, uuid.New(), "member-phone")

	conv, err := owner.api.CreateGroup(ctx, "project", []uuid.UUID{member.userID})
	require.NoError(t, err)
	id := convID(t, conv)

	ownerKey, err := owner.client.EnsureRoomKey(ctx, id)
	require.NoError(t, err)
	_, err = member.client.EnsureRoomKey(ctx, id)
	require.NoError(t, err)
	_, err = owner.client.Send(ctx, id, chatclient.TextPayload("before refresh"))
	require.NoError(t, err)

	refreshed := newDevice(t, srv, member.userID, "member-phone")
	require.Equal(t, member.client.Identity().DeviceKeyID, refreshed.client.Identity().DeviceKeyID)

	_, err = refreshed.client.EnsureRoomKey(ctx, id)
	require.ErrorIs(t, err, domain.ErrMissingRoomKey)
	history, err := refreshed.client.DecryptHistory(ctx, id, nil, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.ErrorIs(t, history[0].Err, domain.ErrMissingRoomKey)

	written, err := owner.client.ShareRoomKey(ctx, id, member.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	key, err := refreshed.client.EnsureRoomKey(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ownerKey, key)
	history, err = refreshed.client.DecryptHistory(ctx, id, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"before refresh"}, texts(t, history))
}

func TestRefreshedOwnerRegeneratesRoomKey(t *testing.T) {
	srv := chatserver.Start(t)
	ctx := context.Background()
	owner := newDevice(t, srv, uuid.New(), "owner-desktop")
	member := newDevice(t, srv, uuid.New(), "member-phone")

	conv, err := owner.api.CreateGroup(ctx, "project", []uuid.UUID{member.userID})
	require.NoError(t, err)
	id := convID(t, conv)
	oldKey, err := owner.client.EnsureRoomKey(ctx, id)
	require.NoError(t, err)

	refreshed := newDevice(t, srv, owner.userID, "owner-desktop")
	newKey, err := refreshed.client.EnsureRoomKey(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, oldKey, newKey)

	key, err := member.client.EnsureRoomKey(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, newKey, key)
}

func TestUnopenableWrappedKeyCountsAsMissing(t *testing.T) {
	srv := chatserver.Start(t)
	ctx := context.Background()
	owner := newDevice(t, srv, uuid.New(), "owner-desktop")
	member := newDevice(t, srv, uuid.New(), "member-phone")

	conv, err := owner.api.CreateGroup(ctx, "project", []uuid.UUID{member.userID})
	require.NoError(t, err)
	id := convID(t, conv)
	_, err = owner.client.Send(ctx, id, chatclient.TextPayload("sealed"))
	require.NoError(t, err)

	_, err = owner.api.DistributeRoomKeys(ctx, id, []dto.WrappedKeyItem{{
		DeviceKeyID:     member.client.Identity().DeviceKeyID.String(),
		UserID:          member.userID.String(),
		EncryptedKeyB64: base64.StdEncoding.EncodeToString(make([]byte, 80)),
	}})
	require.NoError(t, err)

	_, err = member.client.EnsureRoomKey(ctx, id)
	require.ErrorIs(t, err, domain.ErrMissingRoomKey)
	history, err := member.client.DecryptHistory(ctx, id, nil, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.ErrorIs(t, history[0].Err, domain.ErrMissingRoomKey)
}

func TestLateMemberReadsHistoryOutsiderCannot(t *testing.T) {
	srv := chatserver.Start(t)
	ctx := context.Background()
	a := newDevice(t, srv, uuid.New(), "device-a-0001")
	b := newDevice(t, srv, uuid.New(), "device-b-0001")
	c := newDevice(t, srv, uuid.New(), "device-c-0001")
	d := newDevice(t, srv, uuid.New(), "device-d-0001")

	conv, err := a.api.CreateGroup(ctx, "abc", []uuid.UUID{b.userID, c.userID})
	require.NoError(t, err)
	id := convID(t, conv)

	var want []string
	for i := 0; i < 10; i++ {
		body := fmt.Sprintf("message %d", i)
		want = append(want, body)
		sender := []device{a, b, c}[i%3]
		_, err := sender.client.Send(ctx, id, chatclient.TextPayload(body))
		require.NoError(t, err)
	}

	_, err = d.client.EnsureRoomKey(ctx, id)
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = d.client.DecryptHistory(ctx, id, nil, 0)
	require.ErrorIs(t, err, domain.ErrForbidden)

	added, err := a.api.AddMembers(ctx, id, []uuid.UUID{d.userID})
	require.NoError(t, err)
	require.Equal(t, []string{d.userID.String()}, added)

	_, err = d.client.EnsureRoomKey(ctx, id)
	require.ErrorIs(t, err, domain.ErrMissingRoomKey)

	written, err := a.client.ShareRoomKey(ctx, id, d.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	history, err := d.client.DecryptHistory(ctx, id, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, want, texts(t, history))
}

func TestDecryptHistoryIsolatesBadMessages(t *testing.T) {
	srv := chatserver.Start(t)
	ctx := context.Background()
	a := newDevice(t, srv, uuid.New(), "device-a-0001")
	b := newDevice(t, srv, uuid.New(), "device-b-0001")

	conv, err := a.api.CreateDirect(ctx, b.userID)
	require.NoError(t, err)
	id := convID(t, conv)

	_, err = a.client.Send(ctx, id, chatclient.TextPayload("before"))
	require.NoError(t, err)
	_, err = a.api.SendMessage(ctx, id, dto.SendMessageRequest{
		Type:          "TEXT",
		IVB64:         base64.StdEncoding.EncodeToString(make([]byte, 24)),
		CiphertextB64: base64.StdEncoding.EncodeToString([]byte("definitely not sealed")),
	})
	require.NoError(t, err)
	_, err = a.client.Send(ctx, id, chatclient.TextPayload("after"))
	require.NoError(t, err)

	history, err := b.client.DecryptHistory(ctx, id, nil, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.NoError(t, history[0].Err)
	assert.ErrorIs(t, history[1].Err, cryptocore.ErrDecrypt)
	assert.NoError(t, history[2].Err)
	assert.Equal(t, "after", history[2].Payload.Text)
}

func TestRotateRoomKey(t *testing.T) {
	srv := chatserver.Start(t)
	ctx := context.Background()
	owner := newDevice(t, srv, uuid.New(), "owner-desktop")
	member := newDevice(t, srv, uuid.New(), "member-phone")

	conv, err := owner.api.CreateGroup(ctx, "rotate", []uuid.UUID{member.userID})
	require.NoError(t, err)
	id := convID(t, conv)

	_, err = owner.client.Send(ctx, id, chatclient.TextPayload("old"))
	require.NoError(t, err)
	oldKey, err := member.client.EnsureRoomKey(ctx, id)
	require.NoError(t, err)

	_, err = member.client.RotateRoomKey(ctx, id)
	require.ErrorIs(t, err, domain.ErrForbidden)

	newKey, err := owner.client.RotateRoomKey(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, oldKey, newKey)
	_, err = owner.client.Send(ctx, id, chatclient.Payload{Kind: chatclient.KindText, Text: "new"})
	require.NoError(t, err)

	history, err := owner.client.DecryptHistory(ctx, id, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "new"}, texts(t, history))

	member.client.Forget(id)
	got, err := member.client.EnsureRoomKey(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, newKey, got)
	history, err = member.client.DecryptHistory(ctx, id, nil, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.ErrorIs(t, history[0].Err, cryptocore.ErrDecrypt)
	assert.Equal(t, "new", history[1].Payload.Text)
}

func TestImagePayloadCarriesImageType(t *testing.T) {
	srv := chatserver.Start(t)
	ctx := context.Background()
	a := newDevice(t, srv, uuid.New(), "device-a-0001")
	b := newDevice(t, srv, uuid.New(), "device-b-0001")
	conv, err := a.api.CreateDirect(ctx, b.userID)
	require.NoError(t, err)
	id := convID(t, conv)

	album := chatclient.AlbumPayload([]chatclient.FileRef{
		{URL: "https://files.example/1", MimeType: "image/png"},
		{URL: "https://files.example/2", MimeType: "image/jpeg"},
	}, "trip")
	msg, err := a.client.Send(ctx, id, album)
	require.NoError(t, err)
	assert.Equal(t, string(domain.MessageImage), msg.Type)

	history, err := b.client.DecryptHistory(ctx, id, nil, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NoError(t, history[0].Err)
	assert.Equal(t, album, history[0].Payload)
}

func TestStreamReceivesEncryptedMessages(t *testing.T) {
	srv := chatserver.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a := newDevice(t, srv, uuid.New(), "device-a-0001")
	b := newDevice(t, srv, uuid.New(), "device-b-0001")
	conv, err := a.api.CreateDirect(ctx, b.userID)
	require.NoError(t, err)
	id := convID(t, conv)

	stream, err := chatclient.Dial(ctx, srv.URL, srv.Token(t, b.userID))
	require.NoError(t, err)
	defer stream.Close()

	reqID, err := stream.Command("ping", nil)
	require.NoError(t, err)
	_, err = stream.Await(ctx, "pong", reqID)
	require.NoError(t, err)

	_, err = a.client.Send(ctx, id, chatclient.TextPayload("live"))
	require.NoError(t, err)

	env, err := stream.Await(ctx, "message", "")
	require.NoError(t, err)
	var msg dto.Message
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	_, err = b.client.EnsureRoomKey(ctx, id)
	require.NoError(t, err)
	p, err := b.client.Decrypt(id, msg)
	require.NoError(t, err)
	assert.Equal(t, "live", p.Text)

	reqID, err = stream.Command("join", dto.ConversationRef{ConversationID: uuid.NewString()})
	require.NoError(t, err)
	_, err = stream.Await(ctx, "ack", reqID)
	require.ErrorContains(t, err, "not_found")
}
