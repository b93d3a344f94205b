package impl_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"chatcore/internal/domain"

	"github.com/google/uuid"
)

func TestGetOrCreateDirectConverges(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	fromA, created, err := s.convs.GetOrCreateDirect(ctx, a, b)
	if err != nil {
		t.Fatalf("a->b: %v", err)
	}
	if !created {
		t.Fatalf("first call should create the conversation")
	}
	fromB, created, err := s.convs.GetOrCreateDirect(ctx, b, a)
	if err != nil {
		t.Fatalf("b->a: %v", err)
	}
	if created {
		t.Fatalf("second call should reuse the conversation")
	}
	if fromA.ID != fromB.ID {
		t.Fatalf("expected one direct conversation, got %s and %s", fromA.ID, fromB.ID)
	}
	parts, err := s.convs.ListParticipants(ctx, a, fromA.ID)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(parts))
	}
}

func TestGetOrCreateDirectConcurrent(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	var wg sync.WaitGroup
	ids := make([]domain.ConversationID, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller, other := a, b
			if i%2 == 1 {
				caller, other = b, a
			}
			conv, _, err := s.convs.GetOrCreateDirect(ctx, caller, other)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = conv.ID
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if ids[i] != ids[0] {
			t.Fatalf("call %d resolved to %s, want %s", i, ids[i], ids[0])
		}
	}
}

func TestGetOrCreateDirectRejectsSelf(t *testing.T) {
	s := setupServices(t)
	a := uuid.New()
	if _, _, err := s.convs.GetOrCreateDirect(context.Background(), a, a); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateGroupRoles(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	u := users(3)
	owner, b, c := u[0], u[1], u[2]

	conv, err := s.convs.CreateGroup(ctx, owner, "  planning  ", []domain.UserID{b, c, b, owner})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if conv.Name == nil || *conv.Name != "planning" {
		t.Fatalf("expected trimmed name, got %v", conv.Name)
	}
	parts, err := s.convs.ListParticipants(ctx, owner, conv.ID)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("expected 3 deduplicated participants, got %d", len(parts))
	}
	roles := map[domain.UserID]domain.Role{}
	for _, p := range parts {
		roles[p.UserID] = p.Role
	}
	if roles[owner] != domain.RoleOwner || roles[b] != domain.RoleMember || roles[c] != domain.RoleMember {
		t.Fatalf("unexpected roles: %v", roles)
	}

	if _, err := s.convs.CreateGroup(ctx, owner, "   ", nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
}

func TestSetRoleRestrictedToOwner(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	u := users(3)
	owner, b, c := u[0], u[1], u[2]
	conv := newGroup(t, s, owner, b, c)

	if err := s.convs.SetRole(ctx, b, conv.ID, c, domain.RoleAdmin); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("member promote: expected forbidden, got %v", err)
	}
	if err := s.convs.SetRole(ctx, owner, conv.ID, b, domain.RoleAdmin); err != nil {
		t.Fatalf("owner promote: %v", err)
	}
	if err := s.convs.SetRole(ctx, b, conv.ID, c, domain.RoleAdmin); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("admin promote: expected forbidden, got %v", err)
	}
	if err := s.convs.SetRole(ctx, owner, conv.ID, c, domain.RoleOwner); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("promote to owner: expected validation error, got %v", err)
	}
	if err := s.convs.SetRole(ctx, owner, conv.ID, uuid.New(), domain.RoleAdmin); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown target: expected not found, got %v", err)
	}

	view, err := s.convs.Get(ctx, b, conv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Role != domain.RoleAdmin {
		t.Fatalf("expected b to be admin, got %s", view.Role)
	}

	direct, _, err := s.convs.GetOrCreateDirect(ctx, owner, b)
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	if err := s.convs.SetRole(ctx, owner, direct.ID, b, domain.RoleAdmin); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("direct role change: expected validation error, got %v", err)
	}
}

func TestAddMembers(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	u := users(4)
	owner, b, c, d := u[0], u[1], u[2], u[3]
	conv := newGroup(t, s, owner, b)

	if _, err := s.convs.AddMembers(ctx, b, conv.ID, []domain.UserID{c}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("member add: expected forbidden, got %v", err)
	}
	added, err := s.convs.AddMembers(ctx, owner, conv.ID, []domain.UserID{b, c, d, c})
	if err != nil {
		t.Fatalf("owner add: %v", err)
	}
	if len(added) != 2 || added[0] != c || added[1] != d {
		t.Fatalf("expected [c d] added, got %v", added)
	}
	if _, err := s.convs.RequireParticipant(ctx, conv.ID, d); err != nil {
		t.Fatalf("d should be a participant: %v", err)
	}
	if _, err := s.convs.AddMembers(ctx, uuid.New(), conv.ID, []domain.UserID{c}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("outsider add: expected forbidden, got %v", err)
	}
	if _, err := s.convs.AddMembers(ctx, owner, uuid.New(), []domain.UserID{c}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing conversation: expected not found, got %v", err)
	}
}

func TestUnreadCountAndMarkRead(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	conv, _, err := s.convs.GetOrCreateDirect(ctx, a, b)
	if err != nil {
		t.Fatalf("direct: %v", err)
	}

	sendText(t, s, a, conv.ID, "one")
	sendText(t, s, a, conv.ID, "two")
	if n, err := s.convs.UnreadCount(ctx, b, conv.ID); err != nil || n != 2 {
		t.Fatalf("expected 2 unread before read, got %d (%v)", n, err)
	}

	if err := s.convs.MarkRead(ctx, b, conv.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n, _ := s.convs.UnreadCount(ctx, b, conv.ID); n != 0 {
		t.Fatalf("expected 0 unread after mark read, got %d", n)
	}

	sendText(t, s, b, conv.ID, "own message")
	if n, _ := s.convs.UnreadCount(ctx, b, conv.ID); n != 0 {
		t.Fatalf("own messages must not count as unread, got %d", n)
	}
	for i := 1; i <= 3; i++ {
		sendText(t, s, a, conv.ID, "more")
		if n, _ := s.convs.UnreadCount(ctx, b, conv.ID); n != int64(i) {
			t.Fatalf("expected %d unread, got %d", i, n)
		}
	}
}

func TestListMineOrdersByActivity(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	u := users(3)
	me, b, c := u[0], u[1], u[2]

	withB, _, err := s.convs.GetOrCreateDirect(ctx, me, b)
	if err != nil {
		t.Fatalf("direct b: %v", err)
	}
	withC, _, err := s.convs.GetOrCreateDirect(ctx, me, c)
	if err != nil {
		t.Fatalf("direct c: %v", err)
	}
	sendText(t, s, b, withB.ID, "latest")

	list, err := s.convs.ListMine(ctx, me)
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].Conversation.ID != withB.ID || list[1].Conversation.ID != withC.ID {
		t.Fatalf("expected most recent conversation first")
	}
	if list[0].UnreadCount != 1 || list[0].LastMessage == nil {
		t.Fatalf("expected unread 1 with preview, got %+v", list[0])
	}
	if list[1].LastMessage != nil {
		t.Fatalf("expected no preview for empty conversation")
	}
}
