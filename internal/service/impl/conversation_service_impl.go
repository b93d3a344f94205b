package impl

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"chatcore/internal/domain"
	"chatcore/internal/service"
	"chatcore/internal/store"

	"github.com/google/uuid"
)

const maxGroupNameLen = 100

var _ service.ConversationService = (*ConversationServiceImpl)(nil)

type ConversationServiceImpl struct {
	store *store.Store
	now   func() time.Time
}

func NewConversationServiceImpl(st *store.Store) *ConversationServiceImpl {
	return &ConversationServiceImpl{
		store: st,
		now:   utcNow,
	}
}

func (c *ConversationServiceImpl) WithClock(now func() time.Time) *ConversationServiceImpl {
	c.now = now
	return c
}

func (c *ConversationServiceImpl) GetOrCreateDirect(ctx context.Context, caller, other domain.UserID) (*domain.Conversation, bool, error) {
	if c.store == nil {
		return nil, false, errStoreNotConfigured
	}
	if caller == uuid.Nil || other == uuid.Nil {
		return nil, false, validationf("user ids are required")
	}
	if caller == other {
		return nil, false, validationf("cannot open a direct conversation with yourself")
	}

	key := domain.DirectKeyFor(caller, other)
	now := c.now()
	var (
		out     *domain.Conversation
		created bool
	)
	err := c.store.WithTx(ctx, func(tx *store.Store) error {
		conv, ok, err := tx.Conversations().CreateDirect(ctx, &domain.Conversation{
			ID:        uuid.New(),
			Type:      domain.ConversationDirect,
			DirectKey: &key,
			CreatedBy: caller,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		if err := tx.Participants().Ensure(ctx, []domain.Participant{
			{ConversationID: conv.ID, UserID: caller, Role: domain.RoleMember, JoinedAt: now},
			{ConversationID: conv.ID, UserID: other, Role: domain.RoleMember, JoinedAt: now},
		}); err != nil {
			return err
		}
		out, created = conv, ok
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func (c *ConversationServiceImpl) CreateGroup(ctx context.Context, caller domain.UserID, name string, memberIDs []domain.UserID) (*domain.Conversation, error) {
	if c.store == nil {
		return nil, errStoreNotConfigured
	}
	if caller == uuid.Nil {
		return nil, validationf("caller is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationf("name is required")
	}
	if utf8.RuneCountInString(name) > maxGroupNameLen {
		return nil, validationf("name must be at most %d characters", maxGroupNameLen)
	}

	now := c.now()
	conv := &domain.Conversation{
		ID:        uuid.New(),
		Type:      domain.ConversationGroup,
		Name:      &name,
		CreatedBy: caller,
		CreatedAt: now,
		UpdatedAt: now,
	}
	parts := []domain.Participant{{ConversationID: conv.ID, UserID: caller, Role: domain.RoleOwner, JoinedAt: now}}
	for _, id := range dedupeUsers(memberIDs, caller) {
		parts = append(parts, domain.Participant{ConversationID: conv.ID, UserID: id, Role: domain.RoleMember, JoinedAt: now})
	}

	err := c.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.Conversations().Create(ctx, conv); err != nil {
			return translateStoreErr(err, "conversation")
		}
		return tx.Participants().Ensure(ctx, parts)
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (c *ConversationServiceImpl) Get(ctx context.Context, caller domain.UserID, id domain.ConversationID) (*service.ConversationView, error) {
	if c.store == nil {
		return nil, errStoreNotConfigured
	}
	conv, part, err := membership(ctx, c.store, id, caller)
	if err != nil {
		return nil, err
	}
	return &service.ConversationView{Conversation: *conv, Role: part.Role}, nil
}

func (c *ConversationServiceImpl) ListMine(ctx context.Context, caller domain.UserID) ([]service.ConversationSummary, error) {
	if c.store == nil {
		return nil, errStoreNotConfigured
	}
	convs, err := c.store.Conversations().ListForUser(ctx, caller)
	if err != nil {
		return nil, err
	}
	out := make([]service.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		part, err := c.store.Participants().Get(ctx, conv.ID, caller)
		if err != nil {
			return nil, translateStoreErr(err, "participant")
		}
		unread, err := c.store.Messages().CountUnread(ctx, conv.ID, caller, part.LastReadAt)
		if err != nil {
			return nil, err
		}
		summary := service.ConversationSummary{Conversation: conv, Role: part.Role, UnreadCount: unread}
		last, err := c.store.Messages().Latest(ctx, conv.ID)
		switch {
		case err == nil:
			summary.LastMessage = last
		case !errors.Is(err, store.ErrRecordNotFound):
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

func (c *ConversationServiceImpl) ListParticipants(ctx context.Context, caller domain.UserID, id domain.ConversationID) ([]domain.Participant, error) {
	if c.store == nil {
		return nil, errStoreNotConfigured
	}
	if _, _, err := membership(ctx, c.store, id, caller); err != nil {
		return nil, err
	}
	return c.store.Participants().List(ctx, id)
}

func (c *ConversationServiceImpl) AddMembers(ctx context.Context, caller domain.UserID, id domain.ConversationID, userIDs []domain.UserID) ([]domain.UserID, error) {
	if c.store == nil {
		return nil, errStoreNotConfigured
	}
	candidates := dedupeUsers(userIDs, caller)
	if len(candidates) == 0 {
		return nil, validationf("userIds must name at least one other user")
	}

	now := c.now()
	var added []domain.UserID
	err := c.store.WithTx(ctx, func(tx *store.Store) error {
		conv, part, err := membership(ctx, tx, id, caller)
		if err != nil {
			return err
		}
		if conv.Type != domain.ConversationGroup {
			return validationf("members can only be added to group conversations")
		}
		if !part.Role.CanManage() {
			return forbiddenf("only owners and admins may add members")
		}
		existing, err := tx.Participants().Members(ctx, id, candidates)
		if err != nil {
			return err
		}
		var parts []domain.Participant
		for _, uid := range candidates {
			if existing[uid] {
				continue
			}
			added = append(added, uid)
			parts = append(parts, domain.Participant{ConversationID: id, UserID: uid, Role: domain.RoleMember, JoinedAt: now})
		}
		return tx.Participants().Ensure(ctx, parts)
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func (c *ConversationServiceImpl) SetRole(ctx context.Context, caller domain.UserID, id domain.ConversationID, target domain.UserID, role domain.Role) error {
	if c.store == nil {
		return errStoreNotConfigured
	}
	if role != domain.RoleAdmin && role != domain.RoleMember {
		return validationf("role must be ADMIN or MEMBER")
	}
	if target == caller {
		return validationf("owners cannot change their own role")
	}
	return c.store.WithTx(ctx, func(tx *store.Store) error {
		conv, part, err := membership(ctx, tx, id, caller)
		if err != nil {
			return err
		}
		if conv.Type != domain.ConversationGroup {
			return validationf("roles only exist in group conversations")
		}
		if part.Role != domain.RoleOwner {
			return forbiddenf("only the owner may change roles")
		}
		if err := tx.Participants().SetRole(ctx, id, target, role); err != nil {
			return translateStoreErr(err, "participant")
		}
		return nil
	})
}

func (c *ConversationServiceImpl) MarkRead(ctx context.Context, caller domain.UserID, id domain.ConversationID) error {
	if c.store == nil {
		return errStoreNotConfigured
	}
	if _, _, err := membership(ctx, c.store, id, caller); err != nil {
		return err
	}
	_, err := c.store.Participants().AdvanceReadMarker(ctx, id, caller, c.now())
	return err
}

func (c *ConversationServiceImpl) UnreadCount(ctx context.Context, caller domain.UserID, id domain.ConversationID) (int64, error) {
	if c.store == nil {
		return 0, errStoreNotConfigured
	}
	_, part, err := membership(ctx, c.store, id, caller)
	if err != nil {
		return 0, err
	}
	return c.store.Messages().CountUnread(ctx, id, caller, part.LastReadAt)
}

func (c *ConversationServiceImpl) RequireParticipant(ctx context.Context, id domain.ConversationID, userID domain.UserID) (*domain.Participant, error) {
	if c.store == nil {
		return nil, errStoreNotConfigured
	}
	_, part, err := membership(ctx, c.store, id, userID)
	return part, err
}

func (c *ConversationServiceImpl) ConversationIDsFor(ctx context.Context, userID domain.UserID) ([]domain.ConversationID, error) {
	if c.store == nil {
		return nil, errStoreNotConfigured
	}
	return c.store.Participants().ConversationIDs(ctx, userID)
}

// dedupeUsers drops nil ids, duplicates and skip, keeping first-seen order.
func dedupeUsers(ids []domain.UserID, skip domain.UserID) []domain.UserID {
	seen := map[domain.UserID]bool{skip: true, uuid.Nil: true}
	out := make([]domain.UserID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
