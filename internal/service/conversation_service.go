package service

import (
	"context"

	"chatcore/internal/domain"
)

// ConversationView is a conversation as seen by one participant.
type ConversationView struct {
	Conversation domain.Conversation
	Role         domain.Role
}

type ConversationSummary struct {
	Conversation domain.Conversation
	Role         domain.Role
	UnreadCount  int64
	LastMessage  *domain.Message
}

type ConversationService interface {
	// GetOrCreateDirect reports created=false when the pair already had a direct
	// conversation.
	GetOrCreateDirect(ctx context.Context, caller, other domain.UserID) (*domain.Conversation, bool, error)
	CreateGroup(ctx context.Context, caller domain.UserID, name string, memberIDs []domain.UserID) (*domain.Conversation, error)
	Get(ctx context.Context, caller domain.UserID, id domain.ConversationID) (*ConversationView, error)
	ListMine(ctx context.Context, caller domain.UserID) ([]ConversationSummary, error)
	ListParticipants(ctx context.Context, caller domain.UserID, id domain.ConversationID) ([]domain.Participant, error)
	// AddMembers returns the ids that were not already participants.
	AddMembers(ctx context.Context, caller domain.UserID, id domain.ConversationID, userIDs []domain.UserID) ([]domain.UserID, error)
	SetRole(ctx context.Context, caller domain.UserID, id domain.ConversationID, target domain.UserID, role domain.Role) error
	MarkRead(ctx context.Context, caller domain.UserID, id domain.ConversationID) error
	UnreadCount(ctx context.Context, caller domain.UserID, id domain.ConversationID) (int64, error)
	RequireParticipant(ctx context.Context, id domain.ConversationID, userID domain.UserID) (*domain.Participant, error)
	ConversationIDsFor(ctx context.Context, userID domain.UserID) ([]domain.ConversationID, error)
}
