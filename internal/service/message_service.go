package service

import (
	"context"
	"time"

	"chatcore/internal/domain"
)

type SendMessageInput struct {
	Type          domain.MessageType
	IVB64         string
	CiphertextB64 string
}

type MessageService interface {
	// Get returns a message the caller can see as a participant.
	Get(ctx context.Context, caller domain.UserID, id domain.MessageID) (*domain.Message, error)
	Send(ctx context.Context, caller domain.UserID, convID domain.ConversationID, in SendMessageInput) (*domain.Message, error)
	Edit(ctx context.Context, caller domain.UserID, id domain.MessageID, ivB64, ciphertextB64 string) (*domain.Message, error)
	// Delete returns the removed message so callers can address its room.
	Delete(ctx context.Context, caller domain.UserID, id domain.MessageID) (*domain.Message, error)
	// List pages backwards from before and returns the page oldest first.
	List(ctx context.Context, caller domain.UserID, convID domain.ConversationID, before *time.Time, limit int) ([]domain.Message, error)
}
