package store

import (
	"context"
	"time"

	"chatcore/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationStore struct{ db *gorm.DB }

func (s *Store) Conversations() *ConversationStore { return &ConversationStore{db: s.DB} }

func (c *ConversationStore) Create(ctx context.Context, conv *domain.Conversation) error {
	return translate(c.db.WithContext(ctx).Create(conv).Error)
}

// CreateDirect inserts conv unless a row with the same direct key exists, then
// returns whichever row holds that key. created reports whether conv won.
func (c *ConversationStore) CreateDirect(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error) {
	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "direct_key"}},
			DoNothing: true,
		}).
		Create(conv).Error
	if err != nil {
		return nil, false, translate(err)
	}
	var out domain.Conversation
	if err := c.db.WithContext(ctx).First(&out, "direct_key = ?", *conv.DirectKey).Error; err != nil {
		return nil, false, translate(err)
	}
	return &out, out.ID == conv.ID, nil
}

func (c *ConversationStore) Get(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := c.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

// ListForUser returns the user's conversations, most recently active first.
func (c *ConversationStore) ListForUser(ctx context.Context, userID domain.UserID) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	err := c.db.WithContext(ctx).
		Joins("JOIN participants p ON p.conversation_id = conversations.id").
		Where("p.user_id = ?", userID).
		Order("conversations.updated_at DESC").
		Order("conversations.id ASC").
		Find(&convs).Error
	if err != nil {
		return nil, translate(err)
	}
	return convs, nil
}

func (c *ConversationStore) Touch(ctx context.Context, id domain.ConversationID, at time.Time) error {
	res := c.db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", at)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
