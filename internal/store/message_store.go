package store

import (
	"context"
	"time"

	"chatcore/internal/domain"

	"gorm.io/gorm"
)

type MessageStore struct{ db *gorm.DB }

func (s *Store) Messages() *MessageStore { return &MessageStore{db: s.DB} }

func (m *MessageStore) Create(ctx context.Context, msg *domain.Message) error {
	return translate(m.db.WithContext(ctx).Create(msg).Error)
}

func (m *MessageStore) Get(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	var msg domain.Message
	if err := m.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

// Replace swaps the ciphertext of an existing message in place.
func (m *MessageStore) Replace(ctx context.Context, id domain.MessageID, ivB64, ciphertextB64 string, at time.Time) error {
	res := m.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"iv_b64":         ivB64,
			"ciphertext_b64": ciphertextB64,
			"updated_at":     at,
			"edited_at":      at,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m *MessageStore) Delete(ctx context.Context, id domain.MessageID) error {
	res := m.db.WithContext(ctx).Delete(&domain.Message{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListBefore returns up to limit messages older than before (or the newest
// ones when before is nil), newest first.
func (m *MessageStore) ListBefore(ctx context.Context, convID domain.ConversationID, before *time.Time, limit int) ([]domain.Message, error) {
	q := m.db.WithContext(ctx).Where("conversation_id = ?", convID)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}
	var msgs []domain.Message
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&msgs).Error
	if err != nil {
		return nil, translate(err)
	}
	return msgs, nil
}

func (m *MessageStore) Latest(ctx context.Context, convID domain.ConversationID) (*domain.Message, error) {
	var msg domain.Message
	err := m.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at DESC").
		Order("id DESC").
		First(&msg).Error
	if err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

// CountUnread counts messages from users other than reader created after
// since; a nil since counts every such message.
func (m *MessageStore) CountUnread(ctx context.Context, convID domain.ConversationID, reader domain.UserID, since *time.Time) (int64, error) {
	q := m.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_id <> ?", convID, reader)
	if since != nil {
		q = q.Where("created_at > ?", *since)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, translate(err)
	}
	return n, nil
}
