package store

import (
	"context"
	"time"

	"chatcore/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ParticipantStore struct{ db *gorm.DB }

func (s *Store) Participants() *ParticipantStore { return &ParticipantStore{db: s.DB} }

// Ensure inserts participants that are not yet present. Existing rows keep
// their role and read marker.
func (p *ParticipantStore) Ensure(ctx context.Context, parts []domain.Participant) error {
	if len(parts) == 0 {
		return nil
	}
	return translate(p.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&parts).Error)
}

func (p *ParticipantStore) Get(ctx context.Context, convID domain.ConversationID, userID domain.UserID) (*domain.Participant, error) {
	var part domain.Participant
	err := p.db.WithContext(ctx).
		First(&part, "conversation_id = ? AND user_id = ?", convID, userID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &part, nil
}

func (p *ParticipantStore) List(ctx context.Context, convID domain.ConversationID) ([]domain.Participant, error) {
	var parts []domain.Participant
	err := p.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("joined_at ASC").
		Order("user_id ASC").
		Find(&parts).Error
	if err != nil {
		return nil, translate(err)
	}
	return parts, nil
}

// Members returns the subset of userIDs that participate in convID.
func (p *ParticipantStore) Members(ctx context.Context, convID domain.ConversationID, userIDs []domain.UserID) (map[domain.UserID]bool, error) {
	out := make(map[domain.UserID]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var ids []domain.UserID
	err := p.db.WithContext(ctx).
		Model(&domain.Participant{}).
		Where("conversation_id = ? AND user_id IN ?", convID, userIDs).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, translate(err)
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (p *ParticipantStore) ConversationIDs(ctx context.Context, userID domain.UserID) ([]domain.ConversationID, error) {
	var ids []domain.ConversationID
	err := p.db.WithContext(ctx).
		Model(&domain.Participant{}).
		Where("user_id = ?", userID).
		Pluck("conversation_id", &ids).Error
	if err != nil {
		return nil, translate(err)
	}
	return ids, nil
}

func (p *ParticipantStore) SetRole(ctx context.Context, convID domain.ConversationID, userID domain.UserID, role domain.Role) error {
	res := p.db.WithContext(ctx).
		Model(&domain.Participant{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		UpdateColumn("role", role)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// AdvanceReadMarker moves last_read_at forward to at. It never moves the
// marker backwards; the returned bool reports whether a row changed.
func (p *ParticipantStore) AdvanceReadMarker(ctx context.Context, convID domain.ConversationID, userID domain.UserID, at time.Time) (bool, error) {
	res := p.db.WithContext(ctx).
		Model(&domain.Participant{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Where("last_read_at IS NULL OR last_read_at < ?", at).
		UpdateColumn("last_read_at", at)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}
