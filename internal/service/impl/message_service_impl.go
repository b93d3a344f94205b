package impl

import (
	"context"
	"time"

	"chatcore/internal/domain"
	"chatcore/internal/service"
	"chatcore/internal/store"

	"github.com/google/uuid"
)

const (
	DefaultHistoryLimit = 50
	DefaultHistoryMax   = 100
	maxCiphertextBytes  = 256 << 10
	maxNonceBytes       = 64
)

var _ service.MessageService = (*MessageServiceImpl)(nil)

type MessageServiceImpl struct {
	store      *store.Store
	now        func() time.Time
	historyMax int
}

func NewMessageServiceImpl(st *store.Store, historyMax int) *MessageServiceImpl {
	if historyMax <= 0 {
		historyMax = DefaultHistoryMax
	}
	return &MessageServiceImpl{
		store:      st,
		historyMax: historyMax,
		now:        utcNow,
	}
}

func (m *MessageServiceImpl) WithClock(now func() time.Time) *MessageServiceImpl {
	m.now = now
	return m
}

func (m *MessageServiceImpl) Get(ctx context.Context, caller domain.UserID, id domain.MessageID) (*domain.Message, error) {
	if m.store == nil {
		return nil, errStoreNotConfigured
	}
	msg, err := m.store.Messages().Get(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err, "message")
	}
	if _, _, err := membership(ctx, m.store, msg.ConversationID, caller); err != nil {
		return nil, err
	}
	return msg, nil
}

func (m *MessageServiceImpl) Send(ctx context.Context, caller domain.UserID, convID domain.ConversationID, in service.SendMessageInput) (*domain.Message, error) {
	if m.store == nil {
		return nil, errStoreNotConfigured
	}
	if !in.Type.Valid() {
		return nil, validationf("type must be TEXT or IMAGE")
	}
	if err := validateCiphertext(in.IVB64, in.CiphertextB64); err != nil {
		return nil, err
	}

	now := m.now()
	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		SenderID:       caller,
		Type:           in.Type,
		IVB64:          in.IVB64,
		CiphertextB64:  in.CiphertextB64,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := m.store.WithTx(ctx, func(tx *store.Store) error {
		if _, _, err := membership(ctx, tx, convID, caller); err != nil {
			return err
		}
		if err := tx.Messages().Create(ctx, msg); err != nil {
			return err
		}
		return tx.Conversations().Touch(ctx, convID, now)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (m *MessageServiceImpl) Edit(ctx context.Context, caller domain.UserID, id domain.MessageID, ivB64, ciphertextB64 string) (*domain.Message, error) {
	if m.store == nil {
		return nil, errStoreNotConfigured
	}
	if err := validateCiphertext(ivB64, ciphertextB64); err != nil {
		return nil, err
	}

	now := m.now()
	var out *domain.Message
	err := m.store.WithTx(ctx, func(tx *store.Store) error {
		msg, err := m.owned(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		if err := tx.Messages().Replace(ctx, id, ivB64, ciphertextB64, now); err != nil {
			return translateStoreErr(err, "message")
		}
		if err := tx.Conversations().Touch(ctx, msg.ConversationID, now); err != nil {
			return translateStoreErr(err, "conversation")
		}
		msg.IVB64 = ivB64
		msg.CiphertextB64 = ciphertextB64
		msg.UpdatedAt = now
		msg.EditedAt = &now
		out = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MessageServiceImpl) Delete(ctx context.Context, caller domain.UserID, id domain.MessageID) (*domain.Message, error) {
	if m.store == nil {
		return nil, errStoreNotConfigured
	}
	now := m.now()
	var out *domain.Message
	err := m.store.WithTx(ctx, func(tx *store.Store) error {
		msg, err := m.owned(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		if err := tx.Messages().Delete(ctx, id); err != nil {
			return translateStoreErr(err, "message")
		}
		if err := tx.Conversations().Touch(ctx, msg.ConversationID, now); err != nil {
			return translateStoreErr(err, "conversation")
		}
		out = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MessageServiceImpl) List(ctx context.Context, caller domain.UserID, convID domain.ConversationID, before *time.Time, limit int) ([]domain.Message, error) {
	if m.store == nil {
		return nil, errStoreNotConfigured
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > m.historyMax:
		limit = m.historyMax
	}
	if _, _, err := membership(ctx, m.store, convID, caller); err != nil {
		return nil, err
	}
	msgs, err := m.store.Messages().ListBefore(ctx, convID, before, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// owned loads a message the caller sent and is still a participant of.
func (m *MessageServiceImpl) owned(ctx context.Context, tx *store.Store, caller domain.UserID, id domain.MessageID) (*domain.Message, error) {
	msg, err := tx.Messages().Get(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err, "message")
	}
	if msg.SenderID != caller {
		return nil, forbiddenf("only the sender may modify a message")
	}
	if _, _, err := membership(ctx, tx, msg.ConversationID, caller); err != nil {
		return nil, err
	}
	return msg, nil
}

func validateCiphertext(ivB64, ciphertextB64 string) error {
	n, err := decodeBase64Field(ivB64, "ivB64")
	if err != nil {
		return err
	}
	if n > maxNonceBytes {
		return validationf("ivB64 exceeds %d bytes", maxNonceBytes)
	}
	n, err = decodeBase64Field(ciphertextB64, "ciphertextB64")
	if err != nil {
		return err
	}
	if n > maxCiphertextBytes {
		return validationf("ciphertext exceeds %d bytes", maxCiphertextBytes)
	}
	return nil
}
