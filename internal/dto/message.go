package dto

import (
	"time"

	"chatcore/internal/domain"
)

type SendMessageRequest struct {
	Type          string `json:"type"`
	IVB64         string `json:"ivB64"`
	CiphertextB64 string `json:"ciphertextB64"`
}

type EditMessageRequest struct {
	IVB64         string `json:"ivB64"`
	CiphertextB64 string `json:"ciphertextB64"`
}

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Type           string     `json:"type"`
	IVB64          string     `json:"ivB64"`
	CiphertextB64  string     `json:"ciphertextB64"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
}

type MessageList struct {
	Messages []Message `json:"messages"`
}

type MessageDeleted struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
}

func FromMessage(m domain.Message) Message {
	return Message{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		SenderID:       m.SenderID.String(),
		Type:           string(m.Type),
		IVB64:          m.IVB64,
		CiphertextB64:  m.CiphertextB64,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		EditedAt:       m.EditedAt,
	}
}

func FromMessages(ms []domain.Message) MessageList {
	out := MessageList{Messages: make([]Message, 0, len(ms))}
	for _, m := range ms {
		out.Messages = append(out.Messages, FromMessage(m))
	}
	return out
}
