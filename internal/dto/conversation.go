package dto

import (
	"time"

	"chatcore/internal/domain"
	"chatcore/internal/service"
)

type CreateDirectRequest struct {
	OtherUserID string `json:"otherUserId"`
}

type CreateGroupRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"memberIds"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Name      *string   `json:"name,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Role      string    `json:"role,omitempty"`
}

type ConversationSummary struct {
	Conversation
	UnreadCount int64           `json:"unreadCount"`
	LastMessage *MessagePreview `json:"lastMessage,omitempty"`
}

type ConversationList struct {
	Conversations []ConversationSummary `json:"conversations"`
}

type MessagePreview struct {
	ID            string    `json:"id"`
	SenderID      string    `json:"senderId"`
	Type          string    `json:"type"`
	IVB64         string    `json:"ivB64"`
	CiphertextB64 string    `json:"ciphertextB64"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Participant struct {
	UserID     string     `json:"userId"`
	Role       string     `json:"role"`
	JoinedAt   time.Time  `json:"joinedAt"`
	LastReadAt *time.Time `json:"lastReadAt,omitempty"`
}

type ParticipantList struct {
	Participants []Participant `json:"participants"`
}

type AddMembersRequest struct {
	UserIDs []string `json:"userIds"`
}

type AddMembersResponse struct {
	Added []string `json:"added"`
}

type SetRoleRequest struct {
	Role string `json:"role"`
}

type UnreadCountResponse struct {
	UnreadCount int64 `json:"unreadCount"`
}

func FromConversation(c domain.Conversation, role domain.Role) Conversation {
	return Conversation{
		ID:        c.ID.String(),
		Type:      string(c.Type),
		Name:      c.Name,
		CreatedBy: c.CreatedBy.String(),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Role:      string(role),
	}
}

func FromSummaries(in []service.ConversationSummary) ConversationList {
	out := ConversationList{Conversations: make([]ConversationSummary, 0, len(in))}
	for _, s := range in {
		item := ConversationSummary{
			Conversation: FromConversation(s.Conversation, s.Role),
			UnreadCount:  s.UnreadCount,
		}
		if m := s.LastMessage; m != nil {
			item.LastMessage = &MessagePreview{
				ID:            m.ID.String(),
				SenderID:      m.SenderID.String(),
				Type:          string(m.Type),
				IVB64:         m.IVB64,
				CiphertextB64: m.CiphertextB64,
				CreatedAt:     m.CreatedAt,
			}
		}
		out.Conversations = append(out.Conversations, item)
	}
	return out
}

func FromParticipants(ps []domain.Participant) ParticipantList {
	out := ParticipantList{Participants: make([]Participant, 0, len(ps))}
	for _, p := range ps {
		out.Participants = append(out.Participants, Participant{
			UserID:     p.UserID.String(),
			Role:       string(p.Role),
			JoinedAt:   p.JoinedAt,
			LastReadAt: p.LastReadAt,
		})
	}
	return out
}
