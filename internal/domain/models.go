package domain

import (
	"strings"
	"time"

	"chatcore/internal/jsonx"
)

// DeviceKey is the public half of one installation's key pair.
type DeviceKey struct {
	ID        DeviceKeyID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    UserID      `gorm:"type:uuid;not null;uniqueIndex:ux_device_keys_user_device,priority:1" json:"userId"`
	DeviceID  string      `gorm:"type:text;not null;uniqueIndex:ux_device_keys_user_device,priority:2" json:"deviceId"`
	PublicKey jsonx.JSON  `gorm:"type:jsonb;not null" json:"publicKey"`
	CreatedAt time.Time   `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time   `gorm:"not null" json:"updatedAt"`
}

func (DeviceKey) TableName() string { return "device_keys" }

type Conversation struct {
	ID        ConversationID   `gorm:"type:uuid;primaryKey" json:"id"`
	Type      ConversationType `gorm:"type:text;not null" json:"type"`
	Name      *string          `gorm:"type:text" json:"name,omitempty"`
	DirectKey *string          `gorm:"type:text;uniqueIndex" json:"-"`
	CreatedBy UserID           `gorm:"type:uuid;not null" json:"createdBy"`
	CreatedAt time.Time        `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time        `gorm:"not null;index" json:"updatedAt"`
}

func (Conversation) TableName() string { return "conversations" }

// DirectKeyFor builds the order-independent key shared by both sides of a
// direct conversation.
func DirectKeyFor(a, b UserID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return strings.Join([]string{x, y}, ":")
}

type Participant struct {
	ConversationID ConversationID `gorm:"type:uuid;primaryKey" json:"conversationId"`
	UserID         UserID         `gorm:"type:uuid;primaryKey;index" json:"userId"`
	Role           Role           `gorm:"type:text;not null" json:"role"`
	JoinedAt       time.Time      `gorm:"not null" json:"joinedAt"`
	LastReadAt     *time.Time     `json:"lastReadAt,omitempty"`
}

func (Participant) TableName() string { return "participants" }

// WrappedRoomKey is one device's sealed copy of a conversation room key.
type WrappedRoomKey struct {
	ConversationID  ConversationID `gorm:"type:uuid;primaryKey" json:"conversationId"`
	DeviceKeyID     DeviceKeyID    `gorm:"type:uuid;primaryKey" json:"deviceKeyId"`
	UserID          UserID         `gorm:"type:uuid;not null;index" json:"userId"`
	IVB64           string         `gorm:"column:iv_b64;type:text" json:"ivB64,omitempty"`
	EncryptedKeyB64 string         `gorm:"column:encrypted_key_b64;type:text;not null" json:"encryptedKeyB64"`
	CreatedAt       time.Time      `gorm:"not null" json:"createdAt"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updatedAt"`
}

func (WrappedRoomKey) TableName() string { return "wrapped_room_keys" }

type Message struct {
	ID             MessageID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID ConversationID `gorm:"type:uuid;not null;index:ix_messages_conversation_created,priority:1" json:"conversationId"`
	SenderID       UserID         `gorm:"type:uuid;not null" json:"senderId"`
	Type           MessageType    `gorm:"type:text;not null" json:"type"`
	IVB64          string         `gorm:"column:iv_b64;type:text;not null" json:"ivB64"`
	CiphertextB64  string         `gorm:"column:ciphertext_b64;type:text;not null" json:"ciphertextB64"`
	CreatedAt      time.Time      `gorm:"not null;index:ix_messages_conversation_created,priority:2" json:"createdAt"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updatedAt"`
	EditedAt       *time.Time     `json:"editedAt,omitempty"`
}

func (Message) TableName() string { return "messages" }

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&DeviceKey{},
		&Conversation{},
		&Participant{},
		&WrappedRoomKey{},
		&Message{},
	}
}
