package domain

import "github.com/google/uuid"

type UserID = uuid.UUID
type ConversationID = uuid.UUID
type MessageID = uuid.UUID
type DeviceKeyID = uuid.UUID

type ConversationType string

const (
	ConversationDirect ConversationType = "DIRECT"
	ConversationGroup  ConversationType = "GROUP"
)

type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// CanManage reports whether the role may add members or distribute room keys.
func (r Role) CanManage() bool { return r == RoleOwner || r == RoleAdmin }

type MessageType string

const (
	MessageText  MessageType = "TEXT"
	MessageImage MessageType = "IMAGE"
)

func (t MessageType) Valid() bool { return t == MessageText || t == MessageImage }
