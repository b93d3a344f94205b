package dto

import "encoding/json"

// Envelope is the websocket frame in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

type SendCommand struct {
	ConversationID string `json:"conversationId"`
	Type           string `json:"type"`
	IVB64          string `json:"ivB64"`
	CiphertextB64  string `json:"ciphertextB64"`
}

type EditCommand struct {
	MessageID     string `json:"messageId"`
	IVB64         string `json:"ivB64"`
	CiphertextB64 string `json:"ciphertextB64"`
}

type DeleteCommand struct {
	MessageID string `json:"messageId"`
}

type TypingCommand struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type CallStartCommand struct {
	ConversationID string `json:"conversationId"`
	CallType       string `json:"callType"`
}

type CallRespondCommand struct {
	CallID         string `json:"callId"`
	ConversationID string `json:"conversationId"`
	InitiatorID    string `json:"initiatorId"`
	Accepted       bool   `json:"accepted"`
}

type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

type CallIncomingEvent struct {
	CallID         string `json:"callId"`
	ConversationID string `json:"conversationId"`
	CallType       string `json:"callType"`
	FromUserID     string `json:"fromUserId"`
}

type CallResponseEvent struct {
	CallID         string `json:"callId"`
	ConversationID string `json:"conversationId"`
	FromUserID     string `json:"fromUserId"`
	Accepted       bool   `json:"accepted"`
}

type CallStarted struct {
	CallID string `json:"callId"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
