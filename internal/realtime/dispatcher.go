package realtime

import (
	"context"
	"log/slog"

	"chatcore/internal/domain"
	"chatcore/internal/dto"
	"chatcore/internal/observability/metrics"
	"chatcore/internal/service"
)

const (
	EventMessage            = "message"
	EventMessageUpdated     = "message_updated"
	EventMessageDeleted     = "message_deleted"
	EventTyping             = "typing"
	EventConversationJoined = "conversation_joined"
	EventCallIncoming       = "call_incoming"
	EventCallResponse       = "call_response"
	EventAck                = "ack"
	EventError              = "error"
	EventPong               = "pong"
)

// Dispatcher persists conversation mutations through the services and then
// broadcasts them. Persist and broadcast run under a per-conversation lock so
// every connection observes events in commit order.
type Dispatcher struct {
	hub      *Hub
	convs    service.ConversationService
	messages service.MessageService
	locks    *convLocks
	log      *slog.Logger
}

func NewDispatcher(hub *Hub, convs service.ConversationService, messages service.MessageService) *Dispatcher {
	return &Dispatcher{
		hub:      hub,
		convs:    convs,
		messages: messages,
		locks:    newConvLocks(),
		log:      slog.Default().With("component", "realtime"),
	}
}

func (d *Dispatcher) Hub() *Hub { return d.hub }

// Connect registers c and subscribes it to every conversation its user
// participates in. Registration comes first so a conversation created while
// the membership list is being read still reaches c through SendToUser.
func (d *Dispatcher) Connect(ctx context.Context, c Conn) error {
	if err := d.hub.Register(c); err != nil {
		return err
	}
	ids, err := d.convs.ConversationIDsFor(ctx, c.UserID())
	if err != nil {
		d.hub.Unregister(c)
		return err
	}
	for _, id := range ids {
		d.hub.Join(c, id)
	}
	d.log.Info("connection registered", "conn_id", c.ID(), "user_id", c.UserID(), "rooms", len(ids))
	return nil
}

func (d *Dispatcher) Disconnect(c Conn) {
	d.hub.Unregister(c)
	d.log.Info("connection unregistered", "conn_id", c.ID(), "user_id", c.UserID())
}

func (d *Dispatcher) Join(ctx context.Context, c Conn, convID domain.ConversationID) error {
	if _, err := d.convs.RequireParticipant(ctx, convID, c.UserID()); err != nil {
		return err
	}
	if !d.hub.Join(c, convID) {
		return ErrHubClosed
	}
	return nil
}

func (d *Dispatcher) Leave(c Conn, convID domain.ConversationID) {
	d.hub.Leave(c, convID)
}

func (d *Dispatcher) SendMessage(ctx context.Context, caller domain.UserID, convID domain.ConversationID, in service.SendMessageInput) (*domain.Message, error) {
	unlock := d.locks.lock(convID)
	defer unlock()
	msg, err := d.messages.Send(ctx, caller, convID, in)
	if err != nil {
		return nil, err
	}
	metrics.MessagesStoredTotal.WithLabelValues(string(msg.Type)).Inc()
	metrics.MessagesCiphertextBytes.WithLabelValues(string(msg.Type)).Observe(float64(len(msg.CiphertextB64)))
	d.hub.Broadcast(convID, Event{Type: EventMessage, Data: dto.FromMessage(*msg)})
	return msg, nil
}

func (d *Dispatcher) EditMessage(ctx context.Context, caller domain.UserID, id domain.MessageID, ivB64, ciphertextB64 string) (*domain.Message, error) {
	current, err := d.messages.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	unlock := d.locks.lock(current.ConversationID)
	defer unlock()
	msg, err := d.messages.Edit(ctx, caller, id, ivB64, ciphertextB64)
	if err != nil {
		return nil, err
	}
	d.hub.Broadcast(msg.ConversationID, Event{Type: EventMessageUpdated, Data: dto.FromMessage(*msg)})
	return msg, nil
}

func (d *Dispatcher) DeleteMessage(ctx context.Context, caller domain.UserID, id domain.MessageID) (*domain.Message, error) {
	current, err := d.messages.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	unlock := d.locks.lock(current.ConversationID)
	defer unlock()
	msg, err := d.messages.Delete(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	d.hub.Broadcast(msg.ConversationID, Event{Type: EventMessageDeleted, Data: dto.MessageDeleted{
		ID:             msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
	}})
	return msg, nil
}

// Typing relays an ephemeral indicator to everyone in the room except the
// sender's own connections. Nothing is stored.
func (d *Dispatcher) Typing(ctx context.Context, caller domain.UserID, convID domain.ConversationID, isTyping bool) error {
	if _, err := d.convs.RequireParticipant(ctx, convID, caller); err != nil {
		return err
	}
	d.hub.BroadcastExceptUser(convID, caller, Event{Type: EventTyping, Data: dto.TypingEvent{
		ConversationID: convID.String(),
		UserID:         caller.String(),
		IsTyping:       isTyping,
	}})
	return nil
}

// ConversationCreated subscribes the live connections of every member to a
// new conversation and notifies them.
func (d *Dispatcher) ConversationCreated(conv *domain.Conversation, members []domain.UserID) {
	d.MembersAdded(conv, members)
}

// MembersAdded subscribes the live connections of userIDs to conv and sends
// each of them a conversation_joined event.
func (d *Dispatcher) MembersAdded(conv *domain.Conversation, userIDs []domain.UserID) {
	seen := make(map[domain.UserID]bool, len(userIDs))
	for _, userID := range userIDs {
		if seen[userID] {
			continue
		}
		seen[userID] = true
		if d.hub.JoinUser(userID, conv.ID) == 0 {
			continue
		}
		d.hub.SendToUser(userID, Event{Type: EventConversationJoined, Data: dto.FromConversation(*conv, "")})
	}
}
