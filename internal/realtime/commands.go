package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chatcore/internal/domain"
	"chatcore/internal/dto"
	"chatcore/internal/service"

	"github.com/google/uuid"
)

const (
	CommandJoin        = "join"
	CommandLeave       = "leave"
	CommandSend        = "send"
	CommandEdit        = "edit"
	CommandDelete      = "delete"
	CommandTyping      = "typing"
	CommandCallStart   = "call_start"
	CommandCallRespond = "call_respond"
	CommandPing        = "ping"
)

const (
	CodeValidation = "validation"
	CodeForbidden  = "forbidden"
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
	CodeInternal   = "internal"
)

// ErrorCode maps a service error onto the wire error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return CodeValidation
	case errors.Is(err, domain.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrConflict):
		return CodeConflict
	default:
		return CodeInternal
	}
}

// HandleCommand decodes one client frame, executes it on behalf of c and
// replies with an ack or error carrying the same requestId.
func (d *Dispatcher) HandleCommand(ctx context.Context, c Conn, raw []byte) {
	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.reply(c, "", nil, fmt.Errorf("%w: malformed frame", domain.ErrValidation))
		return
	}
	if env.Type == CommandPing {
		c.Send(Event{Type: EventPong, RequestID: env.RequestID})
		return
	}
	data, err := d.execute(ctx, c, env)
	d.reply(c, env.RequestID, data, err)
}

func (d *Dispatcher) execute(ctx context.Context, c Conn, env dto.Envelope) (any, error) {
	caller := c.UserID()
	switch env.Type {
	case CommandJoin, CommandLeave:
		var cmd dto.ConversationRef
		if err := decode(env.Data, &cmd); err != nil {
			return nil, err
		}
		convID, err := parseID(cmd.ConversationID, "conversationId")
		if err != nil {
			return nil, err
		}
		if env.Type == CommandLeave {
			d.Leave(c, convID)
			return nil, nil
		}
		return nil, d.Join(ctx, c, convID)
	case CommandSend:
		var cmd dto.SendCommand
		if err := decode(env.Data, &cmd); err != nil {
			return nil, err
		}
		convID, err := parseID(cmd.ConversationID, "conversationId")
		if err != nil {
			return nil, err
		}
		msg, err := d.SendMessage(ctx, caller, convID, service.SendMessageInput{
			Type:          domain.MessageType(strings.ToUpper(cmd.Type)),
			IVB64:         cmd.IVB64,
			CiphertextB64: cmd.CiphertextB64,
		})
		if err != nil {
			return nil, err
		}
		return dto.FromMessage(*msg), nil
	case CommandEdit:
		var cmd dto.EditCommand
		if err := decode(env.Data, &cmd); err != nil {
			return nil, err
		}
		id, err := parseID(cmd.MessageID, "messageId")
		if err != nil {
			return nil, err
		}
		msg, err := d.EditMessage(ctx, caller, id, cmd.IVB64, cmd.CiphertextB64)
		if err != nil {
			return nil, err
		}
		return dto.FromMessage(*msg), nil
	case CommandDelete:
		var cmd dto.DeleteCommand
		if err := decode(env.Data, &cmd); err != nil {
			return nil, err
		}
		id, err := parseID(cmd.MessageID, "messageId")
		if err != nil {
			return nil, err
		}
		msg, err := d.DeleteMessage(ctx, caller, id)
		if err != nil {
			return nil, err
		}
		return dto.MessageDeleted{ID: msg.ID.String(), ConversationID: msg.ConversationID.String()}, nil
	case CommandTyping:
		var cmd dto.TypingCommand
		if err := decode(env.Data, &cmd); err != nil {
			return nil, err
		}
		convID, err := parseID(cmd.ConversationID, "conversationId")
		if err != nil {
			return nil, err
		}
		return nil, d.Typing(ctx, caller, convID, cmd.IsTyping)
	case CommandCallStart:
		var cmd dto.CallStartCommand
		if err := decode(env.Data, &cmd); err != nil {
			return nil, err
		}
		convID, err := parseID(cmd.ConversationID, "conversationId")
		if err != nil {
			return nil, err
		}
		callID, err := d.CallStart(ctx, caller, convID, cmd.CallType)
		if err != nil {
			return nil, err
		}
		return dto.CallStarted{CallID: callID}, nil
	case CommandCallRespond:
		var cmd dto.CallRespondCommand
		if err := decode(env.Data, &cmd); err != nil {
			return nil, err
		}
		convID, err := parseID(cmd.ConversationID, "conversationId")
		if err != nil {
			return nil, err
		}
		initiator, err := parseID(cmd.InitiatorID, "initiatorId")
		if err != nil {
			return nil, err
		}
		return nil, d.CallRespond(ctx, caller, cmd.CallID, convID, initiator, cmd.Accepted)
	default:
		return nil, fmt.Errorf("%w: unknown command %q", domain.ErrValidation, env.Type)
	}
}

func (d *Dispatcher) reply(c Conn, requestID string, data any, err error) {
	if err == nil {
		if requestID == "" && data == nil {
			return
		}
		if data == nil {
			data = struct{}{}
		}
		c.Send(Event{Type: EventAck, RequestID: requestID, Data: data})
		return
	}
	code := ErrorCode(err)
	msg := err.Error()
	if code == CodeInternal {
		d.log.Error("realtime command failed", "conn_id", c.ID(), "user_id", c.UserID(), "request_id", requestID, "error", err)
		msg = "internal error"
	}
	c.Send(Event{Type: EventError, RequestID: requestID, Data: dto.ErrorBody{Code: code, Message: msg}})
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: data is required", domain.ErrValidation)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: invalid data: %v", domain.ErrValidation, err)
	}
	return nil
}

func parseID(value, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a uuid", domain.ErrValidation, field)
	}
	return id, nil
}
