package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatcore/internal/domain"
	"chatcore/internal/dto"

	"github.com/google/uuid"
)

const (
	CallAudio = "audio"
	CallVideo = "video"
)

// CallStart announces a call to every other participant of convID and
// returns the server-generated call id. No call state is kept.
func (d *Dispatcher) CallStart(ctx context.Context, caller domain.UserID, convID domain.ConversationID, callType string) (string, error) {
	callType = strings.ToLower(strings.TrimSpace(callType))
	if callType != CallAudio && callType != CallVideo {
		return "", fmt.Errorf("%w: callType must be audio or video", domain.ErrValidation)
	}
	participants, err := d.convs.ListParticipants(ctx, caller, convID)
	if err != nil {
		return "", err
	}
	callID := uuid.NewString()
	ev := Event{Type: EventCallIncoming, Data: dto.CallIncomingEvent{
		CallID:         callID,
		ConversationID: convID.String(),
		CallType:       callType,
		FromUserID:     caller.String(),
	}}
	reached := 0
	for _, p := range participants {
		if p.UserID == caller {
			continue
		}
		reached += d.hub.SendToUser(p.UserID, ev)
	}
	d.log.Info("call started", "call_id", callID, "conversation_id", convID, "call_type", callType, "from_user_id", caller, "connections", reached)
	return callID, nil
}

// CallRespond relays an accept or decline to every connection of the
// initiator. Both caller and initiator must be participants of convID.
func (d *Dispatcher) CallRespond(ctx context.Context, caller domain.UserID, callID string, convID domain.ConversationID, initiatorID domain.UserID, accepted bool) error {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return fmt.Errorf("%w: callId is required", domain.ErrValidation)
	}
	if _, err := d.convs.RequireParticipant(ctx, convID, caller); err != nil {
		return err
	}
	if _, err := d.convs.RequireParticipant(ctx, convID, initiatorID); err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			return fmt.Errorf("%w: initiator is not a participant", domain.ErrValidation)
		}
		return err
	}
	d.hub.SendToUser(initiatorID, Event{Type: EventCallResponse, Data: dto.CallResponseEvent{
		CallID:         callID,
		ConversationID: convID.String(),
		FromUserID:     caller.String(),
		Accepted:       accepted,
	}})
	return nil
}
