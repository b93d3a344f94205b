package impl

import (
	"context"
	"errors"

	"chatcore/internal/domain"
	"chatcore/internal/store"
)

// membership loads a conversation together with the caller's participant row.
// A missing conversation is NotFound; a non-participant is Forbidden.
func membership(ctx context.Context, st *store.Store, convID domain.ConversationID, userID domain.UserID) (*domain.Conversation, *domain.Participant, error) {
	conv, err := st.Conversations().Get(ctx, convID)
	if err != nil {
		return nil, nil, translateStoreErr(err, "conversation")
	}
	part, err := st.Participants().Get(ctx, convID, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, nil, forbiddenf("not a participant")
		}
		return nil, nil, err
	}
	return conv, part, nil
}
