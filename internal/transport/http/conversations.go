package http

import (
	"net/http"

	"chatcore/internal/domain"
	"chatcore/internal/dto"
)

func (h *Handler) createDirect(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateDirectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	other, err := parseUUID(req.OtherUserID, "otherUserId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	me := caller(r)
	conv, created, err := h.convs.GetOrCreateDirect(r.Context(), me, other)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if created {
		h.dispatcher.ConversationCreated(conv, []domain.UserID{me, other})
	}
	writeJSON(w, http.StatusOK, dto.FromConversation(*conv, domain.RoleMember))
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateGroupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	members, err := parseUUIDs(req.MemberIDs, "memberIds")
	if err != nil {
		writeError(w, r, err)
		return
	}
	me := caller(r)
	conv, err := h.convs.CreateGroup(r.Context(), me, req.Name, members)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.dispatcher.ConversationCreated(conv, append([]domain.UserID{me}, members...))
	writeJSON(w, http.StatusCreated, dto.FromConversation(*conv, domain.RoleOwner))
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	list, err := h.convs.ListMine(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromSummaries(list))
}

func (h *Handler) getConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.convs.Get(r.Context(), caller(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromConversation(view.Conversation, view.Role))
}

func (h *Handler) listParticipants(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	parts, err := h.convs.ListParticipants(r.Context(), caller(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromParticipants(parts))
}

func (h *Handler) addMembers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req dto.AddMembersRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userIDs, err := parseUUIDs(req.UserIDs, "userIds")
	if err != nil {
		writeError(w, r, err)
		return
	}
	me := caller(r)
	added, err := h.convs.AddMembers(r.Context(), me, id, userIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(added) > 0 {
		if view, err := h.convs.Get(r.Context(), me, id); err == nil {
			h.dispatcher.MembersAdded(&view.Conversation, added)
		}
	}
	resp := dto.AddMembersResponse{Added: make([]string, 0, len(added))}
	for _, uid := range added {
		resp.Added = append(resp.Added, uid.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	target, err := pathID(r, "userId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req dto.SetRoleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.convs.SetRole(r.Context(), caller(r), id, target, domain.Role(req.Role)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.convs.MarkRead(r.Context(), caller(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.convs.UnreadCount(r.Context(), caller(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.UnreadCountResponse{UnreadCount: n})
}
