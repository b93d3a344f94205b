package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chatcore/internal/domain"
	"chatcore/internal/dto"
	"chatcore/internal/observability/metrics"
	"chatcore/internal/service"
)

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	convID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req dto.SendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.dispatcher.SendMessage(r.Context(), caller(r), convID, service.SendMessageInput{
		Type:          domain.MessageType(strings.ToUpper(req.Type)),
		IVB64:         req.IVB64,
		CiphertextB64: req.CiphertextB64,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.FromMessage(*msg))
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	convID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	var before *time.Time
	if raw := q.Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: before must be an RFC 3339 timestamp", domain.ErrValidation))
			return
		}
		t = t.UTC()
		before = &t
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: limit must be an integer", domain.ErrValidation))
			return
		}
	}
	msgs, err := h.messages.List(r.Context(), caller(r), convID, before, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	metrics.MessageHistoryFetchedTotal.Inc()
	writeJSON(w, http.StatusOK, dto.FromMessages(msgs))
}

func (h *Handler) getMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.messages.Get(r.Context(), caller(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromMessage(*msg))
}

func (h *Handler) editMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req dto.EditMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.dispatcher.EditMessage(r.Context(), caller(r), id, req.IVB64, req.CiphertextB64)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromMessage(*msg))
}

func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.dispatcher.DeleteMessage(r.Context(), caller(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
