package http

import (
	"log/slog"
	"net/http"

	"chatcore/internal/dto"
	"chatcore/internal/observability/metrics"
	obsmw "chatcore/internal/observability/middleware"
	"chatcore/internal/service"
)

func (h *Handler) distributeRoomKeys(w http.ResponseWriter, r *http.Request) {
	convID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req dto.DistributeRoomKeysRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	items := make([]service.WrappedKeyItem, 0, len(req.Items))
	for _, it := range req.Items {
		deviceKeyID, err := parseUUID(it.DeviceKeyID, "deviceKeyId")
		if err != nil {
			writeError(w, r, err)
			return
		}
		userID, err := parseUUID(it.UserID, "userId")
		if err != nil {
			writeError(w, r, err)
			return
		}
		items = append(items, service.WrappedKeyItem{
			DeviceKeyID:     deviceKeyID,
			UserID:          userID,
			EncryptedKeyB64: it.EncryptedKeyB64,
			IVB64:           it.IVB64,
		})
	}
	written, err := h.roomKeys.Distribute(r.Context(), caller(r), convID, items)
	if err != nil {
		metrics.RoomKeysDistributedTotal.WithLabelValues("failure").Add(float64(len(items)))
		writeError(w, r, err)
		return
	}
	metrics.RoomKeysDistributedTotal.WithLabelValues("success").Add(float64(written))
	slog.Info("room keys distributed",
		"conversation_id", convID,
		"written", written,
		"request_id", obsmw.RequestIDFromContext(r.Context()),
		"trace_id", obsmw.TraceIDFromContext(r.Context()),
	)
	writeJSON(w, http.StatusOK, dto.DistributeRoomKeysResponse{Written: written})
}

func (h *Handler) myRoomKeys(w http.ResponseWriter, r *http.Request) {
	convID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	keys, err := h.roomKeys.MyWrappedKeys(r.Context(), caller(r), convID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromWrappedRoomKeys(keys))
}
