package http

import (
	"log/slog"
	"net/http"

	"chatcore/internal/dto"
	"chatcore/internal/observability/metrics"
	obsmw "chatcore/internal/observability/middleware"
)

func (h *Handler) registerDeviceKey(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterDeviceKeyRequest
	if err := decodeBody(r, &req); err != nil {
		metrics.DeviceKeysRegisteredTotal.WithLabelValues("failure").Inc()
		writeError(w, r, err)
		return
	}
	key, err := h.devices.RegisterOrUpdate(r.Context(), caller(r), req.DeviceID, req.PublicKey)
	if err != nil {
		metrics.DeviceKeysRegisteredTotal.WithLabelValues("failure").Inc()
		writeError(w, r, err)
		return
	}
	metrics.DeviceKeysRegisteredTotal.WithLabelValues("success").Inc()
	slog.Info("device key registered",
		"device_key_id", key.ID,
		"user_id", key.UserID,
		"device_id", key.DeviceID,
		"request_id", obsmw.RequestIDFromContext(r.Context()),
		"trace_id", obsmw.TraceIDFromContext(r.Context()),
	)
	writeJSON(w, http.StatusOK, dto.FromDeviceKey(*key))
}

func (h *Handler) listMyDeviceKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.devices.ListForUser(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromDeviceKeys(keys))
}

func (h *Handler) listUserDeviceKeys(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	keys, err := h.devices.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromDeviceKeys(keys))
}
