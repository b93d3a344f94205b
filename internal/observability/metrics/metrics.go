package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AuthenticationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_auth_attempts_total",
			Help: "Bearer token validations by method and result.",
		},
		[]string{"method", "result"},
	)

	DeviceKeysRegisteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_device_keys_registered_total",
			Help: "Device key registrations by result.",
		},
		[]string{"result"},
	)

	RoomKeysDistributedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_room_keys_distributed_total",
			Help: "Wrapped room key rows written, by result.",
		},
		[]string{"result"},
	)

	MessagesStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_stored_total",
			Help: "Total number of stored messages.",
		},
		[]string{"type"},
	)

	MessagesCiphertextBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_messages_ciphertext_bytes",
			Help:    "Base64 ciphertext sizes for stored messages.",
			Buckets: prometheus.ExponentialBuckets(64, 2, 12),
		},
		[]string{"type"},
	)

	MessageHistoryFetchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_message_history_fetched_total",
			Help: "Total number of history page fetches.",
		},
	)

	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_realtime_connections",
			Help: "Currently registered realtime connections.",
		},
	)

	RealtimeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_realtime_events_total",
			Help: "Events queued to realtime connections, by event type.",
		},
		[]string{"type"},
	)

	RealtimeDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_realtime_dropped_total",
			Help: "Events dropped because a connection buffer was full, by event type.",
		},
		[]string{"type"},
	)
)

// MustRegister registers every collector on the default registry with a
// constant service label.
func MustRegister(serviceName string) {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		AuthenticationAttemptsTotal,
		DeviceKeysRegisteredTotal,
		RoomKeysDistributedTotal,
		MessagesStoredTotal,
		MessagesCiphertextBytes,
		MessageHistoryFetchedTotal,
		RealtimeConnections,
		RealtimeEventsTotal,
		RealtimeDroppedTotal,
	)
}
