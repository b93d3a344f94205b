package http

import (
	"net/http"
	"time"

	"chatcore/internal/authz"
	obsmw "chatcore/internal/observability/middleware"
	"chatcore/internal/realtime"
	"chatcore/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	CORSOrigins        []string
	RateLimitPerMinute int
	RequestTimeout     time.Duration
	WS                 WSConfig
}

type Deps struct {
	Devices    service.DeviceKeyService
	Convs      service.ConversationService
	Messages   service.MessageService
	RoomKeys   service.RoomKeyService
	Dispatcher *realtime.Dispatcher
	Validator  authz.Validator
}

type Handler struct {
	devices    service.DeviceKeyService
	convs      service.ConversationService
	messages   service.MessageService
	roomKeys   service.RoomKeyService
	dispatcher *realtime.Dispatcher
	ws         wsServer
}

func NewRouter(deps Deps, opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	h := &Handler{
		devices:    deps.Devices,
		convs:      deps.Convs,
		messages:   deps.Messages,
		roomKeys:   deps.RoomKeys,
		dispatcher: deps.Dispatcher,
		ws:         newWSServer(opts.WS, opts.CORSOrigins),
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(obsmw.WithRequestAndTrace)
	r.Use(obsmw.WithMetrics)
	if opts.RateLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(opts.RateLimitPerMinute, time.Minute))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   originsIfSet(opts.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID", "X-Trace-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Trace-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(authz.Middleware(deps.Validator))

		// websocket connections outlive the request timeout
		r.Get("/ws", h.serveWS)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(opts.RequestTimeout))

			r.Post("/devices/keys", h.registerDeviceKey)
			r.Get("/devices/keys", h.listMyDeviceKeys)
			r.Get("/users/{userId}/device-keys", h.listUserDeviceKeys)

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", h.listConversations)
				r.Post("/direct", h.createDirect)
				r.Post("/group", h.createGroup)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.getConversation)
					r.Get("/participants", h.listParticipants)
					r.Post("/members", h.addMembers)
					r.Put("/members/{userId}/role", h.setRole)
					r.Post("/read", h.markRead)
					r.Get("/unread", h.unreadCount)
					r.Get("/messages", h.listMessages)
					r.Post("/messages", h.sendMessage)
					r.Post("/room-keys", h.distributeRoomKeys)
					r.Get("/room-keys/mine", h.myRoomKeys)
				})
			})

			r.Route("/messages/{id}", func(r chi.Router) {
				r.Get("/", h.getMessage)
				r.Patch("/", h.editMessage)
				r.Delete("/", h.deleteMessage)
			})
		})
	})
	return r
}

func originsIfSet(in []string) []string {
	if len(in) == 0 {
		return []string{"*"}
	}
	return in
}
