package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"chatcore/internal/domain"
	"chatcore/internal/realtime"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const maxFrameBytes = 512 << 10

type WSConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PongWait     time.Duration
}

func (c WSConfig) withDefaults() WSConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	return c
}

type wsServer struct {
	cfg      WSConfig
	upgrader websocket.Upgrader
}

func newWSServer(cfg WSConfig, origins []string) wsServer {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return wsServer{
		cfg: cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
			},
		},
	}
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	userID := caller(r)
	ws, err := h.ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}
	c := newWSConn(ws, userID, h.ws.cfg)
	ctx := r.Context()
	if err := h.dispatcher.Connect(ctx, c); err != nil {
		slog.Error("websocket connect failed", "user_id", userID, "error", err)
		_ = c.Close()
		return
	}
	defer func() {
		h.dispatcher.Disconnect(c)
		_ = c.Close()
	}()

	go c.writePump()
	c.readLoop(ctx, h.dispatcher)
}

// wsConn adapts a gorilla connection to realtime.Conn. Writes happen only on
// the write pump goroutine; Send never blocks.
type wsConn struct {
	id     string
	userID domain.UserID
	ws     *websocket.Conn
	cfg    WSConfig

	send      chan realtime.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, userID domain.UserID, cfg WSConfig) *wsConn {
	return &wsConn{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		cfg:    cfg,
		send:   make(chan realtime.Event, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *wsConn) ID() string            { return c.id }
func (c *wsConn) UserID() domain.UserID { return c.userID }

func (c *wsConn) Send(ev realtime.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.cfg.WriteTimeout)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) readLoop(ctx context.Context, d *realtime.Dispatcher) {
	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "conn_id", c.id, "user_id", c.userID, "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		d.HandleCommand(ctx, c, data)
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.cfg.PongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteJSON(ev); err != nil {
				slog.Warn("websocket write failed", "conn_id", c.id, "user_id", c.userID, "error", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
