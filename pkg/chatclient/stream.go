package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chatcore/internal/dto"

	"github.com/gorilla/websocket"
)

const streamWriteTimeout = 10 * time.Second

var ErrStreamClosed = errors.New("chatclient: stream closed")

// Stream is a websocket session with the relay. Server frames arrive on
// Events until the connection ends; Events must be drained or reads stall.
type Stream struct {
	ws     *websocket.Conn
	events chan dto.Envelope
	done   chan struct{}

	writeMu sync.Mutex
	seq     atomic.Uint64
	once    sync.Once
	err     error
}

// Dial opens the relay websocket at baseURL authenticated with token.
func Dial(ctx context.Context, baseURL, token string) (*Stream, error) {
	u, err := url.Parse(normalizeBaseURL(baseURL) + "/v1/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+strings.TrimSpace(token))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}
	s := &Stream{
		ws:     ws,
		events: make(chan dto.Envelope, 64),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *Stream) Events() <-chan dto.Envelope { return s.events }

// Err reports why the stream ended, once Events is closed.
func (s *Stream) Err() error { return s.err }

// Command sends one client command and returns the request id the relay
// will echo on its ack or error.
func (s *Stream) Command(typ string, data any) (string, error) {
	select {
	case <-s.done:
		return "", ErrStreamClosed
	default:
	}
	env := dto.Envelope{Type: typ, RequestID: "c" + strconv.FormatUint(s.seq.Add(1), 10)}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return "", err
		}
		env.Data = raw
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := s.ws.WriteJSON(env); err != nil {
		return "", err
	}
	return env.RequestID, nil
}

// Await reads events until one of type typ (or an error correlated with
// requestID) arrives. Other events are dropped.
func (s *Stream) Await(ctx context.Context, typ, requestID string) (dto.Envelope, error) {
	for {
		select {
		case <-ctx.Done():
			return dto.Envelope{}, ctx.Err()
		case env, ok := <-s.events:
			if !ok {
				return dto.Envelope{}, ErrStreamClosed
			}
			if requestID != "" && env.RequestID == requestID && env.Type == "error" {
				var eb dto.ErrorBody
				_ = json.Unmarshal(env.Data, &eb)
				return env, errors.New("chatclient: " + eb.Code + ": " + eb.Message)
			}
			if env.Type == typ && (requestID == "" || env.RequestID == requestID) {
				return env, nil
			}
		}
	}
}

func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		s.writeMu.Lock()
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(streamWriteTimeout))
		s.writeMu.Unlock()
		err = s.ws.Close()
	})
	return err
}

func (s *Stream) readLoop() {
	defer close(s.events)
	defer close(s.done)
	for {
		var env dto.Envelope
		if err := s.ws.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.err = err
			}
			return
		}
		s.events <- env
	}
}
