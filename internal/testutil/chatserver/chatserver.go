// Package chatserver runs the full relay router over httptest for
// end-to-end tests.
package chatserver

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatcore/internal/authz"
	"chatcore/internal/domain"
	"chatcore/internal/realtime"
	"chatcore/internal/service/impl"
	"chatcore/internal/store"
	"chatcore/internal/testutil"
	transport "chatcore/internal/transport/http"
)

const secret = "test-secret"

type Server struct {
	URL    string
	Store  *store.Store
	Hub    *realtime.Hub
	signer *authz.Signer
}

func Start(t *testing.T) *Server {
	t.Helper()
	st := testutil.OpenStore(t)
	clock := testutil.NewClock()

	convs := impl.NewConversationServiceImpl(st).WithClock(clock.Now)
	msgs := impl.NewMessageServiceImpl(st, impl.DefaultHistoryMax).WithClock(clock.Now)
	hub := realtime.NewHub()

	router := transport.NewRouter(transport.Deps{
		Devices:    impl.NewDeviceKeyServiceImpl(st).WithClock(clock.Now),
		Convs:      convs,
		Messages:   msgs,
		RoomKeys:   impl.NewRoomKeyServiceImpl(st).WithClock(clock.Now),
		Dispatcher: realtime.NewDispatcher(hub, convs, msgs),
		Validator:  authz.NewHMACValidator(secret, ""),
	}, transport.Options{
		WS: transport.WSConfig{SendBuffer: 32, WriteTimeout: 5 * time.Second, PongWait: 30 * time.Second},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	signer, err := authz.NewSigner(secret, "")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return &Server{URL: srv.URL, Store: st, Hub: hub, signer: signer}
}

// Token mints a bearer token for userID.
func (s *Server) Token(t *testing.T, userID domain.UserID) string {
	t.Helper()
	tok, err := s.signer.Issue(userID, time.Hour, nil)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

// WebsocketURL returns the ws:// endpoint authenticated as userID.
func (s *Server) WebsocketURL(t *testing.T, userID domain.UserID) string {
	t.Helper()
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/v1/ws?access_token=" + s.Token(t, userID)
}
