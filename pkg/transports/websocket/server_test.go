package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/harunnryd/clinirelay/pkg/hub"
	"github.com/harunnryd/clinirelay/pkg/transports"
)

type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, raw []byte) []byte {
	return append([]byte("ack:"), raw...)
}

func dial(t *testing.T, srv *httptest.Server, path string, header http.Header) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	c, _, err := gws.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestHandlerRepliesToSender(t *testing.T) {
	h := hub.New("voice", hub.Config{})
	s := NewServer(Config{}, h, echoHandler{}, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	c := dial(t, srv, "/ws", nil)
	defer c.Close()
	if err := c.WriteMessage(gws.TextMessage, []byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != "ack:hi" {
		t.Fatalf("unexpected reply %q", msg)
	}
}

func TestBroadcastReachesSubscriberAndDisconnectCleansUp(t *testing.T) {
	h := hub.New("transcribed", hub.Config{})
	s := NewServer(Config{}, h, nil, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	c := dial(t, srv, "/ws", nil)
	waitFor(t, func() bool { return h.Len() == 1 })

	if _, err := h.Broadcast(context.Background(), []byte("heartbeat")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != "heartbeat" {
		t.Fatalf("unexpected message %q", msg)
	}

	_ = c.Close()
	waitFor(t, func() bool { return h.Len() == 0 })
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer(Config{}, hub.New("diagnosis", hub.Config{}), nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestOriginAllowlist(t *testing.T) {
	cfg := Config{AllowedOrigins: []string{"https://clinic.example.com", "localhost:3000"}}.withDefaults()
	cases := map[string]bool{
		"":                            true,
		"https://clinic.example.com/": true,
		"http://clinic.example.com":   false,
		"http://localhost:3000":       true,
		"https://evil.example.com":    false,
	}
	for origin, want := range cases {
		if got := originAllowed(cfg, origin); got != want {
			t.Fatalf("origin %q: expected %v, got %v", origin, want, got)
		}
	}
	if !originAllowed(Config{}.withDefaults(), "https://anything") {
		t.Fatalf("empty allowlist should allow any origin")
	}
}

func TestRejectedOriginCannotSubscribe(t *testing.T) {
	h := hub.New("diagnosis", hub.Config{})
	s := NewServer(Config{AllowedOrigins: []string{"https://clinic.example.com"}}, h, nil, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := gws.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example.com"}})
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 response, got %+v", resp)
	}
	if h.Len() != 0 {
		t.Fatalf("rejected client must not be registered")
	}
}

func TestStartReportsBindFailure(t *testing.T) {
	first := NewServer(Config{Addr: "127.0.0.1:0"}, hub.New("voice", hub.Config{}), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer first.Stop(context.Background())

	second := NewServer(Config{Addr: first.Addr()}, hub.New("voice", hub.Config{}), nil, nil)
	if err := second.Start(ctx); err == nil {
		t.Fatalf("expected bind error on busy port")
	}
}

func TestTerminalSendFailureReleasesSocket(t *testing.T) {
	accepted := make(chan *gws.Conn, 1)
	upgrader := gws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- ws
	}))
	defer srv.Close()

	client := dial(t, srv, "/", nil)
	defer client.Close()
	var ws *gws.Conn
	select {
	case ws = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatalf("server side never accepted")
	}

	// a write deadline in the past makes every send fail
	conn := newConn(ws, -time.Second)
	h := hub.New("transcribed", hub.Config{})
	h.Connect(conn)
	rep, err := h.Broadcast(context.Background(), []byte("x"))
	if !errors.Is(err, hub.ErrAllSendsFailed) || len(rep.Removed) != 1 {
		t.Fatalf("expected terminal removal, report=%+v err=%v", rep, err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = client.ReadMessage()
	var ne net.Error
	if err == nil || (errors.As(err, &ne) && ne.Timeout()) {
		t.Fatalf("expected the server to close the socket, got %v", err)
	}
	if conn.Close() != conn.Close() {
		t.Fatalf("repeated Close must return the first result")
	}
}

func TestSilentSubscriberIsDropped(t *testing.T) {
	h := hub.New("diagnosis", hub.Config{})
	s := NewServer(Config{PongWait: 200 * time.Millisecond}, h, nil, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	// never reads, so pings go unanswered
	c := dial(t, srv, "/ws", nil)
	defer c.Close()
	waitFor(t, func() bool { return h.Len() == 1 })
	waitFor(t, func() bool { return h.Len() == 0 })
}

func TestReadingSubscriberStaysConnected(t *testing.T) {
	h := hub.New("diagnosis", hub.Config{})
	s := NewServer(Config{PongWait: 200 * time.Millisecond}, h, nil, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	c := dial(t, srv, "/ws", nil)
	defer c.Close()
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()
	waitFor(t, func() bool { return h.Len() == 1 })
	time.Sleep(600 * time.Millisecond)
	if h.Len() != 1 {
		t.Fatalf("subscriber answering pings was dropped")
	}
}

var _ transports.Transport = (*Server)(nil)
