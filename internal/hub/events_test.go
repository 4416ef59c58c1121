package hub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-dirigera/internal/infrastructure/config"
)

// eventServer upgrades every request and writes the given messages, then
// holds the connection open until the client goes away.
type eventServer struct {
	messages    []string
	connections atomic.Int32
	authFailed  atomic.Bool
}

func (s *eventServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		s.authFailed.Store(true)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// The first connection is dropped straight away to exercise reconnects.
	if s.connections.Add(1) == 1 {
		return
	}
	for _, m := range s.messages {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
			return
		}
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type collectingHandler struct {
	mu     sync.Mutex
	events []Event
	got    chan struct{}
	want   int
}

func (h *collectingHandler) HandleEvent(_ context.Context, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	if len(h.events) == h.want {
		close(h.got)
	}
}

func TestEventListener_ReconnectsAndDelivers(t *testing.T) {
	server := &eventServer{messages: []string{
		`{"id":"e1","time":"2026-03-01T12:00:00.000Z","type":"deviceStateChanged","data":{"id":"l1","deviceType":"light","isReachable":true,"attributes":{"isOn":true}}}`,
		`not json`,
		`{"id":"e2","type":"sceneUpdated","data":{"id":"s1"}}`,
	}}
	srv := httptest.NewServer(server)
	defer srv.Close()

	c, err := NewClient(ClientOptions{Config: config.HubConfig{Token: testToken}, BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	listener := c.NewEventListener(config.HubEventsConfig{Enabled: true, ReconnectDelay: 1, MaxReconnectDelay: 2})
	listener.minDelay = 10 * time.Millisecond

	handler := &collectingHandler{got: make(chan struct{}), want: 2}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx, handler) }()

	select {
	case <-handler.got:
	case <-time.After(5 * time.Second):
		t.Fatal("events not delivered")
	}
	if !listener.Connected() {
		t.Error("Connected() = false while streaming")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if server.connections.Load() < 2 {
		t.Errorf("connections = %d, want a reconnect", server.connections.Load())
	}
	if listener.Received() != 2 {
		t.Errorf("Received() = %d, want 2 (malformed message skipped)", listener.Received())
	}

	ev := handler.events[0]
	if !ev.IsDeviceEvent() || ev.Type != EventDeviceStateChanged || ev.Data.ID != "l1" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Data.IsReachable == nil || !*ev.Data.IsReachable || ev.Data.Attributes["isOn"] != true {
		t.Errorf("event data = %+v", ev.Data)
	}
	if handler.events[1].IsDeviceEvent() {
		t.Error("scene event reported as device event")
	}
}

// silentServer upgrades and then never reads, so pings go unanswered.
type silentServer struct {
	connections atomic.Int32
	release     chan struct{}
}

func (s *silentServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.connections.Add(1)
	<-s.release
}

func TestEventListener_ReconnectsWhenHubGoesSilent(t *testing.T) {
	server := &silentServer{release: make(chan struct{})}
	srv := httptest.NewServer(server)
	defer srv.Close()
	defer close(server.release)

	c, err := NewClient(ClientOptions{Config: config.HubConfig{Token: testToken}, BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	listener := c.NewEventListener(config.HubEventsConfig{ReconnectDelay: 1, MaxReconnectDelay: 1})
	listener.minDelay = 10 * time.Millisecond
	listener.maxDelay = 10 * time.Millisecond
	listener.pingInterval = 50 * time.Millisecond
	listener.pongWait = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx, EventHandlerFunc(func(context.Context, Event) {})) }()

	deadline := time.Now().Add(5 * time.Second)
	for server.connections.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := server.connections.Load(); n < 2 {
		t.Errorf("connections = %d, want a reconnect after missed pongs", n)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestEventListener_BadToken(t *testing.T) {
	server := &eventServer{}
	srv := httptest.NewServer(server)
	defer srv.Close()

	c, err := NewClient(ClientOptions{Config: config.HubConfig{Token: "wrong"}, BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	listener := c.NewEventListener(config.HubEventsConfig{ReconnectDelay: 1, MaxReconnectDelay: 1})

	err = listener.listen(context.Background(), EventHandlerFunc(func(context.Context, Event) {}))
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("listen() error = %v, want ErrUnauthorized", err)
	}
	if !server.authFailed.Load() {
		t.Error("server never saw the request")
	}
}

func TestNewEventListener_Delays(t *testing.T) {
	c, err := NewClient(ClientOptions{Config: config.HubConfig{Host: "hub", Port: 8443, APIVersion: "v1", Token: "t"}})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	l := c.NewEventListener(config.HubEventsConfig{ReconnectDelay: 0, MaxReconnectDelay: 0})
	if l.minDelay != time.Second || l.maxDelay != time.Second {
		t.Errorf("delays = %v/%v, want 1s/1s", l.minDelay, l.maxDelay)
	}
	if l.url != "wss://hub:8443/v1" {
		t.Errorf("url = %q", l.url)
	}
}
