package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-dirigera/internal/infrastructure/config"
)

// Event types the bridge acts on.
const (
	EventDeviceStateChanged         = "deviceStateChanged"
	EventDeviceAdded                = "deviceAdded"
	EventDeviceRemoved              = "deviceRemoved"
	EventDeviceConfigurationChanged = "deviceConfigurationChanged"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultPongWait     = 10 * time.Second
	writeWait           = 10 * time.Second
	handshakeTimeout    = 15 * time.Second
)

// Event is one message from the hub's event stream.
type Event struct {
	ID   string    `json:"id"`
	Time time.Time `json:"time"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData is the device part of a device event.
type EventData struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	DeviceType  string         `json:"deviceType"`
	IsReachable *bool          `json:"isReachable,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// IsDeviceEvent reports whether the event concerns a device.
func (e Event) IsDeviceEvent() bool {
	return strings.HasPrefix(e.Type, "device") && e.Data.ID != ""
}

// EventHandler consumes events. HandleEvent is called from the listener's
// read loop and should not block.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev Event)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, ev Event)

// HandleEvent implements EventHandler.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// EventListener reads the hub's event websocket and reconnects with capped
// exponential backoff.
type EventListener struct {
	url          string
	token        string
	dialer       *websocket.Dialer
	minDelay     time.Duration
	maxDelay     time.Duration
	pingInterval time.Duration
	pongWait     time.Duration
	logger       Logger

	connected atomic.Bool
	received  atomic.Uint64
}

// NewEventListener builds a listener for this client's hub.
func (c *Client) NewEventListener(cfg config.HubEventsConfig) *EventListener {
	minDelay := time.Duration(cfg.ReconnectDelay) * time.Second
	if minDelay <= 0 {
		minDelay = time.Second
	}
	maxDelay := time.Duration(cfg.MaxReconnectDelay) * time.Second
	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	return &EventListener{
		url:   c.EventURL(),
		token: c.token,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			TLSClientConfig:  c.tls,
		},
		minDelay:     minDelay,
		maxDelay:     maxDelay,
		pingInterval: defaultPingInterval,
		pongWait:     defaultPongWait,
		logger:       c.logger,
	}
}

// Connected reports whether the websocket is currently open.
func (l *EventListener) Connected() bool { return l.connected.Load() }

// Received returns the number of events delivered since start.
func (l *EventListener) Received() uint64 { return l.received.Load() }

// Run delivers events to handler until ctx is cancelled. It always
// returns ctx.Err().
func (l *EventListener) Run(ctx context.Context, handler EventHandler) error {
	delay := l.minDelay
	for {
		start := time.Now()
		err := l.listen(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A connection that stayed up a while earns a fresh backoff.
		if time.Since(start) > l.maxDelay {
			delay = l.minDelay
		}
		l.logger.Warn("hub event stream disconnected", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, l.maxDelay)
	}
}

// listen runs one connection until it fails or ctx ends.
func (l *EventListener) listen(ctx context.Context, handler EventHandler) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+l.token)

	conn, resp, err := l.dialer.DialContext(ctx, l.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: event stream rejected token", ErrUnauthorized)
		}
		return fmt.Errorf("%w: dialing event stream: %w", ErrRequestFailed, err)
	}

	l.connected.Store(true)
	l.logger.Info("hub event stream connected", "url", l.url)
	defer l.connected.Store(false)

	// A hub that stops answering pings fails the read once the deadline
	// passes, which ends this connection and triggers a reconnect.
	readWait := l.pingInterval + l.pongWait
	//nolint:errcheck // deadline on a fresh connection cannot fail
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(ctx, conn, done)
	}()
	defer func() {
		close(done)
		wg.Wait()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("event stream closed unexpectedly: %w", err)
			}
			return err
		}

		//nolint:errcheck // best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(readWait))

		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil {
			l.logger.Warn("ignoring malformed hub event", "error", err)
			continue
		}
		l.received.Add(1)
		handler.HandleEvent(ctx, ev)
	}
}

// keepAlive pings the hub and closes the connection when ctx ends, which
// unblocks ReadMessage.
func (l *EventListener) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(l.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage, //nolint:errcheck // best-effort close frame
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					l.logger.Debug("hub ping failed", "error", err)
				}
				conn.Close()
				return
			}
		}
	}
}
