package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-adapters/internal/device"
)

// WebSocket message types.
const (
	msgAuthRequired    = "auth_required"
	msgAuth            = "auth"
	msgAuthOK          = "auth_ok"
	msgAuthInvalid     = "auth_invalid"
	msgResult          = "result"
	msgEvent           = "event"
	msgPong            = "pong"
	msgSubscribeEvents = "subscribe_events"
	msgCallService     = "call_service"
	msgAreaRegistry    = "config/area_registry/list"
	msgEntityRegistry  = "config/entity_registry/list"
	msgDeviceRegistry  = "config/device_registry/list"

	eventStateChanged = "state_changed"

	websocketPath = "/api/websocket"
	writeWait     = 10 * time.Second
)

// ErrSocketClosed fails requests still pending when the socket goes away.
var ErrSocketClosed = errors.New("hub: websocket closed")

// wsMessage is the envelope of every frame in both directions.
type wsMessage struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success bool            `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
	Event   *wsEvent        `json:"event,omitempty"`
	Message string          `json:"message,omitempty"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wsEvent struct {
	EventType string `json:"event_type"`
	Data      struct {
		EntityID string       `json:"entity_id"`
		NewState *entityState `json:"new_state"`
	} `json:"data"`
}

// wsClient is one authenticated hub socket. Requests are correlated by a
// locally incrementing id; the read loop routes results to their waiters and
// events to onEvent.
type wsClient struct {
	conn    *websocket.Conn
	timeout time.Duration
	onEvent func(wsEvent)
	onClose func(error)

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan wsMessage
	closing bool
	done    chan struct{}
}

// websocketURL derives ws(s)://host/api/websocket from the REST base URL.
func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + websocketPath
	return u.String(), nil
}

// dialWebSocket connects and authenticates. Nothing is sent until the hub
// asks for auth. auth_invalid fails with KindConfiguration.
func dialWebSocket(ctx context.Context, dialer *websocket.Dialer, baseURL, token string, timeout time.Duration,
	onEvent func(wsEvent), onClose func(error)) (*wsClient, error) {
	const op = "hub.websocket"

	wsURL, err := websocketURL(baseURL)
	if err != nil {
		return nil, device.NewError(device.KindConfiguration, op, err)
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dctx, wsURL, nil)
	if err != nil {
		return nil, device.NewError(device.KindNetwork, op, fmt.Errorf("dialing %s: %w", wsURL, err))
	}
	if err := authenticate(dctx, conn, token); err != nil {
		conn.Close()
		return nil, err
	}

	c := &wsClient{
		conn:    conn,
		timeout: timeout,
		onEvent: onEvent,
		onClose: onClose,
		pending: make(map[int64]chan wsMessage),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func authenticate(ctx context.Context, conn *websocket.Conn, token string) error {
	const op = "hub.auth"
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
		_ = conn.SetWriteDeadline(dl)
		defer func() {
			_ = conn.SetReadDeadline(time.Time{})
			_ = conn.SetWriteDeadline(time.Time{})
		}()
	}

	var m wsMessage
	if err := conn.ReadJSON(&m); err != nil {
		return device.NewError(device.KindNetwork, op, fmt.Errorf("waiting for %s: %w", msgAuthRequired, err))
	}
	if m.Type != msgAuthRequired {
		return device.Errorf(device.KindNetwork, op, "unexpected %q before %s", m.Type, msgAuthRequired)
	}

	if err := conn.WriteJSON(map[string]string{"type": msgAuth, "access_token": token}); err != nil {
		return device.NewError(device.KindNetwork, op, fmt.Errorf("sending auth: %w", err))
	}

	m = wsMessage{}
	if err := conn.ReadJSON(&m); err != nil {
		return device.NewError(device.KindNetwork, op, fmt.Errorf("waiting for auth result: %w", err))
	}
	switch m.Type {
	case msgAuthOK:
		return nil
	case msgAuthInvalid:
		return device.NewError(device.KindConfiguration, op, fmt.Errorf("%w: %s", ErrAuthInvalid, m.Message))
	default:
		return device.Errorf(device.KindNetwork, op, "unexpected auth reply %q", m.Type)
	}
}

// call sends msg with a fresh id and waits for its result.
func (c *wsClient) call(ctx context.Context, msg map[string]any) (json.RawMessage, error) {
	const op = "hub.call"
	typ, _ := msg["type"].(string)

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil, device.NewError(device.KindNetwork, op, ErrSocketClosed)
	}
	c.nextID++
	id := c.nextID
	ch := make(chan wsMessage, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	msg["id"] = id
	if err := c.write(msg); err != nil {
		c.forget(id)
		return nil, device.NewError(device.KindNetwork, op, fmt.Errorf("sending %s: %w", typ, err))
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res, ok := <-ch:
		if !ok {
			return nil, device.NewError(device.KindNetwork, op, fmt.Errorf("%s: %w", typ, ErrSocketClosed))
		}
		if !res.Success {
			msg := "request failed"
			if res.Error != nil {
				msg = res.Error.Code + ": " + res.Error.Message
			}
			return nil, device.Errorf(device.KindNetwork, op, "%s: %s", typ, msg)
		}
		return res.Result, nil
	case <-timer.C:
		c.forget(id)
		return nil, device.Errorf(device.KindTimeout, op, "%s: no reply after %s", typ, c.timeout)
	case <-ctx.Done():
		c.forget(id)
		return nil, device.NewError(device.KindTimeout, op, fmt.Errorf("%s: %w", typ, ctx.Err()))
	}
}

func (c *wsClient) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsClient) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// pendingCount reports requests still awaiting a reply.
func (c *wsClient) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// alive reports whether the read loop is still running.
func (c *wsClient) alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *wsClient) readLoop() {
	var cause error
	for {
		var m wsMessage
		if err := c.conn.ReadJSON(&m); err != nil {
			cause = err
			break
		}
		switch m.Type {
		case msgResult, msgPong:
			if m.Type == msgPong {
				m.Success = true
			}
			c.mu.Lock()
			ch, ok := c.pending[m.ID]
			delete(c.pending, m.ID)
			c.mu.Unlock()
			if ok {
				ch <- m
			}
		case msgEvent:
			if m.Event != nil && c.onEvent != nil {
				c.onEvent(*m.Event)
			}
		}
	}

	c.mu.Lock()
	deliberate := c.closing
	c.closing = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	close(c.done)

	if !deliberate && c.onClose != nil {
		c.onClose(cause)
	}
}

// close shuts the socket without invoking onClose and waits for the read
// loop to exit.
func (c *wsClient) close() error {
	c.mu.Lock()
	already := c.closing
	c.closing = true
	c.mu.Unlock()

	if !already {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
	}
	err := c.conn.Close()
	<-c.done
	if already {
		// The read loop already saw the socket die.
		return nil
	}
	return err
}
