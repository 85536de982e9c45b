package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// fakeHub serves the REST and WebSocket halves of the hub API.
type fakeHub struct {
	t      *testing.T
	srv    *httptest.Server
	token  string
	states []map[string]any

	areas    []map[string]any
	entities []map[string]any
	devices  []map[string]any

	mu            sync.Mutex
	wsToken       string
	refuseSocket  bool
	silent        bool
	failCalls     bool
	failRegistry  bool
	calls         []map[string]any
	conns         []*hubConn
	socketConnect int
}

type hubConn struct {
	mu    sync.Mutex
	conn  *websocket.Conn
	subID int64
}

func (c *hubConn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func newFakeHub(t *testing.T) *fakeHub {
	t.Helper()
	h := &fakeHub{
		t:      t,
		token:  "secret",
		states: testStates(),
		areas: []map[string]any{
			{"area_id": "kitchen", "name": "Kitchen", "aliases": []string{"cooking"}},
			{"area_id": "hall", "name": "Hall"},
		},
		entities: []map[string]any{
			{"entity_id": "light.kitchen", "area_id": nil, "device_id": "dev1"},
			{"entity_id": "climate.hall", "area_id": "hall", "device_id": "dev2"},
		},
		devices: []map[string]any{
			{"id": "dev1", "area_id": "kitchen", "manufacturer": "Signify", "model": "LCT015"},
			{"id": "dev2", "area_id": "landing", "manufacturer": "Danfoss", "model": "eTRV"},
		},
	}
	h.wsToken = h.token

	mux := http.NewServeMux()
	mux.HandleFunc("/api/", h.authorized(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"message": "API running."})
	}))
	mux.HandleFunc("/api/states", h.authorized(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, h.states)
	}))
	mux.HandleFunc(websocketPath, h.serveSocket)
	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.close)
	return h
}

func testStates() []map[string]any {
	return []map[string]any{
		{"entity_id": "light.kitchen", "state": "on", "attributes": map[string]any{
			"friendly_name": "Kitchen Light", "brightness": 128,
			"supported_color_modes": []string{"hs"}, "hs_color": []float64{30, 50},
		}},
		{"entity_id": "light.porch", "state": "unavailable", "attributes": map[string]any{"friendly_name": "Porch"}},
		{"entity_id": "switch.fountain", "state": "off", "attributes": map[string]any{"friendly_name": "Fountain"}},
		{"entity_id": "climate.hall", "state": "heat", "attributes": map[string]any{
			"friendly_name": "Hall TRV", "current_temperature": 19.5, "temperature": 21,
		}},
		{"entity_id": "lock.front_door", "state": "locked", "attributes": map[string]any{"friendly_name": "Front Door"}},
		{"entity_id": "cover.garage", "state": "open", "attributes": map[string]any{"friendly_name": "Garage", "current_position": 100}},
		{"entity_id": "sensor.outside_temp", "state": "12.5", "attributes": map[string]any{
			"friendly_name": "Outside", "device_class": "temperature", "unit_of_measurement": "°C",
		}},
		{"entity_id": "binary_sensor.back_door", "state": "on", "attributes": map[string]any{"device_class": "door"}},
		{"entity_id": "scene.movie_night", "state": "scening", "attributes": map[string]any{"friendly_name": "Movie Night", "icon": "mdi:movie"}},
		{"entity_id": "automation.lights_out", "state": "on", "attributes": map[string]any{}},
	}
}

func (h *fakeHub) close() {
	h.mu.Lock()
	for _, c := range h.conns {
		_ = c.conn.Close()
	}
	h.mu.Unlock()
	h.srv.Close()
}

func (h *fakeHub) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+h.token {
			http.Error(w, "401: Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

var upgrader = websocket.Upgrader{}

func (h *fakeHub) serveSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	refuse := h.refuseSocket
	h.mu.Unlock()
	if refuse {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &hubConn{conn: conn}
	defer conn.Close()

	if err := c.send(map[string]any{"type": msgAuthRequired}); err != nil {
		return
	}
	var auth map[string]any
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	h.mu.Lock()
	ok := auth["type"] == msgAuth && auth["access_token"] == h.wsToken
	h.mu.Unlock()
	if !ok {
		_ = c.send(map[string]any{"type": msgAuthInvalid, "message": "Invalid access token"})
		return
	}
	_ = c.send(map[string]any{"type": msgAuthOK})

	h.mu.Lock()
	h.conns = append(h.conns, c)
	h.socketConnect++
	h.mu.Unlock()

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		id := int64(msg["id"].(float64))
		h.mu.Lock()
		silent, failCalls, failRegistry := h.silent, h.failCalls, h.failRegistry
		h.mu.Unlock()

		switch msg["type"] {
		case msgSubscribeEvents:
			c.mu.Lock()
			c.subID = id
			c.mu.Unlock()
			_ = c.send(result(id, nil))
		case msgAreaRegistry, msgEntityRegistry, msgDeviceRegistry:
			if failRegistry {
				_ = c.send(failure(id, "unknown_command", "Unknown command."))
				continue
			}
			_ = c.send(result(id, h.registry(msg["type"].(string))))
		case msgCallService:
			h.mu.Lock()
			h.calls = append(h.calls, msg)
			h.mu.Unlock()
			switch {
			case silent:
			case failCalls:
				_ = c.send(failure(id, "service_validation_error", "Entity is unavailable"))
			default:
				_ = c.send(result(id, map[string]any{"context": map[string]any{"id": "ctx"}}))
			}
		}
	}
}

func (h *fakeHub) registry(typ string) []map[string]any {
	switch typ {
	case msgAreaRegistry:
		return h.areas
	case msgEntityRegistry:
		return h.entities
	default:
		return h.devices
	}
}

func result(id int64, v any) map[string]any {
	return map[string]any{"id": id, "type": msgResult, "success": true, "result": v}
}

func failure(id int64, code, message string) map[string]any {
	return map[string]any{"id": id, "type": msgResult, "success": false,
		"error": map[string]any{"code": code, "message": message}}
}

// push sends a state_changed event on the newest socket.
func (h *fakeHub) push(entityID string, newState map[string]any) {
	h.t.Helper()
	h.mu.Lock()
	if len(h.conns) == 0 {
		h.mu.Unlock()
		h.t.Fatal("push: no socket connected")
	}
	c := h.conns[len(h.conns)-1]
	h.mu.Unlock()

	c.mu.Lock()
	sub := c.subID
	c.mu.Unlock()
	data := map[string]any{"entity_id": entityID, "new_state": nil}
	if newState != nil {
		newState["entity_id"] = entityID
		data["new_state"] = newState
	}
	err := c.send(map[string]any{
		"id":    sub,
		"type":  msgEvent,
		"event": map[string]any{"event_type": eventStateChanged, "data": data},
	})
	if err != nil {
		h.t.Fatalf("push: %v", err)
	}
}

// dropSockets closes every open socket from the server side.
func (h *fakeHub) dropSockets() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		_ = c.conn.Close()
	}
	h.conns = nil
}

func (h *fakeHub) set(fn func(h *fakeHub)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h)
}

func (h *fakeHub) recordedCalls() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]map[string]any(nil), h.calls...)
}

func (h *fakeHub) connects() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.socketConnect
}
