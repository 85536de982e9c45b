// Package hub implements the cloud-hub adapter.
//
// The hub exposes a REST API for snapshots and a WebSocket API for live
// events and service calls. On connect the adapter proves the token over
// REST, opens and authenticates the socket, subscribes to state_changed and
// loads the entity snapshot together with the area, entity and device
// registries. Commands become call_service requests correlated by id.
//
// A dropped socket is reopened on a fixed delay with its own attempt
// counter. When those attempts run out the adapter hands over to the
// lifecycle reconnect, which rebuilds the whole session.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-adapters/internal/adapter"
	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/config"
)

// Kind is the adapter type name used in configuration.
const Kind = "hub"

const (
	defaultRequestTimeout     = 30 * time.Second
	defaultWSReconnectDelay   = 5 * time.Second
	defaultWSReconnectAttempt = 5
)

// Options configures a hub adapter.
type Options struct {
	Config adapter.Config
	Hub    config.HubConfig
	Logger adapter.Logger

	// HTTPClient defaults to a client with the request timeout.
	HTTPClient *http.Client
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// After replaces time.After for reconnect waits.
	After func(time.Duration) <-chan time.Time
}

// Adapter is the cloud-hub protocol adapter.
type Adapter struct {
	*adapter.Base

	hub        config.HubConfig
	rest       *restClient
	dialer     *websocket.Dialer
	after      func(time.Duration) <-chan time.Time
	timeout    time.Duration
	wsDelay    time.Duration
	wsAttempts int
	include    map[string]struct{}
	exclude    map[string]struct{}

	mu             sync.RWMutex
	ws             *wsClient
	announced      map[string]struct{}
	wsCtx          context.Context
	wsCancel       context.CancelFunc
	wsReconnecting bool
	wsWG           sync.WaitGroup
}

// New creates a hub adapter. No connection is made until Initialize.
func New(opts Options) *Adapter {
	cfg := opts.Config
	cfg.Kind = Kind
	if cfg.ID == "" {
		cfg.ID = Kind
	}

	a := &Adapter{
		hub:        opts.Hub,
		dialer:     opts.Dialer,
		after:      opts.After,
		timeout:    opts.Hub.GetRequestTimeout(),
		wsDelay:    opts.Hub.GetWSReconnectDelay(),
		wsAttempts: opts.Hub.WSMaxReconnectAttempts,
		include:    domainSet(opts.Hub.IncludeDomains),
		exclude:    domainSet(opts.Hub.ExcludeDomains),
		announced:  make(map[string]struct{}),
	}
	if a.timeout <= 0 {
		a.timeout = defaultRequestTimeout
	}
	if a.wsDelay <= 0 {
		a.wsDelay = defaultWSReconnectDelay
	}
	if a.wsAttempts <= 0 {
		a.wsAttempts = defaultWSReconnectAttempt
	}
	if a.dialer == nil {
		a.dialer = websocket.DefaultDialer
	}
	if a.after == nil {
		a.after = time.After
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: a.timeout}
	}
	a.rest = newRESTClient(opts.Hub.BaseURL, opts.Hub.AccessToken, hc)

	a.Base = adapter.NewBase(adapter.BaseOptions{
		Config: cfg,
		Logger: opts.Logger,
		After:  opts.After,
		Hooks: adapter.Hooks{
			Connect:     a.connect,
			Disconnect:  a.disconnect,
			HealthCheck: a.healthCheck,
		},
	})
	return a
}

var _ adapter.Adapter = (*Adapter)(nil)

func (a *Adapter) connect(ctx context.Context) error {
	const op = "hub.Initialize"
	if strings.TrimSpace(a.hub.BaseURL) == "" {
		return device.Errorf(device.KindConfiguration, op, "base_url is required")
	}

	rctx, cancel := context.WithTimeout(ctx, a.timeout)
	err := a.rest.ping(rctx)
	cancel()
	if err != nil {
		return err
	}

	wsCtx, wsCancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.wsCtx, a.wsCancel = wsCtx, wsCancel
	a.mu.Unlock()

	ws, err := a.openSocket(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.ws = ws
	a.mu.Unlock()
	return nil
}

// openSocket dials, authenticates, subscribes and loads the inventory. The
// socket is closed again on any failure.
func (a *Adapter) openSocket(ctx context.Context) (*wsClient, error) {
	const op = "hub.subscribe"
	ws, err := dialWebSocket(ctx, a.dialer, a.hub.BaseURL, a.hub.AccessToken, a.timeout, a.handleEvent, a.socketClosed)
	if err != nil {
		return nil, err
	}
	if _, err := ws.call(ctx, map[string]any{"type": msgSubscribeEvents, "event_type": eventStateChanged}); err != nil {
		_ = ws.close()
		return nil, device.NewError(device.KindOf(err), op, err)
	}
	if err := a.load(ctx, ws); err != nil {
		_ = ws.close()
		return nil, err
	}
	return ws, nil
}

func (a *Adapter) disconnect(context.Context) error {
	a.mu.Lock()
	cancel := a.wsCancel
	a.wsCancel = nil
	a.wsCtx = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.wsWG.Wait()

	a.mu.Lock()
	ws := a.ws
	a.ws = nil
	a.announced = make(map[string]struct{})
	a.mu.Unlock()

	if ws == nil {
		return nil
	}
	return ws.close()
}

// healthCheck reports liveness: the REST API answers and the socket is up or
// being reopened.
func (a *Adapter) healthCheck(ctx context.Context) error {
	const op = "hub.health"
	rctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.rest.ping(rctx); err != nil {
		return err
	}

	a.mu.RLock()
	ws, reopening := a.ws, a.wsReconnecting
	a.mu.RUnlock()
	if !reopening && (ws == nil || !ws.alive()) {
		return device.NewError(device.KindNetwork, op, ErrSocketClosed)
	}
	return nil
}

// Registry entries returned over the socket.
type (
	areaEntry struct {
		AreaID  string   `json:"area_id"`
		Name    string   `json:"name"`
		Aliases []string `json:"aliases"`
	}
	entityEntry struct {
		EntityID string `json:"entity_id"`
		AreaID   string `json:"area_id"`
		DeviceID string `json:"device_id"`
	}
	deviceEntry struct {
		ID           string `json:"id"`
		AreaID       string `json:"area_id"`
		Manufacturer string `json:"manufacturer"`
		Model        string `json:"model"`
	}
)

// load fetches the entity snapshot and registries and replaces the
// adapter's devices, scenes and areas.
func (a *Adapter) load(ctx context.Context, ws *wsClient) error {
	rctx, cancel := context.WithTimeout(ctx, a.timeout)
	states, err := a.rest.states(rctx)
	cancel()
	if err != nil {
		return err
	}

	var (
		areas    []areaEntry
		entities []entityEntry
		hubDevs  []deviceEntry
	)
	a.registry(ctx, ws, msgAreaRegistry, &areas)
	a.registry(ctx, ws, msgEntityRegistry, &entities)
	a.registry(ctx, ws, msgDeviceRegistry, &hubDevs)

	entityIdx := make(map[string]entityEntry, len(entities))
	for _, e := range entities {
		entityIdx[e.EntityID] = e
	}
	deviceIdx := make(map[string]deviceEntry, len(hubDevs))
	for _, d := range hubDevs {
		deviceIdx[d.ID] = d
	}

	var (
		devices []*device.Device
		scenes  []device.Scene
	)
	for _, st := range states {
		domain := st.Domain()
		if !a.accept(domain) {
			continue
		}
		if domain == sceneDomain {
			scenes = append(scenes, a.sceneFor(st))
			continue
		}
		d := deviceFor(a.ID(), st)
		if d == nil {
			continue
		}
		enrich(d, entityIdx, deviceIdx)
		if err := device.ValidateDevice(d); err != nil {
			a.Logger().Warn("hub entity skipped", "entity_id", st.EntityID, "error", err)
			continue
		}
		devices = append(devices, d)
	}

	out := make([]device.Area, 0, len(areas))
	for _, ar := range areas {
		if ar.AreaID == "" {
			continue
		}
		out = append(out, device.Area{ID: ar.AreaID, Name: ar.Name, Tags: []string{}, Aliases: ar.Aliases})
	}

	a.Devices.ReplaceDevices(devices)
	a.Devices.SetScenes(scenes)
	a.Devices.SetAreas(out)
	a.MarkSynced()
	a.Logger().Info("hub inventory loaded",
		"adapter_id", a.ID(),
		"devices", len(devices),
		"scenes", len(scenes),
		"areas", len(out),
	)
	return nil
}

// registry fetches one registry listing into out. Failures are logged; the
// inventory is still usable without area and vendor details.
func (a *Adapter) registry(ctx context.Context, ws *wsClient, typ string, out any) {
	raw, err := ws.call(ctx, map[string]any{"type": typ})
	if err == nil {
		err = json.Unmarshal(raw, out)
	}
	if err != nil {
		a.Logger().Warn("hub registry unavailable", "adapter_id", a.ID(), "registry", typ, "error", err)
	}
}

// enrich copies area and vendor details from the registries. An entity's own
// area wins over its device's.
func enrich(d *device.Device, entities map[string]entityEntry, devices map[string]deviceEntry) {
	ent, ok := entities[d.NativeID]
	if !ok {
		return
	}
	d.AreaID = ent.AreaID
	hd, ok := devices[ent.DeviceID]
	if !ok {
		return
	}
	if d.AreaID == "" {
		d.AreaID = hd.AreaID
	}
	d.Manufacturer = hd.Manufacturer
	d.Model = hd.Model
	d.Metadata["hub_device_id"] = hd.ID
}

func (a *Adapter) sceneFor(st entityState) device.Scene {
	return device.Scene{
		ID:        st.EntityID,
		Name:      st.friendlyName(),
		Icon:      stringAttr(st, "icon"),
		AdapterID: a.ID(),
		NativeID:  st.EntityID,
		Tags:      []string{sceneDomain},
	}
}

func (a *Adapter) accept(domain string) bool {
	if len(a.include) > 0 {
		if _, ok := a.include[domain]; !ok {
			return false
		}
	}
	_, excluded := a.exclude[domain]
	return !excluded
}

// handleEvent applies a state_changed event. It runs on the socket's read
// goroutine.
func (a *Adapter) handleEvent(ev wsEvent) {
	if ev.EventType != eventStateChanged {
		return
	}
	id := ev.Data.EntityID
	domain, _, _ := strings.Cut(id, ".")
	if !a.accept(domain) || domain == sceneDomain {
		return
	}

	ns := ev.Data.NewState
	updated, err := a.Devices.Update(id, func(d *device.Device) error {
		if ns == nil {
			// The entity was removed.
			d.Online = false
			return nil
		}
		applyEntity(d, *ns)
		return nil
	})
	switch {
	case err == nil:
		a.EmitStateChanged(updated)
	case errors.Is(err, device.ErrDeviceNotFound) && ns != nil:
		a.addEntity(*ns)
	default:
		a.Logger().Debug("hub event ignored", "entity_id", id, "error", err)
	}
}

// addEntity registers an entity first seen through an event.
func (a *Adapter) addEntity(st entityState) {
	d := deviceFor(a.ID(), st)
	if d == nil {
		return
	}
	if err := device.ValidateDevice(d); err != nil {
		a.Logger().Warn("hub entity skipped", "entity_id", st.EntityID, "error", err)
		return
	}
	a.Devices.Upsert(d)
	a.mu.Lock()
	a.announced[d.ID] = struct{}{}
	a.mu.Unlock()
	a.Logger().Info("hub entity added", "adapter_id", a.ID(), "entity_id", st.EntityID)
	a.EmitDiscovered(d)
}

// socketClosed runs when the socket dies without Disconnect asking for it.
func (a *Adapter) socketClosed(cause error) {
	if !a.Running() || a.Reconnecting() {
		return
	}
	a.mu.Lock()
	if a.wsCtx == nil || a.wsReconnecting {
		a.mu.Unlock()
		return
	}
	a.wsReconnecting = true
	ctx := a.wsCtx
	a.wsWG.Add(1)
	a.mu.Unlock()

	a.Logger().Warn("hub websocket closed, reopening", "adapter_id", a.ID(), "error", cause)
	a.SetConnected(false)
	go a.reopenLoop(ctx, cause)
}

// reopenLoop retries the socket on a fixed delay. Exhaustion or a rejected
// token hands over to the lifecycle reconnect.
func (a *Adapter) reopenLoop(ctx context.Context, cause error) {
	defer a.wsWG.Done()
	defer func() {
		a.mu.Lock()
		a.wsReconnecting = false
		a.mu.Unlock()
	}()

	lastErr := cause
	for attempt := 1; attempt <= a.wsAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-a.after(a.wsDelay):
		}

		ws, err := a.openSocket(ctx)
		if err == nil {
			a.mu.Lock()
			old := a.ws
			a.ws = ws
			a.mu.Unlock()
			if old != nil {
				_ = old.close()
			}
			a.Logger().Info("hub websocket reopened", "adapter_id", a.ID(), "attempt", attempt)
			a.SetConnected(true)
			return
		}
		if ctx.Err() != nil {
			return
		}
		lastErr = err
		a.Logger().Warn("hub websocket reopen failed", "adapter_id", a.ID(), "attempt", attempt, "error", err)
		if errors.Is(err, ErrAuthInvalid) {
			break
		}
	}

	a.TriggerReconnect(device.NewError(device.KindNetwork, "hub.websocket", fmt.Errorf("reopening websocket: %w", lastErr)))
}

func (a *Adapter) socket() *wsClient {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ws
}

func (a *Adapter) checkReady(op string) (*wsClient, error) {
	ws := a.socket()
	if ws == nil || !ws.alive() || !a.IsConnected() {
		return nil, device.Errorf(device.KindNetwork, op, "%w: %s", adapter.ErrNotConnected, a.ID())
	}
	return ws, nil
}

// DiscoverDevices returns the current inventory and announces new devices.
func (a *Adapter) DiscoverDevices(context.Context) ([]*device.Device, error) {
	if _, err := a.checkReady("hub.DiscoverDevices"); err != nil {
		return nil, err
	}
	devices := a.Devices.List()
	for _, d := range devices {
		a.mu.Lock()
		_, seen := a.announced[d.ID]
		a.announced[d.ID] = struct{}{}
		a.mu.Unlock()
		if !seen {
			a.EmitDiscovered(d)
		}
	}
	a.MarkSynced()
	return devices, nil
}

// DiscoverScenes returns the hub's scene entities.
func (a *Adapter) DiscoverScenes(context.Context) ([]device.Scene, error) {
	if _, err := a.checkReady("hub.DiscoverScenes"); err != nil {
		return nil, err
	}
	return a.Devices.Scenes(), nil
}

// DiscoverAreas returns the hub's area registry.
func (a *Adapter) DiscoverAreas(context.Context) ([]device.Area, error) {
	if _, err := a.checkReady("hub.DiscoverAreas"); err != nil {
		return nil, err
	}
	return a.Devices.Areas(), nil
}

// GetDeviceState returns the last known state of a device.
func (a *Adapter) GetDeviceState(_ context.Context, id string) (*device.Device, error) {
	return a.Devices.Get(id)
}

// ExecuteCommand maps cmd to a service call on the device's entity. State
// changes arrive later as state_changed events.
func (a *Adapter) ExecuteCommand(ctx context.Context, cmd device.DeviceCommand) error {
	const op = "hub.ExecuteCommand"
	ws, err := a.checkReady(op)
	if err != nil {
		return err
	}
	d, err := a.Devices.Get(cmd.DeviceID)
	if err != nil {
		return err
	}
	if !d.HasCapability(cmd.Capability) {
		return device.Errorf(device.KindNotFound, op, "%w: %s on %s", device.ErrCapabilityNotFound, cmd.Capability, cmd.DeviceID)
	}
	domain, _, _ := strings.Cut(d.NativeID, ".")
	call, err := callFor(domain, cmd)
	if err != nil {
		return err
	}
	if err := a.callService(ctx, ws, call, d.NativeID); err != nil {
		return err
	}
	a.Logger().Debug("hub service called",
		"adapter_id", a.ID(),
		"device_id", cmd.DeviceID,
		"service", call.Domain+"."+call.Service,
	)
	return nil
}

// ExecuteScene activates a scene entity.
func (a *Adapter) ExecuteScene(ctx context.Context, cmd device.SceneCommand) error {
	const op = "hub.ExecuteScene"
	ws, err := a.checkReady(op)
	if err != nil {
		return err
	}
	sc, err := a.Devices.Scene(cmd.SceneID)
	if err != nil {
		return err
	}
	call := serviceCall{Domain: sceneDomain, Service: "turn_on"}
	if len(cmd.Params) > 0 {
		call.Data = cmd.Params
	}
	return a.callService(ctx, ws, call, sc.NativeID)
}

func (a *Adapter) callService(ctx context.Context, ws *wsClient, call serviceCall, entityID string) error {
	msg := map[string]any{
		"type":    msgCallService,
		"domain":  call.Domain,
		"service": call.Service,
		"target":  map[string]any{"entity_id": entityID},
	}
	if call.Data != nil {
		msg["service_data"] = call.Data
	}
	_, err := ws.call(ctx, msg)
	return err
}

// Refresh reloads the snapshot and registries.
func (a *Adapter) Refresh(ctx context.Context) error {
	ws, err := a.checkReady("hub.Refresh")
	if err != nil {
		return err
	}
	return a.load(ctx, ws)
}

func domainSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

func stringAttr(st entityState, key string) string {
	s, _ := st.Attributes[key].(string)
	return s
}
