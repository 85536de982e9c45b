package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-adapters/internal/device"
)

// ErrReconnectExhausted is carried by the terminal error event.
var ErrReconnectExhausted = errors.New("adapter: reconnect attempts exhausted")

// Hooks are the protocol-specific steps the Base drives.
type Hooks struct {
	// Connect opens the protocol session. It must clean up after itself
	// on failure.
	Connect func(ctx context.Context) error

	// Disconnect closes the protocol session. It must tolerate being called
	// on a session that never fully opened.
	Disconnect func(ctx context.Context) error

	// HealthCheck is the liveness check. Adapters normally point this at their
	// DiscoverDevices. When nil, health is the connected flag.
	HealthCheck func(ctx context.Context) error
}

// BaseOptions configures a Base.
type BaseOptions struct {
	Config Config
	Hooks  Hooks
	Logger Logger

	// After replaces time.After for reconnect waits. Tests use it to
	// observe delays without sleeping.
	After func(time.Duration) <-chan time.Time

	// Now replaces time.Now for status timestamps.
	Now func() time.Time
}

// Base supplies health checking, reconnect with exponential backoff, event
// fan-out and status tracking. Adapters embed it and forward their
// Initialize/Shutdown to it.
//
// All methods are safe for concurrent use.
type Base struct {
	cfg    Config
	hooks  Hooks
	logger Logger
	after  func(time.Duration) <-chan time.Time
	now    func() time.Time

	// Devices is the adapter's session store.
	Devices *device.Registry

	mu           sync.Mutex
	status       Status
	reconnecting bool
	exhausted    bool
	runCtx       context.Context
	cancelRun    context.CancelFunc
	wg           sync.WaitGroup

	listenerMu sync.RWMutex
	listeners  []listenerEntry
	nextID     int
}

type listenerEntry struct {
	id int
	fn Listener
}

// NewBase creates a Base. Connect and Disconnect hooks are required.
func NewBase(opts BaseOptions) *Base {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	after := opts.After
	if after == nil {
		after = time.After
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Base{
		cfg:     opts.Config.withDefaults(),
		hooks:   opts.Hooks,
		logger:  logger,
		after:   after,
		now:     now,
		Devices: device.NewRegistry(),
	}
}

// ID returns the adapter ID.
func (b *Base) ID() string { return b.cfg.ID }

// Kind returns the adapter kind.
func (b *Base) Kind() string { return b.cfg.Kind }

// Config returns the effective lifecycle configuration.
func (b *Base) Config() Config { return b.cfg }

// Logger returns the adapter logger.
func (b *Base) Logger() Logger { return b.logger }

// Initialize connects the protocol session and starts the health ticker.
// On failure the session is torn down and the error returned; the adapter
// is left disconnected.
func (b *Base) Initialize(ctx context.Context) error {
	b.mu.Lock()
	if b.cancelRun != nil {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if err := b.hooks.Connect(ctx); err != nil {
		if derr := b.hooks.Disconnect(ctx); derr != nil {
			b.logger.Debug("cleanup after failed initialize", "adapter_id", b.cfg.ID, "error", derr)
		}
		b.mu.Lock()
		b.status.Connected = false
		b.status.Healthy = false
		b.status.Error = err.Error()
		b.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	now := b.now()
	b.mu.Lock()
	b.runCtx = runCtx
	b.cancelRun = cancel
	b.exhausted = false
	b.status = Status{Connected: true, Healthy: true, LastSync: &now}
	b.mu.Unlock()

	if b.cfg.HealthCheckInterval > 0 {
		b.wg.Add(1)
		go b.healthLoop(runCtx)
	}

	b.logger.Info("adapter connected", "adapter_id", b.cfg.ID, "kind", b.cfg.Kind)
	b.Emit(Event{Type: EventConnected})
	return nil
}

// Shutdown stops background loops, closes the protocol session and clears
// the device registry. It is safe to call on an adapter that never started.
func (b *Base) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	cancel := b.cancelRun
	b.cancelRun = nil
	b.runCtx = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()

	err := b.hooks.Disconnect(ctx)

	b.mu.Lock()
	wasConnected := b.status.Connected
	b.status.Connected = false
	b.status.Healthy = false
	b.mu.Unlock()

	b.Devices.Clear()

	if wasConnected {
		b.logger.Info("adapter disconnected", "adapter_id", b.cfg.ID)
		b.Emit(Event{Type: EventDisconnected})
	}
	if err != nil {
		return fmt.Errorf("shutting down %s: %w", b.cfg.ID, err)
	}
	return nil
}

// healthLoop runs CheckHealth on every tick until ctx is cancelled.
func (b *Base) healthLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = b.CheckHealth(ctx)
		}
	}
}

// CheckHealth runs the health check once and records the outcome. A failed check on
// a connected adapter starts a reconnect.
func (b *Base) CheckHealth(ctx context.Context) error {
	var err error
	if b.hooks.HealthCheck != nil {
		err = b.hooks.HealthCheck(ctx)
	} else if !b.Status().Connected {
		err = errors.New("not connected")
	}

	now := b.now()
	b.mu.Lock()
	wasConnected := b.status.Connected
	b.status.Healthy = err == nil
	b.status.LastHealthCheck = &now
	if err != nil {
		b.status.Error = err.Error()
	}
	b.mu.Unlock()

	if err != nil {
		b.logger.Warn("health check failed", "adapter_id", b.cfg.ID, "error", err)
		if wasConnected {
			b.TriggerReconnect(err)
		}
	}
	return err
}

// TriggerReconnect starts a background reconnect unless one is already in
// flight, the adapter is shut down, or attempts have been exhausted.
// It reports whether a reconnect was started.
func (b *Base) TriggerReconnect(reason error) bool {
	b.mu.Lock()
	if b.reconnecting || b.exhausted || b.runCtx == nil {
		b.mu.Unlock()
		return false
	}
	b.reconnecting = true
	ctx := b.runCtx
	wasConnected := b.status.Connected
	b.status.Connected = false
	b.status.Healthy = false
	b.wg.Add(1)
	b.mu.Unlock()

	b.logger.Warn("adapter connection lost, reconnecting", "adapter_id", b.cfg.ID, "reason", reason)
	if wasConnected {
		b.Emit(Event{Type: EventDisconnected, Err: reason})
	}

	go b.reconnectLoop(ctx)
	return true
}

// Reconnecting reports whether a reconnect is in flight.
func (b *Base) Reconnecting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reconnecting
}

func (b *Base) reconnectLoop(ctx context.Context) {
	defer b.wg.Done()
	defer func() {
		b.mu.Lock()
		b.reconnecting = false
		b.mu.Unlock()
	}()

	schedule := b.cfg.ReconnectBackOff()
	maxAttempts := b.cfg.MaxReconnectAttempts
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		delay := schedule.NextBackOff()

		b.mu.Lock()
		b.status.ReconnectAttempts = attempt
		b.mu.Unlock()

		b.logger.Info("reconnect scheduled",
			"adapter_id", b.cfg.ID,
			"attempt", attempt,
			"delay", delay,
		)

		select {
		case <-ctx.Done():
			return
		case <-b.after(delay):
		}

		if derr := b.hooks.Disconnect(ctx); derr != nil {
			b.logger.Debug("disconnect before reconnect", "adapter_id", b.cfg.ID, "error", derr)
		}
		err := b.hooks.Connect(ctx)
		if err == nil {
			now := b.now()
			b.mu.Lock()
			b.status = Status{Connected: true, Healthy: true, LastSync: &now, LastHealthCheck: b.status.LastHealthCheck}
			b.mu.Unlock()
			b.logger.Info("adapter reconnected", "adapter_id", b.cfg.ID, "attempt", attempt)
			b.Emit(Event{Type: EventConnected})
			return
		}

		if ctx.Err() != nil {
			return
		}

		b.mu.Lock()
		b.status.Error = err.Error()
		b.mu.Unlock()
		b.logger.Warn("reconnect attempt failed",
			"adapter_id", b.cfg.ID,
			"attempt", attempt,
			"error", err,
		)
		b.Emit(Event{Type: EventError, Err: err})

		// Bad credentials or settings will not fix themselves.
		if device.KindOf(err) == device.KindConfiguration {
			b.giveUp(device.KindConfiguration, fmt.Errorf("%w: %w", ErrReconnectExhausted, err), attempt)
			return
		}
	}

	b.giveUp(device.KindNetwork, fmt.Errorf("%w: %d attempts", ErrReconnectExhausted, maxAttempts), maxAttempts)
}

// giveUp marks reconnects exhausted and emits the terminal error.
func (b *Base) giveUp(kind device.Kind, terminal error, attempts int) {
	b.mu.Lock()
	b.exhausted = true
	b.status.Error = terminal.Error()
	b.mu.Unlock()

	b.logger.Error("adapter reconnect gave up; manual intervention required",
		"adapter_id", b.cfg.ID,
		"attempts", attempts,
	)
	b.Emit(Event{Type: EventError, Err: device.NewError(kind, b.cfg.ID, terminal), Terminal: true})
}

// SetConnected records a connection flag change reported by the protocol
// (for example a bridge announcing itself offline) and emits the matching
// event when the flag actually changes.
func (b *Base) SetConnected(connected bool) {
	b.mu.Lock()
	changed := b.status.Connected != connected
	b.status.Connected = connected
	b.status.Healthy = connected
	b.mu.Unlock()

	if !changed {
		return
	}
	if connected {
		b.Emit(Event{Type: EventConnected})
	} else {
		b.Emit(Event{Type: EventDisconnected})
	}
}

// Running reports whether Initialize has succeeded and Shutdown has not been
// called since.
func (b *Base) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runCtx != nil
}

// IsConnected reports the connected flag.
func (b *Base) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status.Connected
}

// MarkSynced stamps LastSync.
func (b *Base) MarkSynced() {
	now := b.now()
	b.mu.Lock()
	b.status.LastSync = &now
	b.mu.Unlock()
}

// Status returns a copy of the current status.
func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.status
	if s.LastSync != nil {
		t := *s.LastSync
		s.LastSync = &t
	}
	if s.LastHealthCheck != nil {
		t := *s.LastHealthCheck
		s.LastHealthCheck = &t
	}
	return s
}

// Subscribe registers l and returns a function that removes it.
func (b *Base) Subscribe(l Listener) func() {
	b.listenerMu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, listenerEntry{id: id, fn: l})
	b.listenerMu.Unlock()

	return func() {
		b.listenerMu.Lock()
		defer b.listenerMu.Unlock()
		for i, e := range b.listeners {
			if e.id == id {
				b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// Emit stamps e with the adapter ID and time, then delivers it to every
// listener in registration order.
func (b *Base) Emit(e Event) {
	e.AdapterID = b.cfg.ID
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	if e.Device != nil && e.DeviceID == "" {
		e.DeviceID = e.Device.ID
	}
	if e.Err != nil && e.Message == "" {
		e.Message = e.Err.Error()
	}

	b.listenerMu.RLock()
	listeners := make([]listenerEntry, len(b.listeners))
	copy(listeners, b.listeners)
	b.listenerMu.RUnlock()

	for _, l := range listeners {
		b.deliver(l.fn, e)
	}
}

func (b *Base) deliver(fn Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panic recovered",
				"adapter_id", b.cfg.ID,
				"event", e.Type,
				"panic", r,
			)
		}
	}()
	fn(e)
}

// EmitStateChanged emits a state_changed event carrying a copy of d.
func (b *Base) EmitStateChanged(d *device.Device) {
	b.Emit(Event{Type: EventStateChanged, Device: d.DeepCopy()})
}

// EmitDiscovered emits a device_discovered event carrying a copy of d.
func (b *Base) EmitDiscovered(d *device.Device) {
	b.Emit(Event{Type: EventDeviceDiscovered, Device: d.DeepCopy()})
}
