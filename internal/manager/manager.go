package manager

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-adapters/internal/adapter"
	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/metrics"
)

// Queue defaults.
const (
	DefaultMaxQueueSize    = 1000
	DefaultCommandThrottle = 100 * time.Millisecond
	DefaultCommandTimeout  = 30 * time.Second
)

// Options configures a Manager. Zero values take the defaults.
type Options struct {
	MaxQueueSize int
	// CommandThrottle is the minimum gap between dispatches. Negative
	// disables spacing.
	CommandThrottle time.Duration
	CommandTimeout  time.Duration

	Logger  adapter.Logger
	Metrics *metrics.Metrics

	// Now and Sleep are replaced in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration)
}

type registration struct {
	adapter     adapter.Adapter
	priority    int
	unsubscribe func()
}

// Info describes one registered adapter.
type Info struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Priority int            `json:"priority"`
	Status   adapter.Status `json:"status"`
}

// Manager holds the registered adapters and dispatches commands to them.
type Manager struct {
	logger         adapter.Logger
	metrics        *metrics.Metrics
	maxQueue       int
	throttleGap    time.Duration
	commandTimeout time.Duration
	now            func() time.Time
	sleep          func(ctx context.Context, d time.Duration)

	// life ends at ShutdownAll and bounds throttle waits.
	life     context.Context
	stopLife context.CancelFunc

	mu        sync.RWMutex
	adapters  map[string]*registration
	listeners map[int]adapter.Listener
	nextLID   int

	qmu          sync.Mutex
	queue        []*queueItem
	seq          uint64
	draining     bool
	drainWG      sync.WaitGroup
	lastDispatch time.Time
}

// New creates an empty manager.
func New(opts Options) *Manager {
	m := &Manager{
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		maxQueue:       opts.MaxQueueSize,
		throttleGap:    opts.CommandThrottle,
		commandTimeout: opts.CommandTimeout,
		now:            opts.Now,
		sleep:          opts.Sleep,
		adapters:       make(map[string]*registration),
		listeners:      make(map[int]adapter.Listener),
	}
	if m.logger == nil {
		m.logger = adapter.NopLogger()
	}
	if m.maxQueue <= 0 {
		m.maxQueue = DefaultMaxQueueSize
	}
	if m.throttleGap == 0 {
		m.throttleGap = DefaultCommandThrottle
	}
	if m.commandTimeout <= 0 {
		m.commandTimeout = DefaultCommandTimeout
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.sleep == nil {
		m.sleep = sleepContext
	}
	m.life, m.stopLife = context.WithCancel(context.Background())
	return m
}

// Register adds an adapter. Higher priority adapters come first in
// aggregated results.
func (m *Manager) Register(a adapter.Adapter, priority int) error {
	id := a.ID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.adapters[id]; ok {
		return device.Errorf(device.KindConfiguration, "manager.Register", "%w: %s", ErrAdapterExists, id)
	}
	reg := &registration{adapter: a, priority: priority}
	reg.unsubscribe = a.Subscribe(m.republish)
	m.adapters[id] = reg
	m.metrics.SetConnected(id, a.Status().Connected)
	m.logger.Info("adapter registered", "adapter_id", id, "kind", a.Kind(), "priority", priority)
	return nil
}

// Unregister removes an adapter without shutting it down.
func (m *Manager) Unregister(id string) error {
	m.mu.Lock()
	reg, ok := m.adapters[id]
	delete(m.adapters, id)
	m.mu.Unlock()
	if !ok {
		return notFound("manager.Unregister", id)
	}
	reg.unsubscribe()
	return nil
}

// Adapter returns a registered adapter by ID.
func (m *Manager) Adapter(id string) (adapter.Adapter, error) {
	m.mu.RLock()
	reg, ok := m.adapters[id]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound("manager.Adapter", id)
	}
	return reg.adapter, nil
}

// Adapters lists the registered adapters by priority, then ID.
func (m *Manager) Adapters() []Info {
	regs := m.ordered()
	out := make([]Info, 0, len(regs))
	for _, r := range regs {
		out = append(out, Info{
			ID:       r.adapter.ID(),
			Kind:     r.adapter.Kind(),
			Priority: r.priority,
			Status:   r.adapter.Status(),
		})
	}
	return out
}

// Statuses maps adapter ID to its current status.
func (m *Manager) Statuses() map[string]adapter.Status {
	regs := m.ordered()
	out := make(map[string]adapter.Status, len(regs))
	for _, r := range regs {
		out[r.adapter.ID()] = r.adapter.Status()
	}
	return out
}

func (m *Manager) ordered() []*registration {
	m.mu.RLock()
	regs := make([]*registration, 0, len(m.adapters))
	for _, r := range m.adapters {
		regs = append(regs, r)
	}
	m.mu.RUnlock()
	slices.SortFunc(regs, func(a, b *registration) int {
		if a.priority != b.priority {
			return b.priority - a.priority
		}
		return strings.Compare(a.adapter.ID(), b.adapter.ID())
	})
	return regs
}

func notFound(op, id string) error {
	return device.Errorf(device.KindNotFound, op, "%w: %s", ErrAdapterNotFound, id)
}

// each runs fn for every adapter concurrently and returns the failures by
// adapter ID. Failures are logged, never propagated.
func (m *Manager) each(ctx context.Context, what string, fn func(context.Context, adapter.Adapter) error) map[string]error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs = make(map[string]error)
	)
	for _, r := range m.ordered() {
		a := r.adapter
		g.Go(func() error {
			if err := fn(ctx, a); err != nil {
				m.logger.Error("adapter "+what+" failed", "adapter_id", a.ID(), "error", err)
				mu.Lock()
				errs[a.ID()] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// InitializeAll initializes every adapter concurrently.
func (m *Manager) InitializeAll(ctx context.Context) map[string]error {
	return m.each(ctx, "initialize", func(ctx context.Context, a adapter.Adapter) error {
		return a.Initialize(ctx)
	})
}

// ShutdownAll fails any queued commands, then shuts every adapter down
// concurrently. A command waiting out the throttle is failed too.
func (m *Manager) ShutdownAll(ctx context.Context) map[string]error {
	m.stopLife()
	m.ClearQueue()
	errs := m.each(ctx, "shutdown", func(ctx context.Context, a adapter.Adapter) error {
		return a.Shutdown(ctx)
	})

	done := make(chan struct{})
	go func() {
		m.drainWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("command dispatcher still busy at shutdown")
	}
	return errs
}

// RefreshAll refreshes every adapter concurrently.
func (m *Manager) RefreshAll(ctx context.Context) map[string]error {
	return m.each(ctx, "refresh", func(ctx context.Context, a adapter.Adapter) error {
		return a.Refresh(ctx)
	})
}

// gather calls fn on every adapter concurrently and concatenates the results
// in adapter order. A failing adapter contributes nothing.
func gather[T any](ctx context.Context, m *Manager, what string, fn func(context.Context, adapter.Adapter) ([]T, error)) []T {
	regs := m.ordered()
	parts := make([][]T, len(regs))
	var g errgroup.Group
	for i, r := range regs {
		a := r.adapter
		g.Go(func() error {
			items, err := fn(ctx, a)
			if err != nil {
				m.logger.Warn(what+" failed, skipping adapter", "adapter_id", a.ID(), "error", err)
				return nil
			}
			parts[i] = items
			return nil
		})
	}
	_ = g.Wait()
	return slices.Concat(parts...)
}

// DiscoverAllDevices aggregates devices from every adapter.
func (m *Manager) DiscoverAllDevices(ctx context.Context) []*device.Device {
	return gather(ctx, m, "device discovery", func(ctx context.Context, a adapter.Adapter) ([]*device.Device, error) {
		return a.DiscoverDevices(ctx)
	})
}

// DiscoverAllScenes aggregates scenes from every adapter.
func (m *Manager) DiscoverAllScenes(ctx context.Context) []device.Scene {
	return gather(ctx, m, "scene discovery", func(ctx context.Context, a adapter.Adapter) ([]device.Scene, error) {
		return a.DiscoverScenes(ctx)
	})
}

// DiscoverAllAreas aggregates areas from every adapter.
func (m *Manager) DiscoverAllAreas(ctx context.Context) []device.Area {
	return gather(ctx, m, "area discovery", func(ctx context.Context, a adapter.Adapter) ([]device.Area, error) {
		return a.DiscoverAreas(ctx)
	})
}

// FindDevice looks a device up across adapters in priority order and returns
// it with the owning adapter's ID.
func (m *Manager) FindDevice(ctx context.Context, id string) (*device.Device, string, error) {
	for _, r := range m.ordered() {
		d, err := r.adapter.GetDeviceState(ctx, id)
		if err == nil {
			return d, r.adapter.ID(), nil
		}
		if device.KindOf(err) != device.KindNotFound {
			m.logger.Debug("device lookup failed", "adapter_id", r.adapter.ID(), "device_id", id, "error", err)
		}
	}
	return nil, "", device.Errorf(device.KindNotFound, "manager.FindDevice", "%w: %s", device.ErrDeviceNotFound, id)
}

// FindScene looks a scene up across adapters in priority order.
func (m *Manager) FindScene(ctx context.Context, id string) (device.Scene, error) {
	for _, r := range m.ordered() {
		scenes, err := r.adapter.DiscoverScenes(ctx)
		if err != nil {
			continue
		}
		for _, s := range scenes {
			if s.ID == id {
				if s.AdapterID == "" {
					s.AdapterID = r.adapter.ID()
				}
				return s, nil
			}
		}
	}
	return device.Scene{}, device.Errorf(device.KindNotFound, "manager.FindScene", "%w: %s", device.ErrSceneNotFound, id)
}

// ExecuteCommand queues cmd for the named adapter and waits for the result.
// The command must carry a verdict that allows it.
func (m *Manager) ExecuteCommand(ctx context.Context, adapterID string, cmd device.DeviceCommand, auth Authorization, priority int) error {
	const op = "manager.ExecuteCommand"
	if err := auth.check(op); err != nil {
		return err
	}
	a, err := m.Adapter(adapterID)
	if err != nil {
		return err
	}
	return m.submit(ctx, kindDevice, adapterID, priority, func(ctx context.Context) error {
		return a.ExecuteCommand(ctx, cmd)
	})
}

// ExecuteScene queues a scene run for the named adapter and waits for the
// result.
func (m *Manager) ExecuteScene(ctx context.Context, adapterID string, cmd device.SceneCommand, auth Authorization, priority int) error {
	const op = "manager.ExecuteScene"
	if err := auth.check(op); err != nil {
		return err
	}
	a, err := m.Adapter(adapterID)
	if err != nil {
		return err
	}
	return m.submit(ctx, kindScene, adapterID, priority, func(ctx context.Context) error {
		return a.ExecuteScene(ctx, cmd)
	})
}

// Subscribe registers a listener for events from every adapter.
func (m *Manager) Subscribe(l adapter.Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextLID
	m.nextLID++
	m.listeners[id] = l
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// republish forwards an adapter event to the manager's listeners in
// subscription order. A panicking listener is logged and skipped.
func (m *Manager) republish(e adapter.Event) {
	m.metrics.ObserveEvent(e.AdapterID, string(e.Type))
	switch e.Type {
	case adapter.EventConnected:
		m.metrics.SetConnected(e.AdapterID, true)
	case adapter.EventDisconnected:
		m.metrics.SetConnected(e.AdapterID, false)
	}

	m.mu.RLock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	ls := make([]adapter.Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, m.listeners[id])
	}
	m.mu.RUnlock()

	for _, l := range ls {
		m.deliver(l, e)
	}
}

func (m *Manager) deliver(l adapter.Listener, e adapter.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event listener panicked", "event", e.Type, "panic", fmt.Sprint(r))
		}
	}()
	l(e)
}
