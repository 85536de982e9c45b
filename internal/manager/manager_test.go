package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-adapters/internal/adapter"
	"github.com/nerrad567/gray-logic-adapters/internal/bridges/fake"
	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/policy"
)

var allow = Authorization{Verdict: policy.Result{Decision: policy.DecisionAllow, RiskLevel: policy.RiskSafe}}

func newFake(t *testing.T, id string) *fake.Adapter {
	t.Helper()
	a := fake.New(fake.Options{Config: adapter.Config{ID: id, HealthCheckInterval: -1}})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize(%s) error = %v", id, err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func newManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.CommandThrottle == 0 {
		opts.CommandThrottle = -1
	}
	m := New(opts)
	t.Cleanup(func() { m.ClearQueue() })
	return m
}

func command(t *testing.T, id, capability, action string) device.DeviceCommand {
	t.Helper()
	cmd, err := device.NewDeviceCommand(id, capability, action, nil)
	if err != nil {
		t.Fatalf("NewDeviceCommand() error = %v", err)
	}
	return cmd
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// gatedAdapter holds its first command until the gate is opened, letting
// tests build up a queue behind it.
type gatedAdapter struct {
	*fake.Adapter
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func newGated(t *testing.T, id string) *gatedAdapter {
	return &gatedAdapter{
		Adapter: newFake(t, id),
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
}

func (g *gatedAdapter) ExecuteCommand(ctx context.Context, cmd device.DeviceCommand) error {
	g.once.Do(func() {
		close(g.started)
		<-g.gate
	})
	return g.Adapter.ExecuteCommand(ctx, cmd)
}

// block submits a command that occupies the dispatcher until the gate opens.
func block(t *testing.T, m *Manager, g *gatedAdapter) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() {
		errc <- m.ExecuteCommand(context.Background(), g.ID(), command(t, "light.living_room", "light", "turn_on"), allow, 0)
	}()
	<-g.started
	return errc
}

func TestRegister(t *testing.T) {
	m := newManager(t, Options{})
	if err := m.Register(newFake(t, "a"), 1); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	err := m.Register(newFake(t, "a"), 2)
	if !errors.Is(err, ErrAdapterExists) || device.KindOf(err) != device.KindConfiguration {
		t.Errorf("duplicate Register() error = %v, want CONFIGURATION ErrAdapterExists", err)
	}

	if _, err := m.Adapter("missing"); !errors.Is(err, ErrAdapterNotFound) || device.KindOf(err) != device.KindNotFound {
		t.Errorf("Adapter(missing) error = %v, want NOT_FOUND", err)
	}
	if err := m.Unregister("a"); err != nil {
		t.Errorf("Unregister() error = %v", err)
	}
	if err := m.Unregister("a"); !errors.Is(err, ErrAdapterNotFound) {
		t.Errorf("second Unregister() error = %v, want ErrAdapterNotFound", err)
	}
}

func TestAdaptersOrderedByPriority(t *testing.T) {
	m := newManager(t, Options{})
	for _, r := range []struct {
		id       string
		priority int
	}{{"b", 1}, {"c", 5}, {"a", 1}} {
		if err := m.Register(newFake(t, r.id), r.priority); err != nil {
			t.Fatal(err)
		}
	}
	var got []string
	for _, info := range m.Adapters() {
		got = append(got, info.ID)
		if !info.Status.Connected {
			t.Errorf("%s Connected = false", info.ID)
		}
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Adapters() order = %v, want %v", got, want)
		}
	}
	if len(m.Statuses()) != 3 {
		t.Errorf("Statuses() len = %d, want 3", len(m.Statuses()))
	}
}

func TestDiscoverAll_ToleratesFailure(t *testing.T) {
	m := newManager(t, Options{})
	good := newFake(t, "good")
	bad := newFake(t, "bad")
	bad.FailDiscovery(errors.New("boom"))
	_ = m.Register(good, 1)
	_ = m.Register(bad, 2)

	devices := m.DiscoverAllDevices(context.Background())
	want, _ := good.DiscoverDevices(context.Background())
	if len(devices) != len(want) {
		t.Fatalf("DiscoverAllDevices() = %d devices, want %d", len(devices), len(want))
	}
	for _, d := range devices {
		if d.AdapterID != "good" {
			t.Errorf("device %s from adapter %s, want good", d.ID, d.AdapterID)
		}
	}
	if got := len(m.DiscoverAllScenes(context.Background())); got != 2 {
		t.Errorf("DiscoverAllScenes() = %d, want 2", got)
	}
	if got := len(m.DiscoverAllAreas(context.Background())); got != 4 {
		t.Errorf("DiscoverAllAreas() = %d, want 4", got)
	}
}

func TestDiscoverAll_PriorityOrder(t *testing.T) {
	m := newManager(t, Options{})
	_ = m.Register(newFake(t, "low"), 0)
	_ = m.Register(newFake(t, "high"), 10)

	scenes := m.DiscoverAllScenes(context.Background())
	if len(scenes) != 4 || scenes[0].AdapterID != "high" || scenes[3].AdapterID != "low" {
		t.Errorf("DiscoverAllScenes() order = %+v, want high adapter first", scenes)
	}
}

// failingInit never comes up.
type failingInit struct{ *fake.Adapter }

func (f failingInit) Initialize(context.Context) error { return errors.New("no route to host") }

func TestInitializeAll_CollectsFailures(t *testing.T) {
	m := newManager(t, Options{})
	ok := fake.New(fake.Options{Config: adapter.Config{ID: "ok", HealthCheckInterval: -1}})
	broken := failingInit{fake.New(fake.Options{Config: adapter.Config{ID: "broken", HealthCheckInterval: -1}})}
	_ = m.Register(ok, 0)
	_ = m.Register(broken, 0)

	errs := m.InitializeAll(context.Background())
	if len(errs) != 1 || errs["broken"] == nil {
		t.Errorf("InitializeAll() errors = %v, want only broken", errs)
	}
	if !ok.Status().Connected {
		t.Error("ok adapter not connected after InitializeAll")
	}
	if errs := m.RefreshAll(context.Background()); len(errs) != 1 || errs["broken"] == nil {
		t.Errorf("RefreshAll() errors = %v, want only broken", errs)
	}
	if errs := m.ShutdownAll(context.Background()); len(errs) != 0 {
		t.Errorf("ShutdownAll() errors = %v, want none", errs)
	}
	if ok.Status().Connected {
		t.Error("ok adapter still connected after ShutdownAll")
	}
}

func TestFindDeviceAndScene(t *testing.T) {
	m := newManager(t, Options{})
	_ = m.Register(newFake(t, "home"), 0)

	d, adapterID, err := m.FindDevice(context.Background(), "lock.front_door")
	if err != nil || adapterID != "home" || d.ID != "lock.front_door" {
		t.Errorf("FindDevice() = %v, %q, %v", d, adapterID, err)
	}
	if _, _, err := m.FindDevice(context.Background(), "nope"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("FindDevice(nope) error = %v, want ErrDeviceNotFound", err)
	}
	if s, err := m.FindScene(context.Background(), "scene.movie_night"); err != nil || s.AdapterID != "home" {
		t.Errorf("FindScene() = %+v, %v", s, err)
	}
	if _, err := m.FindScene(context.Background(), "nope"); device.KindOf(err) != device.KindNotFound {
		t.Errorf("FindScene(nope) error = %v, want NOT_FOUND", err)
	}
}

func TestExecuteCommand(t *testing.T) {
	m := newManager(t, Options{})
	a := newFake(t, "home")
	_ = m.Register(a, 0)

	if err := m.ExecuteCommand(context.Background(), "home", command(t, "switch.coffee_maker", "switch", "turn_on"), allow, 0); err != nil {
		t.Fatalf("ExecuteCommand() error = %v", err)
	}
	if got := a.Executed(); len(got) != 1 || got[0].DeviceID != "switch.coffee_maker" {
		t.Errorf("Executed() = %+v", got)
	}

	err := m.ExecuteCommand(context.Background(), "ghost", command(t, "switch.coffee_maker", "switch", "turn_on"), allow, 0)
	if !errors.Is(err, ErrAdapterNotFound) || device.KindOf(err) != device.KindNotFound {
		t.Errorf("ExecuteCommand(ghost) error = %v, want NOT_FOUND", err)
	}

	scene, _ := device.NewSceneCommand("scene.movie_night", nil)
	if err := m.ExecuteScene(context.Background(), "home", scene, allow, 0); err != nil {
		t.Fatalf("ExecuteScene() error = %v", err)
	}
	if len(a.ExecutedScenes()) != 1 {
		t.Errorf("ExecutedScenes() = %v, want one", a.ExecutedScenes())
	}
}

func TestExecuteCommand_AdapterErrorPropagates(t *testing.T) {
	m := newManager(t, Options{})
	a := newFake(t, "home")
	_ = m.Register(a, 0)
	a.FailCommands(device.NewError(device.KindDeviceOffline, "test", device.ErrOffline))

	err := m.ExecuteCommand(context.Background(), "home", command(t, "switch.coffee_maker", "switch", "turn_on"), allow, 0)
	if !errors.Is(err, device.ErrOffline) || !device.IsRetryable(err) {
		t.Errorf("ExecuteCommand() error = %v, want retryable ErrOffline", err)
	}
}

func TestPolicyGate(t *testing.T) {
	m := newManager(t, Options{})
	a := newFake(t, "home")
	_ = m.Register(a, 0)
	cmd := command(t, "lock.front_door", "lock", "unlock")

	tests := []struct {
		name string
		auth Authorization
		want error
	}{
		{"no verdict", Authorization{}, ErrPolicyBypass},
		{"denied", Allow(policy.Result{Decision: policy.DecisionDeny, RiskLevel: policy.RiskHigh}, true), ErrPolicyBypass},
		{"unconfirmed", Allow(policy.Result{Decision: policy.DecisionRequireConfirmation, RiskLevel: policy.RiskHigh}, false), ErrPolicyBypass},
		{"confirmed", Allow(policy.Result{Decision: policy.DecisionRequireConfirmation, RiskLevel: policy.RiskHigh}, true), nil},
		{"allowed", allow, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.ExecuteCommand(context.Background(), "home", cmd, tt.auth, 0)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("ExecuteCommand() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) || device.KindOf(err) != device.KindPermission {
				t.Errorf("ExecuteCommand() error = %v, want PERMISSION %v", err, tt.want)
			}
		})
	}
	if got := len(a.Executed()); got != 2 {
		t.Errorf("Executed() = %d commands, want 2", got)
	}

	scene, _ := device.NewSceneCommand("scene.movie_night", nil)
	if err := m.ExecuteScene(context.Background(), "home", scene, Authorization{}, 0); !errors.Is(err, ErrPolicyBypass) {
		t.Errorf("ExecuteScene() without verdict error = %v, want ErrPolicyBypass", err)
	}
}

func TestEventFanOut(t *testing.T) {
	m := newManager(t, Options{})
	a := newFake(t, "home")
	_ = m.Register(a, 0)

	var (
		mu     sync.Mutex
		events []adapter.Event
	)
	m.Subscribe(func(adapter.Event) { panic("listener bug") })
	unsubscribe := m.Subscribe(func(e adapter.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	if err := m.ExecuteCommand(context.Background(), "home", command(t, "switch.coffee_maker", "switch", "turn_on"), allow, 0); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	if len(events) != 1 || events[0].Type != adapter.EventStateChanged || events[0].AdapterID != "home" || events[0].DeviceID != "switch.coffee_maker" {
		t.Errorf("events = %+v, want one state_changed for switch.coffee_maker", events)
	}
	mu.Unlock()

	unsubscribe()
	_ = m.ExecuteCommand(context.Background(), "home", command(t, "switch.coffee_maker", "switch", "turn_off"), allow, 0)
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Errorf("events after unsubscribe = %d, want 1", len(events))
	}
}

func TestUnregisterStopsFanOut(t *testing.T) {
	m := newManager(t, Options{})
	a := newFake(t, "home")
	_ = m.Register(a, 0)

	count := 0
	m.Subscribe(func(adapter.Event) { count++ })
	_ = m.Unregister("home")
	_ = a.ExecuteCommand(context.Background(), command(t, "switch.coffee_maker", "switch", "toggle"))
	if count != 0 {
		t.Errorf("events after Unregister = %d, want 0", count)
	}
}
