// Package fake provides a deterministic in-memory adapter seeded with a fixed
// home. It is the reference implementation of the adapter contract and backs
// the contract tests of the manager and policy layers.
package fake

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-adapters/internal/adapter"
	"github.com/nerrad567/gray-logic-adapters/internal/device"
)

// Kind is the adapter type name used in configuration.
const Kind = "fake"

// Options configures a fake adapter.
type Options struct {
	Config adapter.Config
	Logger adapter.Logger
}

// Adapter is the in-memory fixture adapter.
type Adapter struct {
	*adapter.Base

	mu             sync.Mutex
	discoveryErr   error
	commandErr     error
	executed       []device.DeviceCommand
	executedScenes []device.SceneCommand
	announced      map[string]struct{}
}

// New creates a fake adapter. Nothing is seeded until Initialize.
func New(opts Options) *Adapter {
	cfg := opts.Config
	cfg.Kind = Kind
	if cfg.ID == "" {
		cfg.ID = Kind
	}
	a := &Adapter{announced: make(map[string]struct{})}
	a.Base = adapter.NewBase(adapter.BaseOptions{
		Config: cfg,
		Logger: opts.Logger,
		Hooks: adapter.Hooks{
			Connect:    a.connect,
			Disconnect: a.disconnect,
			HealthCheck: func(ctx context.Context) error {
				_, err := a.DiscoverDevices(ctx)
				return err
			},
		},
	})
	return a
}

var _ adapter.Adapter = (*Adapter)(nil)

func (a *Adapter) connect(context.Context) error {
	a.Devices.ReplaceDevices(seedDevices(a.ID()))
	a.Devices.SetAreas(seedAreas())
	a.Devices.SetScenes(seedScenes(a.ID()))
	return nil
}

func (a *Adapter) disconnect(context.Context) error {
	a.mu.Lock()
	a.announced = make(map[string]struct{})
	a.mu.Unlock()
	return nil
}

// FailDiscovery makes every discovery call return err until cleared with nil.
func (a *Adapter) FailDiscovery(err error) {
	a.mu.Lock()
	a.discoveryErr = err
	a.mu.Unlock()
}

// FailCommands makes every command and scene call return err until cleared.
func (a *Adapter) FailCommands(err error) {
	a.mu.Lock()
	a.commandErr = err
	a.mu.Unlock()
}

// Executed returns the device commands applied so far, in order.
func (a *Adapter) Executed() []device.DeviceCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]device.DeviceCommand(nil), a.executed...)
}

// ExecutedScenes returns the scene commands run so far, in order.
func (a *Adapter) ExecutedScenes() []device.SceneCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]device.SceneCommand(nil), a.executedScenes...)
}

func (a *Adapter) checkReady(op string) error {
	if !a.IsConnected() {
		return device.Errorf(device.KindNetwork, op, "%w: %s", adapter.ErrNotConnected, a.ID())
	}
	return nil
}

// DiscoverDevices returns the seeded devices and announces new ones.
func (a *Adapter) DiscoverDevices(context.Context) ([]*device.Device, error) {
	a.mu.Lock()
	err := a.discoveryErr
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := a.checkReady("fake.DiscoverDevices"); err != nil {
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

// DiscoverScenes returns the seeded scenes.
func (a *Adapter) DiscoverScenes(context.Context) ([]device.Scene, error) {
	a.mu.Lock()
	err := a.discoveryErr
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := a.checkReady("fake.DiscoverScenes"); err != nil {
		return nil, err
	}
	return a.Devices.Scenes(), nil
}

// DiscoverAreas returns the seeded areas.
func (a *Adapter) DiscoverAreas(context.Context) ([]device.Area, error) {
	a.mu.Lock()
	err := a.discoveryErr
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := a.checkReady("fake.DiscoverAreas"); err != nil {
		return nil, err
	}
	return a.Devices.Areas(), nil
}

// GetDeviceState returns the current copy of a device.
func (a *Adapter) GetDeviceState(_ context.Context, id string) (*device.Device, error) {
	return a.Devices.Get(id)
}

// ExecuteCommand applies cmd directly to the in-memory state and emits
// state_changed.
func (a *Adapter) ExecuteCommand(_ context.Context, cmd device.DeviceCommand) error {
	a.mu.Lock()
	injected := a.commandErr
	a.mu.Unlock()
	if injected != nil {
		return injected
	}
	if err := a.checkReady("fake.ExecuteCommand"); err != nil {
		return err
	}

	updated, err := a.Devices.Update(cmd.DeviceID, func(d *device.Device) error {
		return apply(d, cmd)
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.executed = append(a.executed, cmd)
	a.mu.Unlock()

	a.Logger().Debug("fake command applied", "device_id", cmd.DeviceID, "action", cmd.Action)
	a.EmitStateChanged(updated)
	return nil
}

// ExecuteScene records the scene run. Scene effects are opaque.
func (a *Adapter) ExecuteScene(_ context.Context, cmd device.SceneCommand) error {
	a.mu.Lock()
	injected := a.commandErr
	a.mu.Unlock()
	if injected != nil {
		return injected
	}
	if err := a.checkReady("fake.ExecuteScene"); err != nil {
		return err
	}
	if _, err := a.Devices.Scene(cmd.SceneID); err != nil {
		return err
	}

	a.mu.Lock()
	a.executedScenes = append(a.executedScenes, cmd)
	a.mu.Unlock()
	return nil
}

// Refresh stamps the sync time. Fixture state is never reset by a refresh.
func (a *Adapter) Refresh(context.Context) error {
	if err := a.checkReady("fake.Refresh"); err != nil {
		return err
	}
	a.MarkSynced()
	return nil
}
