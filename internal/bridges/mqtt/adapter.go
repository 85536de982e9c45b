// Package mqtt implements the generic topic-mapped MQTT adapter. Each
// configured device capability has its own state and command topic; state
// payloads are decoded per binding and commands are published at QoS 1.
//
// The adapter is also the transport half of the Zigbee2MQTT adapter, which
// plugs in its own Discoverer and Codec.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-adapters/internal/adapter"
	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/config"
	mqttclient "github.com/nerrad567/gray-logic-adapters/internal/infrastructure/mqtt"
)

// Kind is the adapter type name used in configuration.
const Kind = "mqtt"

// Options configures an MQTT adapter.
type Options struct {
	Config adapter.Config
	Broker config.MQTTConfig
	Logger adapter.Logger

	// Discoverer supplies devices after each connect. Required.
	Discoverer Discoverer
	// Codec defaults to DefaultCodec.
	Codec Codec
	// Dialer defaults to DialBroker.
	Dialer Dialer

	// HealthCheck overrides the liveness check. The default is DiscoverDevices.
	HealthCheck func(ctx context.Context) error

	// After is passed to the lifecycle base for reconnect waits.
	After func(time.Duration) <-chan time.Time
}

// Adapter is the MQTT protocol adapter.
type Adapter struct {
	*adapter.Base

	broker     config.MQTTConfig
	discoverer Discoverer
	codec      Codec
	dial       Dialer

	mu        sync.RWMutex
	client    Client
	byTopic   map[string][]Binding
	bindings  map[string]map[device.CapabilityType]Binding
	announced map[string]struct{}
}

// New creates an MQTT adapter. No connection is made until Initialize.
func New(opts Options) *Adapter {
	cfg := opts.Config
	if cfg.Kind == "" {
		cfg.Kind = Kind
	}
	if cfg.ID == "" {
		cfg.ID = cfg.Kind
	}
	a := &Adapter{
		broker:     opts.Broker,
		discoverer: opts.Discoverer,
		codec:      opts.Codec,
		dial:       opts.Dialer,
		announced:  make(map[string]struct{}),
	}
	if a.codec == nil {
		a.codec = DefaultCodec{}
	}
	if a.dial == nil {
		a.dial = DialBroker
	}
	check := opts.HealthCheck
	if check == nil {
		check = func(ctx context.Context) error {
			_, err := a.DiscoverDevices(ctx)
			return err
		}
	}
	a.Base = adapter.NewBase(adapter.BaseOptions{
		Config: cfg,
		Logger: opts.Logger,
		After:  opts.After,
		Hooks: adapter.Hooks{
			Connect:     a.connect,
			Disconnect:  a.disconnect,
			HealthCheck: check,
		},
	})
	return a
}

var _ adapter.Adapter = (*Adapter)(nil)

func (a *Adapter) connect(ctx context.Context) error {
	op := a.Kind() + ".Initialize"
	if a.discoverer == nil {
		return device.Errorf(device.KindConfiguration, op, "no device discoverer configured")
	}

	client, err := a.dial(ctx, a.broker, a.connectionLost)
	if err != nil {
		return device.NewError(device.KindNetwork, op, fmt.Errorf("connecting to %s: %w", mqttclient.BrokerURL(a.broker), err))
	}
	if l, ok := client.(interface{ SetLogger(mqttclient.Logger) }); ok {
		l.SetLogger(a.Logger())
	}

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()

	return a.sync(ctx, client)
}

// sync runs discovery and (re)subscribes every state topic.
func (a *Adapter) sync(ctx context.Context, client Client) error {
	op := a.Kind() + ".discover"
	inv, err := a.discoverer.Discover(ctx, client)
	if err != nil {
		return err
	}

	a.mu.Lock()
	oldTopics := make([]string, 0, len(a.byTopic))
	for topic := range a.byTopic {
		oldTopics = append(oldTopics, topic)
	}
	a.mu.Unlock()
	for _, topic := range oldTopics {
		_ = client.Unsubscribe(topic)
	}

	topics := a.install(inv)
	for _, topic := range topics {
		if err := client.Subscribe(topic, commandQoS, a.handleMessage); err != nil {
			return device.NewError(device.KindNetwork, op, fmt.Errorf("subscribing %s: %w", topic, err))
		}
	}
	a.MarkSynced()
	a.Logger().Info("mqtt inventory loaded",
		"adapter_id", a.ID(),
		"devices", len(inv.Devices),
		"topics", len(topics),
	)
	return nil
}

// install replaces the device registry and binding indices with inv and
// returns the state topics to subscribe.
func (a *Adapter) install(inv Inventory) []string {
	byTopic := make(map[string][]Binding)
	bindings := make(map[string]map[device.CapabilityType]Binding)
	devices := make([]*device.Device, 0, len(inv.Devices))
	var topics []string

	for _, spec := range inv.Devices {
		d := spec.Device
		d.AdapterID = a.ID()
		devices = append(devices, d)
		perCap := make(map[device.CapabilityType]Binding, len(spec.Bindings))
		for _, b := range spec.Bindings {
			perCap[b.Capability] = b
			if b.StateTopic == "" {
				continue
			}
			if _, seen := byTopic[b.StateTopic]; !seen {
				topics = append(topics, b.StateTopic)
			}
			byTopic[b.StateTopic] = append(byTopic[b.StateTopic], b)
		}
		bindings[d.ID] = perCap
	}

	a.Devices.ReplaceDevices(devices)
	a.Devices.SetAreas(inv.Areas)

	a.mu.Lock()
	a.byTopic = byTopic
	a.bindings = bindings
	a.mu.Unlock()
	return topics
}

func (a *Adapter) disconnect(context.Context) error {
	a.mu.Lock()
	client := a.client
	a.client = nil
	a.byTopic = nil
	a.bindings = nil
	a.announced = make(map[string]struct{})
	a.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}

// connectionLost is the broker session's drop callback.
func (a *Adapter) connectionLost(err error) {
	a.Logger().Warn("mqtt connection lost", "adapter_id", a.ID(), "error", err)
	a.TriggerReconnect(device.NewError(device.KindNetwork, a.Kind()+".connection", err))
}

// Client returns the live broker session, or nil.
func (a *Adapter) Client() Client {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client
}

func (a *Adapter) checkReady(op string) (Client, error) {
	client := a.Client()
	if client == nil || !client.IsConnected() || !a.IsConnected() {
		return nil, device.Errorf(device.KindNetwork, op, "%w: %s", adapter.ErrNotConnected, a.ID())
	}
	return client, nil
}

// handleMessage applies a state payload to every binding on topic. All
// bindings of one device are applied together and emit one state_changed.
func (a *Adapter) handleMessage(topic string, payload []byte) error {
	a.mu.RLock()
	bs := a.byTopic[topic]
	a.mu.RUnlock()
	if len(bs) == 0 {
		return nil
	}

	var order []string
	perDevice := make(map[string][]Binding)
	for _, b := range bs {
		if _, ok := perDevice[b.DeviceID]; !ok {
			order = append(order, b.DeviceID)
		}
		perDevice[b.DeviceID] = append(perDevice[b.DeviceID], b)
	}

	var errs []error
	for _, id := range order {
		if err := a.applyState(id, perDevice[id], payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var errUnchanged = errors.New("mqtt: no state change")

func (a *Adapter) applyState(deviceID string, bs []Binding, payload []byte) error {
	var decodeErrs []error
	updated, err := a.Devices.Update(deviceID, func(d *device.Device) error {
		changed := false
		for _, b := range bs {
			c, ok := d.Capability(b.Capability)
			if !ok {
				continue
			}
			st, err := a.codec.Decode(b, c.State, payload)
			if errors.Is(err, ErrNoValue) {
				continue
			}
			if err != nil {
				decodeErrs = append(decodeErrs, fmt.Errorf("%s/%s: %w", deviceID, b.Capability, err))
				continue
			}
			if err := c.SetState(st); err != nil {
				decodeErrs = append(decodeErrs, err)
				continue
			}
			changed = true
		}
		if !changed {
			return errUnchanged
		}
		now := time.Now()
		d.Online = true
		d.LastSeen = &now
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return err
	}
	if updated != nil {
		a.EmitStateChanged(updated)
	}
	return errors.Join(decodeErrs...)
}

// DiscoverDevices returns the current inventory and announces new devices.
func (a *Adapter) DiscoverDevices(context.Context) ([]*device.Device, error) {
	if _, err := a.checkReady(a.Kind() + ".DiscoverDevices"); err != nil {
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

// DiscoverScenes always returns an empty list; brokers have no scene concept.
func (a *Adapter) DiscoverScenes(context.Context) ([]device.Scene, error) {
	if _, err := a.checkReady(a.Kind() + ".DiscoverScenes"); err != nil {
		return nil, err
	}
	return []device.Scene{}, nil
}

// DiscoverAreas returns the areas referenced by discovered devices.
func (a *Adapter) DiscoverAreas(context.Context) ([]device.Area, error) {
	if _, err := a.checkReady(a.Kind() + ".DiscoverAreas"); err != nil {
		return nil, err
	}
	return a.Devices.Areas(), nil
}

// GetDeviceState returns the last known state of a device.
func (a *Adapter) GetDeviceState(_ context.Context, id string) (*device.Device, error) {
	return a.Devices.Get(id)
}

// Binding returns the binding for a device capability.
func (a *Adapter) Binding(deviceID string, c device.CapabilityType) (Binding, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.bindings[deviceID][c]
	return b, ok
}

// ExecuteCommand encodes cmd and publishes it to the capability's command
// topic. State is not changed until the device reports it.
func (a *Adapter) ExecuteCommand(_ context.Context, cmd device.DeviceCommand) error {
	op := a.Kind() + ".ExecuteCommand"
	client, err := a.checkReady(op)
	if err != nil {
		return err
	}
	if _, err := a.Devices.Get(cmd.DeviceID); err != nil {
		return err
	}
	b, ok := a.Binding(cmd.DeviceID, cmd.Capability)
	if !ok {
		return device.Errorf(device.KindNotFound, op, "%w: %s on %s", device.ErrCapabilityNotFound, cmd.Capability, cmd.DeviceID)
	}
	if b.CommandTopic == "" {
		return device.Errorf(device.KindValidation, op, "%w: %s on %s is read-only", device.ErrNotSupported, cmd.Capability, cmd.DeviceID)
	}

	payload, err := a.codec.Encode(b, cmd)
	if err != nil {
		return err
	}
	if err := client.Publish(b.CommandTopic, payload, commandQoS, false); err != nil {
		return device.NewError(device.KindNetwork, op, err)
	}
	a.Logger().Debug("mqtt command published",
		"adapter_id", a.ID(),
		"device_id", cmd.DeviceID,
		"action", cmd.Action,
		"topic", b.CommandTopic,
	)
	return nil
}

// ExecuteScene always fails: scenes are not supported over plain MQTT.
func (a *Adapter) ExecuteScene(_ context.Context, cmd device.SceneCommand) error {
	return device.Errorf(device.KindValidation, a.Kind()+".ExecuteScene", "%w: scene %s: %s adapter has no scenes", device.ErrNotSupported, cmd.SceneID, a.Kind())
}

// Refresh reruns discovery and resubscribes. Retained state messages repopulate
// capability state.
func (a *Adapter) Refresh(ctx context.Context) error {
	client, err := a.checkReady(a.Kind() + ".Refresh")
	if err != nil {
		return err
	}
	return a.sync(ctx, client)
}
