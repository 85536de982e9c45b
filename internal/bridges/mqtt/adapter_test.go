package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-adapters/internal/adapter"
	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/mqtt/mqtttest"
)

func brokerDialer(b *mqtttest.Broker) Dialer {
	return func(ctx context.Context, cfg config.MQTTConfig, onLost func(error)) (Client, error) {
		s, err := b.Dial(ctx, cfg, onLost)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func testDevices() []config.MQTTDeviceConfig {
	return []config.MQTTDeviceConfig{
		{
			ID:     "light.porch",
			Name:   "Porch light",
			Type:   "light",
			AreaID: "front_garden",
			Capabilities: []config.MQTTCapabilityConfig{
				{Type: "switch", StateTopic: "home/porch/state", CommandTopic: "home/porch/set", Format: "json"},
				{Type: "dimmer", StateTopic: "home/porch/state", CommandTopic: "home/porch/set", Format: "json"},
			},
		},
		{
			ID:   "switch.pump",
			Name: "Pond pump",
			Type: "switch",
			Capabilities: []config.MQTTCapabilityConfig{
				{Type: "switch", StateTopic: "pump/power", CommandTopic: "pump/power/set", Format: "raw", PayloadOn: "1", PayloadOff: "0"},
			},
		},
		{
			ID:   "sensor.shed",
			Name: "Shed sensor",
			Type: "sensor",
			Capabilities: []config.MQTTCapabilityConfig{
				{Type: "sensor", StateTopic: "shed/climate", Format: "json"},
			},
		},
	}
}

func newTestAdapter(t *testing.T, b *mqtttest.Broker) *Adapter {
	t.Helper()
	a := New(Options{
		Config:     adapter.Config{ID: "broker", HealthCheckInterval: -1, ReconnectDelay: time.Millisecond},
		Discoverer: StaticDiscoverer{AdapterID: "broker", Devices: testDevices()},
		Dialer:     brokerDialer(b),
		After: func(time.Duration) <-chan time.Time {
			ch := make(chan time.Time, 1)
			ch <- time.Now()
			return ch
		},
	})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestAdapter_StatePayloadUpdatesCapabilities(t *testing.T) {
	b := mqtttest.NewBroker()
	a := newTestAdapter(t, b)

	var events []adapter.Event
	a.Subscribe(func(e adapter.Event) { events = append(events, e) })

	b.Inject("home/porch/state", []byte(`{"state":"ON","brightness":80}`), false)

	d, err := a.GetDeviceState(context.Background(), "light.porch")
	if err != nil {
		t.Fatalf("GetDeviceState() error = %v", err)
	}
	sw, _ := d.Capability(device.CapSwitch)
	if got, want := sw.State, (device.SwitchState{On: true}); got != want {
		t.Errorf("switch state = %#v, want %#v", got, want)
	}
	dim, _ := d.Capability(device.CapDimmer)
	if got, want := dim.State, (device.DimmerState{Brightness: 80}); got != want {
		t.Errorf("dimmer state = %#v, want %#v", got, want)
	}
	if d.LastSeen == nil {
		t.Error("LastSeen not stamped")
	}

	if len(events) != 1 || events[0].Type != adapter.EventStateChanged || events[0].DeviceID != "light.porch" {
		t.Errorf("events = %+v, want one state_changed for light.porch", events)
	}
}

func TestAdapter_RawPayloadUsesConfiguredTokens(t *testing.T) {
	b := mqtttest.NewBroker()
	a := newTestAdapter(t, b)

	b.Inject("pump/power", []byte("1"), false)
	d, _ := a.GetDeviceState(context.Background(), "switch.pump")
	if c, _ := d.Capability(device.CapSwitch); c.State != (device.SwitchState{On: true}) {
		t.Errorf("state after 1 = %#v, want on", c.State)
	}

	b.Inject("pump/power", []byte("0"), false)
	d, _ = a.GetDeviceState(context.Background(), "switch.pump")
	if c, _ := d.Capability(device.CapSwitch); c.State != (device.SwitchState{On: false}) {
		t.Errorf("state after 0 = %#v, want off", c.State)
	}
}

func TestAdapter_SensorMergesReadings(t *testing.T) {
	b := mqtttest.NewBroker()
	a := newTestAdapter(t, b)

	b.Inject("shed/climate", []byte(`{"temperature":12.5}`), false)
	b.Inject("shed/climate", []byte(`{"humidity":70}`), false)

	d, _ := a.GetDeviceState(context.Background(), "sensor.shed")
	c, _ := d.Capability(device.CapSensor)
	st := c.State.(device.SensorState)
	if st.Values["temperature"] != 12.5 || st.Values["humidity"] != float64(70) {
		t.Errorf("sensor values = %v, want temperature and humidity", st.Values)
	}
}

func TestAdapter_ExecuteCommandPublishes(t *testing.T) {
	b := mqtttest.NewBroker()
	a := newTestAdapter(t, b)
	ctx := context.Background()

	on, _ := device.NewDeviceCommand("light.porch", "switch", "turn_on", nil)
	if err := a.ExecuteCommand(ctx, on); err != nil {
		t.Fatalf("ExecuteCommand(turn_on) error = %v", err)
	}
	dim, _ := device.NewDeviceCommand("light.porch", "dimmer", "set_brightness", map[string]any{"brightness": 55})
	if err := a.ExecuteCommand(ctx, dim); err != nil {
		t.Fatalf("ExecuteCommand(set_brightness) error = %v", err)
	}
	off, _ := device.NewDeviceCommand("switch.pump", "switch", "turn_off", nil)
	if err := a.ExecuteCommand(ctx, off); err != nil {
		t.Fatalf("ExecuteCommand(pump off) error = %v", err)
	}

	msgs := b.Published()
	if len(msgs) != 3 {
		t.Fatalf("published %d messages, want 3", len(msgs))
	}
	var first map[string]any
	if err := json.Unmarshal(msgs[0].Payload, &first); err != nil || first["state"] != "ON" {
		t.Errorf("turn_on payload = %s, want {\"state\":\"ON\"}", msgs[0].Payload)
	}
	if string(msgs[1].Payload) != `{"brightness":55}` {
		t.Errorf("set_brightness payload = %s", msgs[1].Payload)
	}
	if msgs[2].Topic != "pump/power/set" || string(msgs[2].Payload) != "0" {
		t.Errorf("raw payload = %s on %s, want 0 on pump/power/set", msgs[2].Payload, msgs[2].Topic)
	}
	for _, m := range msgs {
		if m.QoS != 1 || m.Retained {
			t.Errorf("publish to %s qos=%d retained=%v, want qos 1 not retained", m.Topic, m.QoS, m.Retained)
		}
	}
}

func TestAdapter_ExecuteCommandErrors(t *testing.T) {
	b := mqtttest.NewBroker()
	a := newTestAdapter(t, b)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  device.DeviceCommand
		kind device.Kind
		is   error
	}{
		{
			name: "unknown device",
			cmd:  device.DeviceCommand{DeviceID: "nope", Capability: device.CapSwitch, Action: device.ActionTurnOn},
			kind: device.KindNotFound,
			is:   device.ErrDeviceNotFound,
		},
		{
			name: "unmapped capability",
			cmd:  device.DeviceCommand{DeviceID: "switch.pump", Capability: device.CapLock, Action: device.ActionLock},
			kind: device.KindNotFound,
			is:   device.ErrCapabilityNotFound,
		},
		{
			name: "read-only capability",
			cmd:  device.DeviceCommand{DeviceID: "sensor.shed", Capability: device.CapSensor, Action: device.ActionTurnOn},
			kind: device.KindValidation,
			is:   device.ErrNotSupported,
		},
		{
			name: "unsupported action",
			cmd:  device.DeviceCommand{DeviceID: "switch.pump", Capability: device.CapSwitch, Action: device.ActionUnlock},
			kind: device.KindNotFound,
			is:   device.ErrActionNotSupported,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.ExecuteCommand(ctx, tt.cmd)
			if !errors.Is(err, tt.is) {
				t.Errorf("error = %v, want %v", err, tt.is)
			}
			if got := device.KindOf(err); got != tt.kind {
				t.Errorf("KindOf = %s, want %s", got, tt.kind)
			}
		})
	}
}

func TestAdapter_ExecuteSceneNotSupported(t *testing.T) {
	b := mqtttest.NewBroker()
	a := newTestAdapter(t, b)

	err := a.ExecuteScene(context.Background(), device.SceneCommand{SceneID: "scene.any"})
	if !errors.Is(err, device.ErrNotSupported) {
		t.Errorf("ExecuteScene() error = %v, want ErrNotSupported", err)
	}
	if device.KindOf(err) != device.KindValidation {
		t.Errorf("KindOf = %s, want VALIDATION", device.KindOf(err))
	}
}

func TestAdapter_Discovery(t *testing.T) {
	b := mqtttest.NewBroker()
	a := newTestAdapter(t, b)
	ctx := context.Background()

	var discovered int
	a.Subscribe(func(e adapter.Event) {
		if e.Type == adapter.EventDeviceDiscovered {
			discovered++
		}
	})

	devices, err := a.DiscoverDevices(ctx)
	if err != nil {
		t.Fatalf("DiscoverDevices() error = %v", err)
	}
	if len(devices) != 3 {
		t.Errorf("len(devices) = %d, want 3", len(devices))
	}
	if _, err := a.DiscoverDevices(ctx); err != nil {
		t.Fatal(err)
	}
	if discovered != 3 {
		t.Errorf("device_discovered events = %d, want 3 (once per device)", discovered)
	}

	areas, _ := a.DiscoverAreas(ctx)
	if len(areas) != 1 || areas[0].Name != "Front Garden" {
		t.Errorf("areas = %+v, want Front Garden", areas)
	}
	scenes, _ := a.DiscoverScenes(ctx)
	if len(scenes) != 0 {
		t.Errorf("scenes = %+v, want none", scenes)
	}
}

func TestAdapter_InitializeFailsWhenBrokerRefuses(t *testing.T) {
	b := mqtttest.NewBroker()
	b.Refuse(true)
	a := New(Options{
		Config:     adapter.Config{ID: "broker", HealthCheckInterval: -1},
		Discoverer: StaticDiscoverer{AdapterID: "broker", Devices: testDevices()},
		Dialer:     brokerDialer(b),
	})

	err := a.Initialize(context.Background())
	if device.KindOf(err) != device.KindNetwork {
		t.Fatalf("Initialize() error = %v, want NETWORK", err)
	}
	if st := a.Status(); st.Connected || st.Healthy {
		t.Errorf("Status() = %+v, want disconnected", st)
	}

	_, err = a.DiscoverDevices(context.Background())
	if !errors.Is(err, adapter.ErrNotConnected) {
		t.Errorf("DiscoverDevices() error = %v, want ErrNotConnected", err)
	}
}

func TestAdapter_ReconnectsAfterConnectionLoss(t *testing.T) {
	b := mqtttest.NewBroker()
	a := newTestAdapter(t, b)

	reconnected := make(chan struct{}, 1)
	a.Subscribe(func(e adapter.Event) {
		if e.Type == adapter.EventConnected {
			reconnected <- struct{}{}
		}
	})

	b.DropAll(errors.New("broker restarted"))

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("adapter did not reconnect")
	}
	if b.Dials() != 2 {
		t.Errorf("Dials() = %d, want 2", b.Dials())
	}

	// Subscriptions are restored on the new session.
	b.Inject("pump/power", []byte("1"), false)
	d, _ := a.GetDeviceState(context.Background(), "switch.pump")
	if c, _ := d.Capability(device.CapSwitch); c.State != (device.SwitchState{On: true}) {
		t.Errorf("state after reconnect = %#v, want on", c.State)
	}
}

func TestStaticInventory_RejectsBadTopics(t *testing.T) {
	devs := []config.MQTTDeviceConfig{{
		ID: "bad", Name: "Bad",
		Capabilities: []config.MQTTCapabilityConfig{{Type: "switch", CommandTopic: "home/+/set"}},
	}}
	_, err := StaticInventory("broker", devs)
	if device.KindOf(err) != device.KindConfiguration {
		t.Errorf("StaticInventory() error = %v, want CONFIGURATION", err)
	}

	devs[0].Capabilities[0] = config.MQTTCapabilityConfig{Type: "teleporter", StateTopic: "a/b"}
	if _, err := StaticInventory("broker", devs); err == nil {
		t.Error("StaticInventory() accepted unknown capability")
	}
}
