package zigbee2mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-adapters/internal/adapter"
	"github.com/nerrad567/gray-logic-adapters/internal/bridges/mqtt"
	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/mqtt/mqtttest"
)

const testDeviceList = `[
  {"ieee_address":"0x0000000000000000","friendly_name":"Coordinator","type":"Coordinator","supported":false},
  {"ieee_address":"0x00158d0001a1b2c3","friendly_name":"kitchen/ceiling","type":"Router","supported":true,"disabled":false,
   "definition":{"model":"LED1545G12","vendor":"IKEA","description":"TRADFRI bulb","exposes":[
     {"type":"light","features":[
       {"type":"binary","name":"state","property":"state","access":7,"value_on":"ON","value_off":"OFF"},
       {"type":"numeric","name":"brightness","property":"brightness","access":7,"value_min":0,"value_max":254},
       {"type":"composite","name":"color_xy","property":"color","access":7,"features":[
         {"type":"numeric","name":"x","property":"x","access":7},
         {"type":"numeric","name":"y","property":"y","access":7}]}]},
     {"type":"numeric","name":"linkquality","property":"linkquality","access":1,"unit":"lqi"}]}},
  {"ieee_address":"0x00158d0002c3d4e5","friendly_name":"hall_trv","type":"EndDevice","supported":true,
   "definition":{"model":"SPZB0001","vendor":"Eurotronic","exposes":[
     {"type":"climate","features":[
       {"type":"numeric","name":"current_heating_setpoint","property":"current_heating_setpoint","access":7,"value_min":5,"value_max":30,"unit":"°C"},
       {"type":"numeric","name":"local_temperature","property":"local_temperature","access":5,"unit":"°C"},
       {"type":"enum","name":"system_mode","property":"system_mode","access":7,"values":["off","auto","heat"]}]},
     {"type":"numeric","name":"battery","property":"battery","access":1,"unit":"%"}]}},
  {"ieee_address":"0x00158d0003e5f6a7","friendly_name":"front_door","type":"EndDevice","supported":true,
   "definition":{"model":"YRD226","vendor":"Yale","exposes":[
     {"type":"lock","features":[
       {"type":"binary","name":"state","property":"state","access":7,"value_on":"LOCK","value_off":"UNLOCK"},
       {"type":"enum","name":"lock_state","property":"lock_state","access":1}]}]}},
  {"ieee_address":"0x00158d0004aaaaaa","friendly_name":"remote","type":"EndDevice","supported":true,
   "definition":{"model":"E1524","vendor":"IKEA","exposes":[
     {"type":"enum","name":"action","property":"action","access":1},
     {"type":"numeric","name":"linkquality","property":"linkquality","access":1}]}},
  {"ieee_address":"0x00158d0005bbbbbb","friendly_name":"old_plug","type":"Router","supported":true,"disabled":true,
   "definition":{"exposes":[{"type":"switch","features":[{"type":"binary","property":"state","access":7}]}]}},
  {"ieee_address":"0x00158d0006cccccc","friendly_name":"mystery","type":"EndDevice","supported":false}
]`

var (
	kitchenID = DeviceID("0x00158d0001a1b2c3")
	trvID     = DeviceID("0x00158d0002c3d4e5")
	doorID    = DeviceID("0x00158d0003e5f6a7")
)

// newBridge returns a broker that answers device-list requests the way a
// running Zigbee2MQTT bridge does.
func newBridge(list string) *mqtttest.Broker {
	b := mqtttest.NewBroker()
	b.OnPublish(func(m mqtttest.Message) {
		if m.Topic == "zigbee2mqtt/bridge/request/devices" {
			b.Inject("zigbee2mqtt/bridge/devices", []byte(list), true)
		}
	})
	return b
}

func dialer(b *mqtttest.Broker) mqtt.Dialer {
	return func(ctx context.Context, cfg config.MQTTConfig, onLost func(error)) (mqtt.Client, error) {
		s, err := b.Dial(ctx, cfg, onLost)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func newTestAdapter(t *testing.T, b *mqtttest.Broker, bridge config.Zigbee2MQTTConfig) (*Adapter, error) {
	t.Helper()
	z := New(Options{
		Config: adapter.Config{ID: "zigbee", HealthCheckInterval: -1},
		Bridge: bridge,
		Dialer: dialer(b),
	})
	err := z.Initialize(context.Background())
	t.Cleanup(func() { _ = z.Shutdown(context.Background()) })
	return z, err
}

func mustInit(t *testing.T, b *mqtttest.Broker, bridge config.Zigbee2MQTTConfig) *Adapter {
	t.Helper()
	z, err := newTestAdapter(t, b, bridge)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return z
}

func TestDiscovery(t *testing.T) {
	b := newBridge(testDeviceList)
	z := mustInit(t, b, config.Zigbee2MQTTConfig{})

	if got := b.PublishedTo("zigbee2mqtt/bridge/request/devices"); len(got) != 1 || string(got[0]) != "{}" {
		t.Errorf("device list requests = %q, want one {}", got)
	}

	devices, err := z.DiscoverDevices(context.Background())
	if err != nil {
		t.Fatalf("DiscoverDevices() error = %v", err)
	}
	want := map[string]device.DeviceType{
		kitchenID: device.DeviceTypeLight,
		trvID:     device.DeviceTypeThermostat,
		doorID:    device.DeviceTypeLock,
	}
	if len(devices) != len(want) {
		t.Fatalf("len(devices) = %d, want %d: %+v", len(devices), len(want), devices)
	}
	for _, d := range devices {
		typ, ok := want[d.ID]
		if !ok {
			t.Errorf("unexpected device %s (%s)", d.ID, d.Name)
			continue
		}
		if d.Type != typ {
			t.Errorf("%s type = %s, want %s", d.Name, d.Type, typ)
		}
		if d.AdapterID != "zigbee" {
			t.Errorf("%s AdapterID = %q, want zigbee", d.Name, d.AdapterID)
		}
	}

	kitchen, _ := z.GetDeviceState(context.Background(), kitchenID)
	for _, c := range []device.CapabilityType{device.CapLight, device.CapDimmer, device.CapColorLight} {
		if !kitchen.HasCapability(c) {
			t.Errorf("kitchen light missing %s", c)
		}
	}
	if kitchen.HasCapability(device.CapSensor) {
		t.Error("linkquality should not produce a sensor capability")
	}
	if kitchen.NativeID != "0x00158d0001a1b2c3" || kitchen.Manufacturer != "IKEA" || kitchen.AreaID != "kitchen" {
		t.Errorf("kitchen = native %q manufacturer %q area %q", kitchen.NativeID, kitchen.Manufacturer, kitchen.AreaID)
	}

	areas, _ := z.DiscoverAreas(context.Background())
	if len(areas) != 1 || areas[0].ID != "kitchen" || areas[0].Name != "Kitchen" {
		t.Errorf("areas = %+v, want kitchen", areas)
	}
}

func TestDiscovery_IncludeExclude(t *testing.T) {
	tests := []struct {
		name   string
		bridge config.Zigbee2MQTTConfig
		want   []string
	}{
		{
			name:   "include by name and address",
			bridge: config.Zigbee2MQTTConfig{Include: []string{"front_door", "0x00158D0002C3D4E5"}},
			want:   []string{trvID, doorID},
		},
		{
			name:   "exclude by name",
			bridge: config.Zigbee2MQTTConfig{Exclude: []string{"kitchen/ceiling"}},
			want:   []string{trvID, doorID},
		},
		{
			name:   "include cannot resurrect disabled devices",
			bridge: config.Zigbee2MQTTConfig{Include: []string{"old_plug"}},
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := mustInit(t, newBridge(testDeviceList), tt.bridge)
			devices, err := z.DiscoverDevices(context.Background())
			if err != nil {
				t.Fatalf("DiscoverDevices() error = %v", err)
			}
			if len(devices) != len(tt.want) {
				t.Fatalf("len(devices) = %d, want %d", len(devices), len(tt.want))
			}
			for i, d := range devices {
				if d.ID != tt.want[i] {
					t.Errorf("devices[%d] = %s, want %s", i, d.ID, tt.want[i])
				}
			}
		})
	}
}

func TestDiscovery_Timeout(t *testing.T) {
	b := mqtttest.NewBroker()
	_, err := newTestAdapter(t, b, config.Zigbee2MQTTConfig{DiscoveryTimeoutMs: 30})
	if err == nil {
		t.Fatal("Initialize() succeeded without a device list")
	}
	if device.KindOf(err) != device.KindTimeout {
		t.Errorf("KindOf = %s, want TIMEOUT (%v)", device.KindOf(err), err)
	}
	if !device.IsRetryable(err) {
		t.Error("discovery timeout should be retryable")
	}
}

func TestStateUpdates(t *testing.T) {
	b := newBridge(testDeviceList)
	z := mustInit(t, b, config.Zigbee2MQTTConfig{})
	ctx := context.Background()

	b.Inject("zigbee2mqtt/kitchen/ceiling", []byte(`{"state":"ON","brightness":127,"linkquality":90}`), false)
	kitchen, _ := z.GetDeviceState(ctx, kitchenID)
	if c, _ := kitchen.Capability(device.CapLight); c.State != (device.LightState{On: true}) {
		t.Errorf("light state = %#v, want on", c.State)
	}
	if c, _ := kitchen.Capability(device.CapDimmer); c.State != (device.DimmerState{Brightness: 50}) {
		t.Errorf("dimmer state = %#v, want 50", c.State)
	}

	b.Inject("zigbee2mqtt/hall_trv", []byte(`{"current_heating_setpoint":21,"local_temperature":19.5,"system_mode":"heat","battery":80}`), false)
	trv, _ := z.GetDeviceState(ctx, trvID)
	c, _ := trv.Capability(device.CapThermostat)
	st, ok := c.State.(device.ThermostatState)
	if !ok || st.TargetTemperature == nil || *st.TargetTemperature != 21 || st.Temperature == nil || *st.Temperature != 19.5 || st.Mode != device.ModeHeat {
		t.Errorf("thermostat state = %+v", c.State)
	}
	sc, _ := trv.Capability(device.CapSensor)
	if s, ok := sc.State.(device.SensorState); !ok || s.Values["battery"] != float64(80) || s.Units["battery"] != "%" {
		t.Errorf("sensor state = %+v, want battery 80%%", sc.State)
	}

	b.Inject("zigbee2mqtt/front_door", []byte(`{"state":"UNLOCK","lock_state":"unlocked"}`), false)
	door, _ := z.GetDeviceState(ctx, doorID)
	if c, _ := door.Capability(device.CapLock); c.State != (device.LockState{Locked: false}) {
		t.Errorf("lock state = %#v, want unlocked", c.State)
	}
}

func TestExecuteCommand(t *testing.T) {
	b := newBridge(testDeviceList)
	z := mustInit(t, b, config.Zigbee2MQTTConfig{})
	ctx := context.Background()

	tests := []struct {
		deviceID, capability, action string
		params                       map[string]any
		topic, want                  string
	}{
		{kitchenID, "light", "turn_on", nil, "zigbee2mqtt/kitchen/ceiling/set", `{"state":"ON"}`},
		{kitchenID, "dimmer", "set_brightness", map[string]any{"brightness": 100}, "zigbee2mqtt/kitchen/ceiling/set", `{"brightness":254}`},
		{trvID, "thermostat", "set_temperature", map[string]any{"temperature": 22.5}, "zigbee2mqtt/hall_trv/set", `{"current_heating_setpoint":22.5}`},
		{trvID, "thermostat", "set_mode", map[string]any{"mode": "heat"}, "zigbee2mqtt/hall_trv/set", `{"system_mode":"heat"}`},
		{doorID, "lock", "unlock", nil, "zigbee2mqtt/front_door/set", `{"state":"UNLOCK"}`},
	}
	for _, tt := range tests {
		t.Run(tt.capability+"/"+tt.action, func(t *testing.T) {
			cmd, err := device.NewDeviceCommand(tt.deviceID, tt.capability, tt.action, tt.params)
			if err != nil {
				t.Fatalf("NewDeviceCommand() error = %v", err)
			}
			before := len(b.PublishedTo(tt.topic))
			if err := z.ExecuteCommand(ctx, cmd); err != nil {
				t.Fatalf("ExecuteCommand() error = %v", err)
			}
			got := b.PublishedTo(tt.topic)
			if len(got) != before+1 {
				t.Fatalf("publishes to %s = %d, want %d", tt.topic, len(got), before+1)
			}
			if string(got[len(got)-1]) != tt.want {
				t.Errorf("payload = %s, want %s", got[len(got)-1], tt.want)
			}
		})
	}

	err := z.ExecuteScene(ctx, device.SceneCommand{SceneID: "scene.any"})
	if !errors.Is(err, device.ErrNotSupported) {
		t.Errorf("ExecuteScene() error = %v, want ErrNotSupported", err)
	}
}

func TestBridgeStateTogglesConnected(t *testing.T) {
	b := newBridge(testDeviceList)
	z := mustInit(t, b, config.Zigbee2MQTTConfig{})

	events := make(chan adapter.EventType, 4)
	z.Subscribe(func(e adapter.Event) { events <- e.Type })

	b.Inject("zigbee2mqtt/bridge/state", []byte(`{"state":"offline"}`), true)
	if z.IsConnected() || z.BridgeOnline() {
		t.Fatal("adapter still connected after bridge went offline")
	}
	cmd, _ := device.NewDeviceCommand(kitchenID, "light", "turn_on", nil)
	if err := z.ExecuteCommand(context.Background(), cmd); device.KindOf(err) != device.KindNetwork {
		t.Errorf("ExecuteCommand() while offline error = %v, want NETWORK", err)
	}

	b.Inject("zigbee2mqtt/bridge/state", []byte("online"), true)
	if !z.IsConnected() || !z.BridgeOnline() {
		t.Fatal("adapter not connected after bridge came back online")
	}

	want := []adapter.EventType{adapter.EventDisconnected, adapter.EventConnected}
	for _, w := range want {
		select {
		case got := <-events:
			if got != w {
				t.Errorf("event = %s, want %s", got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %s event", w)
		}
	}
}
