package hub

import (
	"errors"
	"reflect"
	"testing"

	"github.com/nerrad567/gray-logic-adapters/internal/device"
)

func TestCapabilitiesFor(t *testing.T) {
	tests := []struct {
		name string
		e    entityState
		want []device.CapabilityType
	}{
		{"on/off light", entityState{EntityID: "light.a", Attributes: map[string]any{"supported_color_modes": []any{"onoff"}}},
			[]device.CapabilityType{device.CapLight}},
		{"dimmable light", entityState{EntityID: "light.a", Attributes: map[string]any{"supported_color_modes": []any{"brightness"}}},
			[]device.CapabilityType{device.CapLight, device.CapDimmer}},
		{"colour light", entityState{EntityID: "light.a", Attributes: map[string]any{"supported_color_modes": []any{"xy", "color_temp"}}},
			[]device.CapabilityType{device.CapLight, device.CapDimmer, device.CapColorLight}},
		{"climate with humidity", entityState{EntityID: "climate.a", Attributes: map[string]any{"current_humidity": 40.0}},
			[]device.CapabilityType{device.CapClimate}},
		{"plain climate", entityState{EntityID: "climate.a"}, []device.CapabilityType{device.CapThermostat}},
		{"fan", entityState{EntityID: "fan.a"}, []device.CapabilityType{device.CapSwitch}},
		{"alarm", entityState{EntityID: "alarm_control_panel.a"}, []device.CapabilityType{device.CapAlarm}},
		{"camera", entityState{EntityID: "camera.a"}, nil},
		{"unmapped", entityState{EntityID: "automation.a"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := capabilitiesFor(tt.e); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("capabilitiesFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStateFor(t *testing.T) {
	tests := []struct {
		name string
		c    device.CapabilityType
		e    entityState
		want device.CapabilityState
	}{
		{"dimmer off", device.CapDimmer, entityState{EntityID: "light.a", State: "off"}, device.DimmerState{}},
		{"dimmer full", device.CapDimmer, entityState{EntityID: "light.a", State: "on", Attributes: map[string]any{"brightness": 255.0}},
			device.DimmerState{Brightness: 100}},
		{"vacuum cleaning", device.CapSwitch, entityState{EntityID: "vacuum.a", State: "cleaning"}, device.SwitchState{On: true}},
		{"vacuum docked", device.CapSwitch, entityState{EntityID: "vacuum.a", State: "docked"}, device.SwitchState{}},
		{"lock", device.CapLock, entityState{EntityID: "lock.a", State: "locked"}, device.LockState{Locked: true}},
		{"cover closing", device.CapCover, entityState{EntityID: "cover.a", State: "closing", Attributes: map[string]any{"current_position": 30.0}},
			device.CoverState{Position: 30, Moving: "closing"}},
		{"cover closed", device.CapCover, entityState{EntityID: "cover.a", State: "closed"}, device.CoverState{}},
		{"alarm armed", device.CapAlarm, entityState{EntityID: "alarm_control_panel.a", State: "armed_home"},
			device.AlarmState{Armed: true, Mode: "armed_home"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stateFor(tt.c, tt.e, nil); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("stateFor() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSensorState(t *testing.T) {
	st := sensorState(entityState{
		EntityID:   "sensor.power",
		State:      "231.4",
		Attributes: map[string]any{"device_class": "power", "unit_of_measurement": "W"},
	}).(device.SensorState)
	if st.Values["power"] != 231.4 || st.Units["power"] != "W" {
		t.Errorf("sensorState() = %#v", st)
	}

	st = sensorState(entityState{EntityID: "sensor.mode", State: "eco"}).(device.SensorState)
	if st.Values["value"] != "eco" {
		t.Errorf("non-numeric sensorState() = %#v, want raw string", st)
	}

	st = sensorState(entityState{EntityID: "binary_sensor.motion", State: "on", Attributes: map[string]any{"device_class": "motion"}}).(device.SensorState)
	if st.Values["motion"] != true {
		t.Errorf("binary sensorState() = %#v, want motion true", st)
	}
}

func TestApplyEntity_Unavailable(t *testing.T) {
	d := deviceFor("home", entityState{EntityID: "switch.a", State: "on"})
	applyEntity(d, entityState{EntityID: "switch.a", State: stateUnavailable})
	if d.Online {
		t.Error("Online = true for unavailable entity")
	}
	if c, _ := d.Capability(device.CapSwitch); c.State != (device.SwitchState{On: true}) {
		t.Errorf("state = %#v, want last known state kept", c.State)
	}
}

func TestCallFor_Vacuum(t *testing.T) {
	on, _ := device.NewDeviceCommand("vacuum.a", "switch", "turn_on", nil)
	off, _ := device.NewDeviceCommand("vacuum.a", "switch", "turn_off", nil)

	if c, err := callFor("vacuum", on); err != nil || c.Service != "start" {
		t.Errorf("callFor(turn_on) = %+v, %v, want start", c, err)
	}
	if c, err := callFor("vacuum", off); err != nil || c.Service != "return_to_base" {
		t.Errorf("callFor(turn_off) = %+v, %v, want return_to_base", c, err)
	}
	toggle, _ := device.NewDeviceCommand("vacuum.a", "switch", "toggle", nil)
	if _, err := callFor("vacuum", toggle); !errors.Is(err, device.ErrActionNotSupported) {
		t.Errorf("callFor(toggle) error = %v, want ErrActionNotSupported", err)
	}
}

func TestCallFor_MediaAndAlarm(t *testing.T) {
	tests := []struct {
		domain, capability, action, service string
	}{
		{"media_player", "media_player", "play", "media_play"},
		{"media_player", "media_player", "pause", "media_pause"},
		{"alarm_control_panel", "alarm", "arm", "alarm_arm_away"},
		{"alarm_control_panel", "alarm", "disarm", "alarm_disarm"},
		{"climate", "thermostat", "turn_off", "turn_off"},
	}
	for _, tt := range tests {
		cmd, err := device.NewDeviceCommand(tt.domain+".x", tt.capability, tt.action, nil)
		if err != nil {
			t.Fatalf("NewDeviceCommand() error = %v", err)
		}
		c, err := callFor(tt.domain, cmd)
		if err != nil || c.Domain != tt.domain || c.Service != tt.service {
			t.Errorf("callFor(%s %s) = %+v, %v, want %s", tt.domain, tt.action, c, err, tt.service)
		}
	}
}

func TestBrightnessScaling(t *testing.T) {
	for _, tt := range []struct{ pct, hub int }{{0, 0}, {1, 3}, {50, 128}, {100, 255}} {
		if got := toHubBrightness(tt.pct); got != tt.hub {
			t.Errorf("toHubBrightness(%d) = %d, want %d", tt.pct, got, tt.hub)
		}
	}
	if got := fromHubBrightness(300); got != 100 {
		t.Errorf("fromHubBrightness(300) = %d, want clamp to 100", got)
	}
}
