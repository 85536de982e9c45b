package zigbee2mqtt

import (
	"slices"
	"strings"

	"github.com/nerrad567/gray-logic-adapters/internal/bridges/mqtt"
	"github.com/nerrad567/gray-logic-adapters/internal/device"
)

// bridgeDevice is one entry of <base>/bridge/devices.
type bridgeDevice struct {
	IEEEAddress  string      `json:"ieee_address"`
	FriendlyName string      `json:"friendly_name"`
	Type         string      `json:"type"`
	Supported    *bool       `json:"supported"`
	Disabled     bool        `json:"disabled"`
	Manufacturer string      `json:"manufacturer"`
	ModelID      string      `json:"model_id"`
	Definition   *definition `json:"definition"`
}

type definition struct {
	Model       string   `json:"model"`
	Vendor      string   `json:"vendor"`
	Description string   `json:"description"`
	Exposes     []expose `json:"exposes"`
}

// expose describes one property a device publishes or accepts. Specific
// exposes (light, switch, lock, cover, climate) group their properties
// under Features.
type expose struct {
	Type     string   `json:"type"`
	Name     string   `json:"name"`
	Property string   `json:"property"`
	Access   int      `json:"access"`
	Unit     string   `json:"unit"`
	ValueMin *float64 `json:"value_min"`
	ValueMax *float64 `json:"value_max"`
	ValueOn  any      `json:"value_on"`
	ValueOff any      `json:"value_off"`
	Features []expose `json:"features"`
}

// Access bits.
const (
	accessRead  = 1
	accessWrite = 2
)

const defaultBrightnessMax = 254

// Properties that describe the radio link or firmware rather than the device.
var diagnosticProperties = map[string]struct{}{
	"linkquality":      {},
	"update":           {},
	"update_available": {},
	"battery_low":      {},
}

func (e expose) readable() bool {
	// Access is omitted on some older converters; treat that as published.
	return e.Access == 0 || e.Access&accessRead != 0
}

func (e expose) writable() bool { return e.Access&accessWrite != 0 }

func (d bridgeDevice) supported() bool {
	return d.Supported == nil || *d.Supported
}

// mapping accumulates capabilities while walking a device's exposes.
type mapping struct {
	topics       Topics
	deviceID     string
	friendlyName string

	bindings []mqtt.Binding
	index    map[device.CapabilityType]int

	thermostat      map[string]string
	thermostatWrite bool
	sensor          map[string]string
	units           map[string]string
}

func newMapping(t Topics, deviceID, friendlyName string) *mapping {
	return &mapping{
		topics:       t,
		deviceID:     deviceID,
		friendlyName: friendlyName,
		index:        make(map[device.CapabilityType]int),
		thermostat:   make(map[string]string),
		sensor:       make(map[string]string),
		units:        make(map[string]string),
	}
}

// add records a binding unless the capability is already mapped. A later
// writable expose upgrades an earlier read-only binding.
func (m *mapping) add(c device.CapabilityType, e expose, b mqtt.Binding) {
	b.DeviceID = m.deviceID
	b.Capability = c
	b.Format = mqtt.FormatJSON
	b.StateTopic = m.topics.Device(m.friendlyName)
	if e.writable() {
		b.CommandTopic = m.topics.DeviceSet(m.friendlyName)
	}
	if i, ok := m.index[c]; ok {
		if m.bindings[i].CommandTopic == "" && b.CommandTopic != "" {
			m.bindings[i].CommandTopic = b.CommandTopic
		}
		return
	}
	m.index[c] = len(m.bindings)
	m.bindings = append(m.bindings, b)
}

// walk maps e and its nested features. parent is the enclosing specific
// expose type ("light", "lock", ...), or empty at the top level.
func (m *mapping) walk(e expose, parent string) {
	kind := strings.ToLower(e.Type)
	prop := strings.ToLower(e.Property)

	if len(e.Features) > 0 {
		if kind == "composite" && (prop == "color" || strings.HasPrefix(strings.ToLower(e.Name), "color")) {
			m.add(device.CapColorLight, e, mqtt.Binding{Property: "color"})
			return
		}
		if kind == "composite" {
			// Other composites (presets, schedules) carry no capability state.
			return
		}
		for _, f := range e.Features {
			m.walk(f, kind)
		}
		return
	}

	switch {
	case prop == "state" && parent == "lock":
		m.add(device.CapLock, e, mqtt.Binding{
			Property:   "state",
			PayloadOn:  tokenOr(e.ValueOn, "LOCK"),
			PayloadOff: tokenOr(e.ValueOff, "UNLOCK"),
		})
	case prop == "state" && parent == "cover":
		m.add(device.CapCover, e, mqtt.Binding{Property: "position"})
	case prop == "position":
		m.add(device.CapCover, e, mqtt.Binding{Property: "position"})
	case parent == "cover":
		// tilt and motor settings have no capability.
	case prop == "state" && kind == "binary":
		c := device.CapSwitch
		if parent == "light" {
			c = device.CapLight
		}
		m.add(c, e, mqtt.Binding{
			Property:   "state",
			PayloadOn:  tokenOr(e.ValueOn, "ON"),
			PayloadOff: tokenOr(e.ValueOff, "OFF"),
		})
	case prop == "brightness" && kind == "numeric":
		scale := float64(defaultBrightnessMax)
		if e.ValueMax != nil && *e.ValueMax > 0 {
			scale = *e.ValueMax
		}
		m.add(device.CapDimmer, e, mqtt.Binding{Property: "brightness", Scale: scale})
	case prop == "current_heating_setpoint" || prop == "occupied_heating_setpoint":
		m.thermostat[mqtt.RoleTarget] = e.Property
		m.thermostatWrite = m.thermostatWrite || e.writable()
	case prop == "local_temperature":
		m.thermostat[mqtt.RoleTemperature] = e.Property
	case prop == "system_mode":
		m.thermostat[mqtt.RoleMode] = e.Property
		m.thermostatWrite = m.thermostatWrite || e.writable()
	case kind == "numeric" || kind == "binary":
		if _, skip := diagnosticProperties[prop]; skip || prop == "" || !e.readable() {
			return
		}
		m.sensor[e.Property] = e.Property
		if e.Unit != "" {
			m.units[e.Property] = e.Unit
		}
	}
}

// finish folds the accumulated thermostat and sensor fields into bindings.
func (m *mapping) finish() []mqtt.Binding {
	if _, ok := m.thermostat[mqtt.RoleTarget]; ok {
		b := mqtt.Binding{
			DeviceID:   m.deviceID,
			Capability: device.CapThermostat,
			Format:     mqtt.FormatJSON,
			StateTopic: m.topics.Device(m.friendlyName),
			Fields:     m.thermostat,
		}
		if m.thermostatWrite {
			b.CommandTopic = m.topics.DeviceSet(m.friendlyName)
		}
		m.bindings = append(m.bindings, b)
	} else if temp, ok := m.thermostat[mqtt.RoleTemperature]; ok {
		// A bare temperature reading without a setpoint is a sensor.
		m.sensor[temp] = temp
	}
	if len(m.sensor) > 0 {
		m.bindings = append(m.bindings, mqtt.Binding{
			DeviceID:   m.deviceID,
			Capability: device.CapSensor,
			Format:     mqtt.FormatJSON,
			StateTopic: m.topics.Device(m.friendlyName),
			Fields:     m.sensor,
			Units:      m.units,
		})
	}
	return m.bindings
}

// capabilitiesFromExposes maps a device's exposes to bindings.
func capabilitiesFromExposes(t Topics, deviceID, friendlyName string, exposes []expose) []mqtt.Binding {
	m := newMapping(t, deviceID, friendlyName)
	for _, e := range exposes {
		m.walk(e, "")
	}
	return m.finish()
}

// typePriority orders capabilities for device type inference.
var typePriority = []struct {
	cap device.CapabilityType
	typ device.DeviceType
}{
	{device.CapColorLight, device.DeviceTypeLight},
	{device.CapLight, device.DeviceTypeLight},
	{device.CapDimmer, device.DeviceTypeLight},
	{device.CapSwitch, device.DeviceTypeSwitch},
	{device.CapThermostat, device.DeviceTypeThermostat},
	{device.CapLock, device.DeviceTypeLock},
	{device.CapCover, device.DeviceTypeCover},
}

// inferType picks the device type from its capabilities.
func inferType(caps []device.CapabilityType) device.DeviceType {
	for _, p := range typePriority {
		if slices.Contains(caps, p.cap) {
			return p.typ
		}
	}
	return device.DeviceTypeSensor
}

func tokenOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
