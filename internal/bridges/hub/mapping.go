package hub

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/validate"
)

// entityState is one entry of GET /api/states and of state_changed events.
type entityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Domain returns the entity_id prefix ("light" for "light.kitchen").
func (e entityState) Domain() string {
	d, _, _ := strings.Cut(e.EntityID, ".")
	return d
}

func (e entityState) attr(key string) (any, bool) {
	v, ok := e.Attributes[key]
	return v, ok && v != nil
}

func (e entityState) friendlyName() string {
	if s, ok := e.Attributes["friendly_name"].(string); ok && s != "" {
		return s
	}
	return e.EntityID
}

const (
	stateUnavailable = "unavailable"
	sceneDomain      = "scene"
	hubBrightnessMax = 255
)

// domainInfo maps a hub domain to a device type and its base capability.
type domainInfo struct {
	Type device.DeviceType
	Cap  device.CapabilityType
}

// domains is the table of supported entity domains. Light and climate
// capabilities are refined from attributes in capabilitiesFor.
var domains = map[string]domainInfo{
	"light":               {device.DeviceTypeLight, device.CapLight},
	"switch":              {device.DeviceTypeSwitch, device.CapSwitch},
	"input_boolean":       {device.DeviceTypeSwitch, device.CapSwitch},
	"fan":                 {device.DeviceTypeFan, device.CapSwitch},
	"vacuum":              {device.DeviceTypeVacuum, device.CapSwitch},
	"climate":             {device.DeviceTypeThermostat, device.CapThermostat},
	"lock":                {device.DeviceTypeLock, device.CapLock},
	"cover":               {device.DeviceTypeCover, device.CapCover},
	"media_player":        {device.DeviceTypeMediaPlayer, device.CapMediaPlayer},
	"sensor":              {device.DeviceTypeSensor, device.CapSensor},
	"binary_sensor":       {device.DeviceTypeSensor, device.CapSensor},
	"alarm_control_panel": {device.DeviceTypeGeneric, device.CapAlarm},
	"camera":              {device.DeviceTypeCamera, ""},
}

// Colour modes that accept a hue/saturation or RGB target.
var colorModes = []string{"hs", "rgb", "rgbw", "rgbww", "xy"}

// capabilitiesFor lists the capabilities an entity exposes.
func capabilitiesFor(e entityState) []device.CapabilityType {
	info, ok := domains[e.Domain()]
	if !ok || info.Cap == "" {
		return nil
	}
	switch e.Domain() {
	case "light":
		caps := []device.CapabilityType{device.CapLight}
		modes := stringList(e.Attributes["supported_color_modes"])
		_, hasBrightness := e.Attributes["brightness"]
		dimmable := hasBrightness || slices.ContainsFunc(modes, func(m string) bool { return m != "onoff" })
		if dimmable {
			caps = append(caps, device.CapDimmer)
		}
		_, hasHS := e.Attributes["hs_color"]
		_, hasRGB := e.Attributes["rgb_color"]
		if hasHS || hasRGB || slices.ContainsFunc(modes, func(m string) bool { return slices.Contains(colorModes, m) }) {
			caps = append(caps, device.CapColorLight)
		}
		return caps
	case "climate":
		_, hasHumidity := e.Attributes["current_humidity"]
		_, hasFan := e.Attributes["fan_mode"]
		if hasHumidity || hasFan {
			return []device.CapabilityType{device.CapClimate}
		}
	}
	return []device.CapabilityType{info.Cap}
}

// deviceFor builds the device for an entity, or nil when the domain is not
// mapped.
func deviceFor(adapterID string, e entityState) *device.Device {
	info, ok := domains[e.Domain()]
	if !ok {
		return nil
	}
	d := &device.Device{
		ID:        e.EntityID,
		Name:      e.friendlyName(),
		Type:      info.Type,
		AdapterID: adapterID,
		NativeID:  e.EntityID,
		Tags:      []string{e.Domain()},
		Online:    e.State != stateUnavailable,
		Metadata:  map[string]any{"domain": e.Domain()},
	}
	if dc, ok := e.Attributes["device_class"].(string); ok && dc != "" {
		d.Metadata["device_class"] = dc
	}
	for _, c := range capabilitiesFor(e) {
		d.Capabilities = append(d.Capabilities, device.Capability{Type: c, Supported: true})
	}
	applyEntity(d, e)
	return d
}

// applyEntity copies an entity snapshot into the device's capability state.
func applyEntity(d *device.Device, e entityState) {
	d.Online = e.State != stateUnavailable
	if !e.LastUpdated.IsZero() {
		seen := e.LastUpdated
		d.LastSeen = &seen
	}
	if !d.Online {
		return
	}
	for i := range d.Capabilities {
		c := &d.Capabilities[i]
		if st := stateFor(c.Type, e, c.State); st != nil {
			_ = c.SetState(st)
		}
	}
}

// stateFor decodes the state of capability c from an entity. It returns nil
// when the entity carries nothing for c.
func stateFor(c device.CapabilityType, e entityState, prev device.CapabilityState) device.CapabilityState {
	on := e.State == "on"
	switch c {
	case device.CapSwitch:
		if e.Domain() == "vacuum" {
			on = e.State == "cleaning"
		}
		return device.SwitchState{On: on}
	case device.CapLight:
		return device.LightState{On: on}
	case device.CapDimmer:
		if !on {
			return device.DimmerState{Brightness: 0}
		}
		v, ok := e.attr("brightness")
		if !ok {
			return nil
		}
		n, err := validate.Number("brightness", v)
		if err != nil {
			return nil
		}
		return device.DimmerState{Brightness: fromHubBrightness(n)}
	case device.CapColorLight:
		return colorState(e, prev)
	case device.CapThermostat, device.CapClimate:
		return climateState(c, e)
	case device.CapLock:
		return device.LockState{Locked: e.State == "locked"}
	case device.CapCover:
		return coverState(e, prev)
	case device.CapMediaPlayer:
		st := device.MediaPlayerState{State: e.State}
		if v, ok := e.attr("volume_level"); ok {
			if f, err := validate.Float("volume_level", v, 0, 1); err == nil {
				st.Volume = device.Float(f)
			}
		}
		if s, ok := e.Attributes["source"].(string); ok {
			st.Source = s
		}
		return st
	case device.CapSensor:
		return sensorState(e)
	case device.CapAlarm:
		return device.AlarmState{Armed: strings.HasPrefix(e.State, "armed"), Mode: e.State}
	}
	return nil
}

func colorState(e entityState, prev device.CapabilityState) device.CapabilityState {
	st, _ := prev.(device.ColorState)
	if hs := floatList(e.Attributes["hs_color"]); len(hs) == 2 {
		st.Hue, st.Saturation = device.Float(hs[0]), device.Float(hs[1])
	}
	if rgb := floatList(e.Attributes["rgb_color"]); len(rgb) == 3 {
		v := device.RGB{int(rgb[0]), int(rgb[1]), int(rgb[2])}
		st.RGB = &v
	}
	if st.Hue == nil && st.RGB == nil {
		return nil
	}
	return st
}

func climateState(c device.CapabilityType, e entityState) device.CapabilityState {
	var st device.ClimateState
	if v, ok := e.attr("current_temperature"); ok {
		if f, err := validate.Float("current_temperature", v, device.MinTemperature, device.MaxTemperature); err == nil {
			st.Temperature = device.Float(f)
		}
	}
	if v, ok := e.attr("temperature"); ok {
		if f, err := validate.Float("temperature", v, device.MinTemperature, device.MaxTemperature); err == nil {
			st.TargetTemperature = device.Float(f)
		}
	}
	if m, err := validate.Enum("hvac_mode", e.State, device.AllThermostatModes()...); err == nil {
		st.Mode = m
	}
	if c == device.CapThermostat {
		return device.ThermostatState{Temperature: st.Temperature, TargetTemperature: st.TargetTemperature, Mode: st.Mode}
	}
	if v, ok := e.attr("current_humidity"); ok {
		if f, err := validate.Float("current_humidity", v, 0, 100); err == nil {
			st.Humidity = device.Float(f)
		}
	}
	if s, ok := e.Attributes["fan_mode"].(string); ok {
		st.FanMode = s
	}
	return st
}

func coverState(e entityState, prev device.CapabilityState) device.CapabilityState {
	st, _ := prev.(device.CoverState)
	st.Moving = ""
	switch e.State {
	case "open":
		st.Position = device.MaxPosition
	case "closed":
		st.Position = device.MinPosition
	case "opening", "closing":
		st.Moving = e.State
	}
	if v, ok := e.attr("current_position"); ok {
		if n, err := validate.Int("current_position", v, device.MinPosition, device.MaxPosition); err == nil {
			st.Position = n
		}
	}
	return st
}

func sensorState(e entityState) device.CapabilityState {
	key := "value"
	if dc, ok := e.Attributes["device_class"].(string); ok && dc != "" {
		key = dc
	}
	st := device.SensorState{Values: map[string]any{}, Units: map[string]string{}}
	switch {
	case e.Domain() == "binary_sensor":
		st.Values[key] = e.State == "on"
	default:
		if f, err := validate.Number(key, e.State); err == nil {
			st.Values[key] = f
		} else {
			st.Values[key] = e.State
		}
	}
	if u, ok := e.Attributes["unit_of_measurement"].(string); ok && u != "" {
		st.Units[key] = u
	}
	return st
}

// serviceCall is a domain-scoped remote procedure call on the hub.
type serviceCall struct {
	Domain  string
	Service string
	Data    map[string]any
}

// callFor maps a command on an entity to a service call.
func callFor(domain string, cmd device.DeviceCommand) (serviceCall, error) {
	const op = "hub.ExecuteCommand"
	p := cmd.Params
	call := func(service string, data map[string]any) (serviceCall, error) {
		return serviceCall{Domain: domain, Service: service, Data: data}, nil
	}
	missing := func(param string) (serviceCall, error) {
		return serviceCall{}, device.Errorf(device.KindValidation, op, "%w: %s requires %s", device.ErrInvalidCommand, cmd.Action, param)
	}

	switch cmd.Capability {
	case device.CapSwitch, device.CapLight:
		if domain == "vacuum" {
			switch cmd.Action {
			case device.ActionTurnOn:
				return call("start", nil)
			case device.ActionTurnOff:
				return call("return_to_base", nil)
			}
			break
		}
		switch cmd.Action {
		case device.ActionTurnOn, device.ActionTurnOff, device.ActionToggle:
			return call(string(cmd.Action), nil)
		}

	case device.CapDimmer:
		switch cmd.Action {
		case device.ActionSetBrightness:
			if p.Brightness == nil {
				return missing(device.ParamBrightness)
			}
			if *p.Brightness == 0 {
				return call("turn_off", nil)
			}
			return call("turn_on", map[string]any{"brightness": toHubBrightness(*p.Brightness)})
		case device.ActionTurnOn, device.ActionTurnOff:
			return call(string(cmd.Action), nil)
		}

	case device.CapColorLight:
		if cmd.Action == device.ActionSetColor {
			switch {
			case p.Color == nil:
				return missing(device.ParamColor)
			case p.Color.HS != nil:
				return call("turn_on", map[string]any{"hs_color": []float64{p.Color.HS.Hue, p.Color.HS.Saturation}})
			case p.Color.RGB != nil:
				return call("turn_on", map[string]any{"rgb_color": []int{p.Color.RGB[0], p.Color.RGB[1], p.Color.RGB[2]}})
			}
			return missing(device.ParamColor)
		}

	case device.CapThermostat, device.CapClimate:
		switch cmd.Action {
		case device.ActionSetTemperature:
			if p.Temperature == nil {
				return missing(device.ParamTemperature)
			}
			return call("set_temperature", map[string]any{"temperature": *p.Temperature})
		case device.ActionSetMode:
			if p.Mode == "" {
				return missing(device.ParamMode)
			}
			return call("set_hvac_mode", map[string]any{"hvac_mode": string(p.Mode)})
		case device.ActionTurnOn, device.ActionTurnOff:
			return call(string(cmd.Action), nil)
		}

	case device.CapLock:
		switch cmd.Action {
		case device.ActionLock, device.ActionUnlock:
			return call(string(cmd.Action), nil)
		}

	case device.CapCover:
		switch cmd.Action {
		case device.ActionOpen:
			return call("open_cover", nil)
		case device.ActionClose:
			return call("close_cover", nil)
		case device.ActionStop:
			return call("stop_cover", nil)
		case device.ActionSetPosition:
			if p.Position == nil {
				return missing(device.ParamPosition)
			}
			return call("set_cover_position", map[string]any{"position": *p.Position})
		}

	case device.CapMediaPlayer:
		switch cmd.Action {
		case device.ActionPlay:
			return call("media_play", nil)
		case device.ActionPause:
			return call("media_pause", nil)
		case device.ActionTurnOn, device.ActionTurnOff:
			return call(string(cmd.Action), nil)
		}

	case device.CapAlarm:
		switch cmd.Action {
		case device.ActionArm:
			return call("alarm_arm_away", nil)
		case device.ActionDisarm:
			return call("alarm_disarm", nil)
		}
	}
	return serviceCall{}, device.Errorf(device.KindNotFound, op, "%w: %q on %s", device.ErrActionNotSupported, cmd.Action, cmd.Capability)
}

// toHubBrightness scales 0..100 to the hub's 0..255.
func toHubBrightness(pct int) int {
	return int(math.Round(float64(pct) * hubBrightnessMax / 100))
}

// fromHubBrightness scales the hub's 0..255 to 0..100.
func fromHubBrightness(n float64) int {
	return max(0, min(100, int(math.Round(n*100/hubBrightnessMax))))
}

func stringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, fmt.Sprint(it))
	}
	return out
}

func floatList(v any) []float64 {
	items, _ := v.([]any)
	out := make([]float64, 0, len(items))
	for _, it := range items {
		f, err := validate.Number("component", it)
		if err != nil {
			return nil
		}
		out = append(out, f)
	}
	return out
}
