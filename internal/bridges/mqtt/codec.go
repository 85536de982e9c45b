package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/validate"
)

// ErrNoValue reports that a payload carried nothing for a binding. The
// capability keeps its previous state.
var ErrNoValue = errors.New("mqtt: payload has no value for binding")

// Codec translates between broker payloads and capability states/commands.
type Codec interface {
	Decode(b Binding, prev device.CapabilityState, payload []byte) (device.CapabilityState, error)
	Encode(b Binding, cmd device.DeviceCommand) ([]byte, error)
}

// DefaultCodec implements the generic topic-mapped payload conventions:
// raw on/off tokens, or JSON objects keyed by state, brightness, color,
// temperature and mode.
type DefaultCodec struct{}

var _ Codec = DefaultCodec{}

// defaultProperty is the JSON key used when a binding names none.
func defaultProperty(c device.CapabilityType) string {
	switch c {
	case device.CapDimmer:
		return "brightness"
	case device.CapColorLight:
		return "color"
	case device.CapCover:
		return "position"
	case device.CapSensor, device.CapThermostat, device.CapClimate:
		return ""
	default:
		return "state"
	}
}

// extract returns the binding's value from payload plus the decoded root.
func extract(b Binding, payload []byte) (value, root any, err error) {
	if b.Format == FormatRaw {
		s := strings.TrimSpace(string(payload))
		if s == "" {
			return nil, nil, ErrNoValue
		}
		return s, s, nil
	}
	root = validate.JSON(payload)
	prop := b.Property
	if prop == "" {
		prop = defaultProperty(b.Capability)
	}
	if _, isObject := root.(map[string]any); !isObject {
		// A bare scalar on a JSON topic is the value itself.
		if root == "" {
			return nil, nil, ErrNoValue
		}
		return root, root, nil
	}
	v, ok := validate.Lookup(root, prop)
	if !ok || v == nil {
		return nil, root, ErrNoValue
	}
	return v, root, nil
}

// Decode converts payload into the binding's capability state. prev is the
// current state and supplies fields a partial payload leaves out.
func (DefaultCodec) Decode(b Binding, prev device.CapabilityState, payload []byte) (device.CapabilityState, error) {
	switch b.Capability {
	case device.CapThermostat, device.CapClimate:
		return decodeThermostat(b, prev, payload)
	case device.CapSensor:
		return decodeSensor(b, prev, payload)
	}

	v, _, err := extract(b, payload)
	if err != nil {
		return nil, err
	}

	switch b.Capability {
	case device.CapSwitch:
		return device.SwitchState{On: coerceBool(b, v)}, nil
	case device.CapLight:
		return device.LightState{On: coerceBool(b, v)}, nil
	case device.CapDimmer:
		n, err := validate.Number("brightness", v)
		if err != nil {
			return nil, err
		}
		return device.DimmerState{Brightness: toPercent(n, b.Scale)}, nil
	case device.CapColorLight:
		return decodeColor(prev, v)
	case device.CapLock:
		return device.LockState{Locked: coerceBool(b, v)}, nil
	case device.CapCover:
		return decodeCover(prev, v)
	case device.CapMediaPlayer:
		st, _ := prev.(device.MediaPlayerState)
		st.State = strings.ToLower(fmt.Sprint(v))
		return st, nil
	case device.CapAlarm:
		mode := strings.ToLower(fmt.Sprint(v))
		armed := strings.HasPrefix(mode, "armed") || coerceBool(b, v)
		return device.AlarmState{Armed: armed, Mode: mode}, nil
	}
	return nil, fmt.Errorf("%w: capability %s has no decoder", device.ErrNotSupported, b.Capability)
}

// coerceBool honours configured on/off payloads before the generic tokens.
func coerceBool(b Binding, v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if b.PayloadOn != "" && strings.EqualFold(s, b.PayloadOn) {
		return true
	}
	if b.PayloadOff != "" && strings.EqualFold(s, b.PayloadOff) {
		return false
	}
	if b.Capability == device.CapLock {
		return strings.EqualFold(s, "locked") || strings.EqualFold(s, "lock") || validate.ParseBool(s)
	}
	return validate.ParseBool(s)
}

func toPercent(n, scale float64) int {
	if scale > 0 {
		n = n * 100 / scale
	}
	return clamp(int(math.Round(n)), 0, 100)
}

func fromPercent(pct int, scale float64) int {
	if scale <= 0 {
		return pct
	}
	return int(math.Round(float64(pct) * scale / 100))
}

func clamp(n, lo, hi int) int {
	return max(lo, min(hi, n))
}

func decodeColor(prev device.CapabilityState, v any) (device.CapabilityState, error) {
	st, _ := prev.(device.ColorState)
	m, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNoValue
	}
	hueKey, satKey := "hue", "saturation"
	if _, ok := m["h"]; ok {
		hueKey, satKey = "h", "s"
	}
	if _, ok := m[hueKey]; ok {
		hue, err := validate.Float("color.hue", m[hueKey], 0, device.MaxHue)
		if err != nil {
			return nil, err
		}
		st.Hue = device.Float(hue)
		if sat, err := validate.Float("color.saturation", m[satKey], 0, device.MaxSaturation); err == nil {
			st.Saturation = device.Float(sat)
		}
		return st, nil
	}
	if _, ok := m["r"]; ok {
		var rgb device.RGB
		for i, k := range []string{"r", "g", "b"} {
			n, err := validate.Int("color."+k, m[k], 0, 255)
			if err != nil {
				return nil, err
			}
			rgb[i] = n
		}
		st.RGB = &rgb
		return st, nil
	}
	return nil, ErrNoValue
}

func decodeCover(prev device.CapabilityState, v any) (device.CapabilityState, error) {
	st, _ := prev.(device.CoverState)
	if s, ok := v.(string); ok {
		switch strings.ToLower(s) {
		case "open":
			return device.CoverState{Position: device.MaxPosition}, nil
		case "closed", "close":
			return device.CoverState{Position: device.MinPosition}, nil
		case "opening", "closing":
			st.Moving = strings.ToLower(s)
			return st, nil
		case "stopped", "stop":
			st.Moving = ""
			return st, nil
		}
	}
	n, err := validate.Number("position", v)
	if err != nil {
		return nil, err
	}
	st.Position = clamp(int(math.Round(n)), device.MinPosition, device.MaxPosition)
	return st, nil
}

func decodeThermostat(b Binding, prev device.CapabilityState, payload []byte) (device.CapabilityState, error) {
	var cur device.ClimateState
	switch p := prev.(type) {
	case device.ThermostatState:
		cur = device.ClimateState{Temperature: p.Temperature, TargetTemperature: p.TargetTemperature, Mode: p.Mode}
	case device.ClimateState:
		cur = p
	}

	found := false
	root := validate.JSON(payload)
	if _, isObject := root.(map[string]any); b.Format == FormatRaw || !isObject {
		// A bare reading is the current temperature.
		f, err := validate.Float("temperature", root, device.MinTemperature, device.MaxTemperature)
		if err != nil {
			return nil, err
		}
		cur.Temperature = device.Float(f)
		found = true
	} else {
		if b.Property != "" {
			if sub, ok := validate.Lookup(root, b.Property); ok {
				root = sub
			}
		}
		if f, ok := lookupFloat(root, b.field(RoleTemperature, "temperature")); ok {
			cur.Temperature, found = device.Float(f), true
		}
		if f, ok := lookupFloat(root, b.field(RoleTarget, "target_temperature")); ok {
			cur.TargetTemperature, found = device.Float(f), true
		}
		if v, ok := validate.Lookup(root, b.field(RoleMode, "mode")); ok {
			if m, err := validate.Enum("mode", strings.ToLower(fmt.Sprint(v)), device.AllThermostatModes()...); err == nil {
				cur.Mode, found = m, true
			}
		}
		if b.Capability == device.CapClimate {
			if f, ok := lookupFloat(root, b.field(RoleHumidity, "humidity")); ok {
				cur.Humidity, found = device.Float(f), true
			}
			if v, ok := validate.Lookup(root, b.field(RoleFanMode, "fan_mode")); ok {
				cur.FanMode, found = fmt.Sprint(v), true
			}
		}
	}
	if !found {
		return nil, ErrNoValue
	}
	if b.Capability == device.CapClimate {
		return cur, nil
	}
	return device.ThermostatState{Temperature: cur.Temperature, TargetTemperature: cur.TargetTemperature, Mode: cur.Mode}, nil
}

func lookupFloat(root any, path string) (float64, bool) {
	v, ok := validate.Lookup(root, path)
	if !ok || v == nil {
		return 0, false
	}
	f, err := validate.Float(path, v, device.MinTemperature, device.MaxTemperature)
	if err != nil {
		return 0, false
	}
	return f, true
}

func decodeSensor(b Binding, prev device.CapabilityState, payload []byte) (device.CapabilityState, error) {
	old, _ := prev.(device.SensorState)
	st := device.SensorState{Values: make(map[string]any), Units: make(map[string]string)}
	for k, v := range old.Values {
		st.Values[k] = v
	}
	for k, u := range old.Units {
		st.Units[k] = u
	}
	for k, u := range b.Units {
		st.Units[k] = u
	}

	var root any
	if b.Format == FormatRaw {
		root = validate.JSON(payload)
	} else {
		root = validate.JSON(payload)
		if b.Property != "" {
			v, ok := validate.Lookup(root, b.Property)
			if !ok {
				return nil, ErrNoValue
			}
			root = v
		}
	}

	n := 0
	switch {
	case len(b.Fields) > 0:
		for role, path := range b.Fields {
			if v, ok := validate.Lookup(root, path); ok && isScalar(v) {
				st.Values[role] = v
				n++
			}
		}
	default:
		if m, ok := root.(map[string]any); ok {
			for k, v := range m {
				if isScalar(v) {
					st.Values[k] = v
					n++
				}
			}
		} else if root != "" && root != nil {
			name := "value"
			if b.Property != "" {
				name = b.Property[strings.LastIndex(b.Property, ".")+1:]
			}
			st.Values[name] = root
			n++
		}
	}
	if n == 0 {
		return nil, ErrNoValue
	}
	return st, nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, float64, bool, json.Number:
		return true
	}
	return false
}

// Encode builds the command payload for cmd on binding b.
func (DefaultCodec) Encode(b Binding, cmd device.DeviceCommand) ([]byte, error) {
	key, value, err := commandValue(b, cmd)
	if err != nil {
		return nil, err
	}
	if b.Format == FormatRaw {
		return []byte(rawToken(value)), nil
	}
	body := make(map[string]any)
	setPath(body, key, value)
	return json.Marshal(body)
}

func onToken(b Binding) string {
	if b.PayloadOn != "" {
		return b.PayloadOn
	}
	return "ON"
}

func offToken(b Binding) string {
	if b.PayloadOff != "" {
		return b.PayloadOff
	}
	return "OFF"
}

// commandValue resolves the JSON key and value for cmd.
func commandValue(b Binding, cmd device.DeviceCommand) (string, any, error) {
	const op = "mqtt.Encode"
	p := cmd.Params
	prop := func(fallback string) string {
		if b.Property != "" {
			return b.Property
		}
		return fallback
	}

	switch b.Capability {
	case device.CapSwitch, device.CapLight:
		switch cmd.Action {
		case device.ActionTurnOn:
			return prop("state"), onToken(b), nil
		case device.ActionTurnOff:
			return prop("state"), offToken(b), nil
		case device.ActionToggle:
			return prop("state"), "TOGGLE", nil
		}

	case device.CapDimmer:
		switch cmd.Action {
		case device.ActionSetBrightness:
			if p.Brightness == nil {
				return "", nil, missing(op, cmd, device.ParamBrightness)
			}
			return prop("brightness"), fromPercent(*p.Brightness, b.Scale), nil
		case device.ActionTurnOn:
			return b.field(RoleState, "state"), onToken(b), nil
		case device.ActionTurnOff:
			return b.field(RoleState, "state"), offToken(b), nil
		}

	case device.CapColorLight:
		if cmd.Action == device.ActionSetColor {
			if p.Color == nil {
				return "", nil, missing(op, cmd, device.ParamColor)
			}
			if hs := p.Color.HS; hs != nil {
				return prop("color"), map[string]any{"hue": hs.Hue, "saturation": hs.Saturation}, nil
			}
			if rgb := p.Color.RGB; rgb != nil {
				return prop("color"), map[string]any{"r": rgb[0], "g": rgb[1], "b": rgb[2]}, nil
			}
			return "", nil, missing(op, cmd, device.ParamColor)
		}

	case device.CapThermostat, device.CapClimate:
		switch cmd.Action {
		case device.ActionSetTemperature:
			if p.Temperature == nil {
				return "", nil, missing(op, cmd, device.ParamTemperature)
			}
			return b.field(RoleTarget, "temperature"), *p.Temperature, nil
		case device.ActionSetMode:
			if p.Mode == "" {
				return "", nil, missing(op, cmd, device.ParamMode)
			}
			return b.field(RoleMode, "mode"), string(p.Mode), nil
		case device.ActionTurnOff:
			return b.field(RoleMode, "mode"), string(device.ModeOff), nil
		}

	case device.CapLock:
		switch cmd.Action {
		case device.ActionLock:
			return prop("state"), tokenOr(b.PayloadOn, "LOCK"), nil
		case device.ActionUnlock:
			return prop("state"), tokenOr(b.PayloadOff, "UNLOCK"), nil
		}

	case device.CapCover:
		switch cmd.Action {
		case device.ActionOpen:
			return b.field(RoleState, "state"), "OPEN", nil
		case device.ActionClose:
			return b.field(RoleState, "state"), "CLOSE", nil
		case device.ActionStop:
			return b.field(RoleState, "state"), "STOP", nil
		case device.ActionSetPosition:
			if p.Position == nil {
				return "", nil, missing(op, cmd, device.ParamPosition)
			}
			return prop("position"), *p.Position, nil
		}

	case device.CapMediaPlayer:
		switch cmd.Action {
		case device.ActionPlay:
			return prop("state"), "PLAY", nil
		case device.ActionPause:
			return prop("state"), "PAUSE", nil
		case device.ActionTurnOn:
			return prop("state"), onToken(b), nil
		case device.ActionTurnOff:
			return prop("state"), offToken(b), nil
		}

	case device.CapAlarm:
		switch cmd.Action {
		case device.ActionArm:
			return prop("state"), "ARM_AWAY", nil
		case device.ActionDisarm:
			return prop("state"), "DISARM", nil
		}
	}

	return "", nil, device.Errorf(device.KindNotFound, op, "%w: %q on %s", device.ErrActionNotSupported, cmd.Action, b.Capability)
}

func tokenOr(token, fallback string) string {
	if token != "" {
		return token
	}
	return fallback
}

func missing(op string, cmd device.DeviceCommand, param string) error {
	return device.Errorf(device.KindValidation, op, "%w: %s requires %s", device.ErrInvalidCommand, cmd.Action, param)
}

// rawToken renders a command value as a bare payload.
func rawToken(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case map[string]any:
		if h, ok := x["hue"]; ok {
			return fmt.Sprintf("%v,%v", h, x["saturation"])
		}
		return fmt.Sprintf("%v,%v,%v", x["r"], x["g"], x["b"])
	default:
		return fmt.Sprint(v)
	}
}

// setPath assigns value at a dotted path, creating nested objects.
func setPath(m map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}
