package device

import (
	"fmt"
	"maps"
	"slices"

	"github.com/nerrad567/gray-logic-adapters/internal/validate"
)

// Action is a normalised command verb.
type Action string

// Actions understood by at least one adapter.
const (
	ActionTurnOn         Action = "turn_on"
	ActionTurnOff        Action = "turn_off"
	ActionToggle         Action = "toggle"
	ActionSetBrightness  Action = "set_brightness"
	ActionSetColor       Action = "set_color"
	ActionSetTemperature Action = "set_temperature"
	ActionSetMode        Action = "set_mode"
	ActionLock           Action = "lock"
	ActionUnlock         Action = "unlock"
	ActionOpen           Action = "open"
	ActionClose          Action = "close"
	ActionStop           Action = "stop"
	ActionSetPosition    Action = "set_position"
	ActionArm            Action = "arm"
	ActionDisarm         Action = "disarm"
	ActionPlay           Action = "play"
	ActionPause          Action = "pause"
)

// AllActions returns every known action.
func AllActions() []Action {
	return []Action{
		ActionTurnOn, ActionTurnOff, ActionToggle, ActionSetBrightness, ActionSetColor,
		ActionSetTemperature, ActionSetMode, ActionLock, ActionUnlock, ActionOpen,
		ActionClose, ActionStop, ActionSetPosition, ActionArm, ActionDisarm,
		ActionPlay, ActionPause,
	}
}

// Parameter bounds enforced at command construction.
const (
	MinBrightness  = 0
	MaxBrightness  = 100
	MinPosition    = 0
	MaxPosition    = 100
	MinTemperature = -40.0
	MaxTemperature = 120.0
	MaxHue         = 360.0
	MaxSaturation  = 100.0
)

// Parameter names accepted in raw command maps.
const (
	ParamBrightness  = "brightness"
	ParamColor       = "color"
	ParamTemperature = "temperature"
	ParamPosition    = "position"
	ParamMode        = "mode"
)

// HueSat is a hue (0..360) and saturation (0..100) colour.
type HueSat struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
}

// Color is either a hue/saturation pair or an RGB triple. Exactly one is set.
type Color struct {
	HS  *HueSat `json:"hs,omitempty"`
	RGB *RGB    `json:"rgb,omitempty"`
}

// Params is the closed set of typed command parameters. Nil fields are unset.
type Params struct {
	Brightness  *int           `json:"brightness,omitempty"`
	Color       *Color         `json:"color,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	Position    *int           `json:"position,omitempty"`
	Mode        ThermostatMode `json:"mode,omitempty"`
}

// Number returns a numeric parameter by name for range checks.
func (p Params) Number(name string) (float64, bool) {
	switch name {
	case ParamBrightness:
		if p.Brightness != nil {
			return float64(*p.Brightness), true
		}
	case ParamTemperature:
		if p.Temperature != nil {
			return *p.Temperature, true
		}
	case ParamPosition:
		if p.Position != nil {
			return float64(*p.Position), true
		}
	}
	return 0, false
}

// DeviceCommand is a validated request to act on one capability of a device.
type DeviceCommand struct {
	DeviceID   string         `json:"device_id"`
	Capability CapabilityType `json:"capability"`
	Action     Action         `json:"action"`
	Params     Params         `json:"params"`
}

// SceneCommand asks an adapter to run a scene. Params are passed through
// to the adapter untouched.
type SceneCommand struct {
	SceneID string         `json:"scene_id"`
	Params  map[string]any `json:"params,omitempty"`
}

// requiredParam lists the parameter an action cannot run without.
var requiredParam = map[Action]string{
	ActionSetBrightness:  ParamBrightness,
	ActionSetColor:       ParamColor,
	ActionSetTemperature: ParamTemperature,
	ActionSetPosition:    ParamPosition,
	ActionSetMode:        ParamMode,
}

// NewDeviceCommand validates raw input into a DeviceCommand.
// Unknown parameter names, out-of-range values and missing required
// parameters fail with KindValidation.
func NewDeviceCommand(deviceID, capability, action string, raw map[string]any) (DeviceCommand, error) {
	const op = "device.NewDeviceCommand"

	id, err := validate.DeviceID(deviceID)
	if err != nil {
		return DeviceCommand{}, NewError(KindValidation, op, err)
	}
	capType, err := validate.Enum("capability", capability, AllCapabilityTypes()...)
	if err != nil {
		return DeviceCommand{}, NewError(KindValidation, op, err)
	}
	act, err := validate.Enum("action", action, AllActions()...)
	if err != nil {
		return DeviceCommand{}, NewError(KindValidation, op, err)
	}
	params, err := ParseParams(raw)
	if err != nil {
		return DeviceCommand{}, NewError(KindValidation, op, err)
	}

	cmd := DeviceCommand{DeviceID: id, Capability: capType, Action: act, Params: params}
	if name, ok := requiredParam[act]; ok {
		if _, present := raw[name]; !present {
			return DeviceCommand{}, Errorf(KindValidation, op, "%w: action %s requires %s", ErrInvalidCommand, act, name)
		}
	}
	return cmd, nil
}

// ParseParams converts a raw parameter map into typed Params.
func ParseParams(raw map[string]any) (Params, error) {
	var p Params
	for _, key := range slices.Sorted(maps.Keys(raw)) {
		v := raw[key]
		switch key {
		case ParamBrightness:
			n, err := validate.Int(key, v, MinBrightness, MaxBrightness)
			if err != nil {
				return Params{}, err
			}
			p.Brightness = &n
		case ParamPosition:
			n, err := validate.Int(key, v, MinPosition, MaxPosition)
			if err != nil {
				return Params{}, err
			}
			p.Position = &n
		case ParamTemperature:
			f, err := validate.Float(key, v, MinTemperature, MaxTemperature)
			if err != nil {
				return Params{}, err
			}
			p.Temperature = &f
		case ParamMode:
			s, ok := v.(string)
			if !ok {
				return Params{}, fmt.Errorf("%w: mode must be a string", validate.ErrInvalid)
			}
			m, err := validate.Enum(key, s, AllThermostatModes()...)
			if err != nil {
				return Params{}, err
			}
			p.Mode = m
		case ParamColor:
			c, err := parseColor(v)
			if err != nil {
				return Params{}, err
			}
			p.Color = c
		default:
			return Params{}, fmt.Errorf("%w: unknown parameter %q", validate.ErrInvalid, key)
		}
	}
	return p, nil
}

// parseColor accepts {"hue":h,"saturation":s} or {"rgb":[r,g,b]}.
func parseColor(v any) (*Color, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: color must be an object", validate.ErrInvalid)
	}
	if rawRGB, ok := m["rgb"]; ok {
		list, ok := rawRGB.([]any)
		if !ok || len(list) != 3 {
			return nil, fmt.Errorf("%w: color.rgb must be [r,g,b]", validate.ErrInvalid)
		}
		var rgb RGB
		for i, ch := range list {
			n, err := validate.Int("color.rgb", ch, 0, 255)
			if err != nil {
				return nil, err
			}
			rgb[i] = n
		}
		return &Color{RGB: &rgb}, nil
	}
	hue, err := validate.Float("color.hue", m["hue"], 0, MaxHue)
	if err != nil {
		return nil, err
	}
	sat, err := validate.Float("color.saturation", m["saturation"], 0, MaxSaturation)
	if err != nil {
		return nil, err
	}
	return &Color{HS: &HueSat{Hue: hue, Saturation: sat}}, nil
}

// NewSceneCommand validates a scene ID.
func NewSceneCommand(sceneID string, params map[string]any) (SceneCommand, error) {
	id, err := validate.DeviceID(sceneID)
	if err != nil {
		return SceneCommand{}, NewError(KindValidation, "device.NewSceneCommand", err)
	}
	return SceneCommand{SceneID: id, Params: params}, nil
}
