package device

// CapabilityState is the closed set of per-capability state shapes.
// Capability reports which CapabilityType the state belongs to.
type CapabilityState interface {
	Capability() CapabilityType
	isCapabilityState()
}

// SwitchState is the state of a switch capability.
type SwitchState struct {
	On bool `json:"on"`
}

// LightState is the on/off state of a light capability.
type LightState struct {
	On bool `json:"on"`
}

// DimmerState holds brightness as a percentage, 0..100.
type DimmerState struct {
	Brightness int `json:"brightness"`
}

// ColorState holds the last colour reported by a colour light.
// Either the hue/saturation pair or RGB may be set.
type ColorState struct {
	Hue        *float64 `json:"hue,omitempty"`
	Saturation *float64 `json:"saturation,omitempty"`
	RGB        *RGB     `json:"rgb,omitempty"`
}

// ThermostatState holds current and target temperature plus HVAC mode.
type ThermostatState struct {
	Temperature       *float64       `json:"temperature,omitempty"`
	TargetTemperature *float64       `json:"target_temperature,omitempty"`
	Mode              ThermostatMode `json:"mode,omitempty"`
}

// ClimateState extends the thermostat shape with humidity and fan mode.
type ClimateState struct {
	Temperature       *float64       `json:"temperature,omitempty"`
	TargetTemperature *float64       `json:"target_temperature,omitempty"`
	Mode              ThermostatMode `json:"mode,omitempty"`
	Humidity          *float64       `json:"humidity,omitempty"`
	FanMode           string         `json:"fan_mode,omitempty"`
}

// LockState is the state of a lock capability.
type LockState struct {
	Locked bool `json:"locked"`
}

// CoverState holds position as a percentage open, 0..100.
type CoverState struct {
	Position int    `json:"position"`
	Moving   string `json:"moving,omitempty"`
}

// MediaPlayerState is the playback state of a media player.
type MediaPlayerState struct {
	State  string   `json:"state"`
	Volume *float64 `json:"volume,omitempty"`
	Source string   `json:"source,omitempty"`
}

// SensorState holds the latest readings keyed by property name
// (temperature, humidity, occupancy, ...).
type SensorState struct {
	Values map[string]any    `json:"values"`
	Units  map[string]string `json:"units,omitempty"`
}

// AlarmState is the state of an alarm panel.
type AlarmState struct {
	Armed bool   `json:"armed"`
	Mode  string `json:"mode,omitempty"`
}

// RGB is a colour triple, each channel 0..255.
type RGB [3]int

// ThermostatMode is an HVAC operating mode.
type ThermostatMode string

// Thermostat modes.
const (
	ModeOff      ThermostatMode = "off"
	ModeHeat     ThermostatMode = "heat"
	ModeCool     ThermostatMode = "cool"
	ModeAuto     ThermostatMode = "auto"
	ModeHeatCool ThermostatMode = "heat_cool"
	ModeDry      ThermostatMode = "dry"
	ModeFanOnly  ThermostatMode = "fan_only"
)

// AllThermostatModes returns every valid thermostat mode.
func AllThermostatModes() []ThermostatMode {
	return []ThermostatMode{ModeOff, ModeHeat, ModeCool, ModeAuto, ModeHeatCool, ModeDry, ModeFanOnly}
}

func (SwitchState) Capability() CapabilityType      { return CapSwitch }
func (LightState) Capability() CapabilityType       { return CapLight }
func (DimmerState) Capability() CapabilityType      { return CapDimmer }
func (ColorState) Capability() CapabilityType       { return CapColorLight }
func (ThermostatState) Capability() CapabilityType  { return CapThermostat }
func (ClimateState) Capability() CapabilityType     { return CapClimate }
func (LockState) Capability() CapabilityType        { return CapLock }
func (CoverState) Capability() CapabilityType       { return CapCover }
func (MediaPlayerState) Capability() CapabilityType { return CapMediaPlayer }
func (SensorState) Capability() CapabilityType      { return CapSensor }
func (AlarmState) Capability() CapabilityType       { return CapAlarm }

func (SwitchState) isCapabilityState()      {}
func (LightState) isCapabilityState()       {}
func (DimmerState) isCapabilityState()      {}
func (ColorState) isCapabilityState()       {}
func (ThermostatState) isCapabilityState()  {}
func (ClimateState) isCapabilityState()     {}
func (LockState) isCapabilityState()        {}
func (CoverState) isCapabilityState()       {}
func (MediaPlayerState) isCapabilityState() {}
func (SensorState) isCapabilityState()      {}
func (AlarmState) isCapabilityState()       {}

// Float returns a pointer to f. Handy for optional state fields.
func Float(f float64) *float64 { return &f }

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	return Float(*f)
}

// copyState clones the pointer and map fields inside a state value.
func copyState(s CapabilityState) CapabilityState {
	switch v := s.(type) {
	case ColorState:
		out := ColorState{Hue: copyFloat(v.Hue), Saturation: copyFloat(v.Saturation)}
		if v.RGB != nil {
			rgb := *v.RGB
			out.RGB = &rgb
		}
		return out
	case ThermostatState:
		return ThermostatState{
			Temperature:       copyFloat(v.Temperature),
			TargetTemperature: copyFloat(v.TargetTemperature),
			Mode:              v.Mode,
		}
	case ClimateState:
		v.Temperature = copyFloat(v.Temperature)
		v.TargetTemperature = copyFloat(v.TargetTemperature)
		v.Humidity = copyFloat(v.Humidity)
		return v
	case MediaPlayerState:
		v.Volume = copyFloat(v.Volume)
		return v
	case SensorState:
		out := SensorState{Values: deepCopyMap(v.Values)}
		if v.Units != nil {
			out.Units = make(map[string]string, len(v.Units))
			for k, u := range v.Units {
				out.Units[k] = u
			}
		}
		return out
	default:
		return s
	}
}
