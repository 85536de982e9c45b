package device

import (
	"slices"
	"time"
)

// DeviceType classifies a device for display and policy purposes.
type DeviceType string

// Device types.
const (
	DeviceTypeLight       DeviceType = "light"
	DeviceTypeSwitch      DeviceType = "switch"
	DeviceTypeThermostat  DeviceType = "thermostat"
	DeviceTypeLock        DeviceType = "lock"
	DeviceTypeCover       DeviceType = "cover"
	DeviceTypeMediaPlayer DeviceType = "media_player"
	DeviceTypeSensor      DeviceType = "sensor"
	DeviceTypeCamera      DeviceType = "camera"
	DeviceTypeFan         DeviceType = "fan"
	DeviceTypeVacuum      DeviceType = "vacuum"
	DeviceTypeGeneric     DeviceType = "generic"
)

// AllDeviceTypes returns every valid device type.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeLight, DeviceTypeSwitch, DeviceTypeThermostat, DeviceTypeLock,
		DeviceTypeCover, DeviceTypeMediaPlayer, DeviceTypeSensor, DeviceTypeCamera,
		DeviceTypeFan, DeviceTypeVacuum, DeviceTypeGeneric,
	}
}

// CapabilityType names a behaviour a device exposes.
type CapabilityType string

// Capability types.
const (
	CapSwitch      CapabilityType = "switch"
	CapLight       CapabilityType = "light"
	CapDimmer      CapabilityType = "dimmer"
	CapColorLight  CapabilityType = "color_light"
	CapThermostat  CapabilityType = "thermostat"
	CapLock        CapabilityType = "lock"
	CapCover       CapabilityType = "cover"
	CapMediaPlayer CapabilityType = "media_player"
	CapSensor      CapabilityType = "sensor"
	CapAlarm       CapabilityType = "alarm"
	CapClimate     CapabilityType = "climate"
)

// AllCapabilityTypes returns every valid capability type.
func AllCapabilityTypes() []CapabilityType {
	return []CapabilityType{
		CapSwitch, CapLight, CapDimmer, CapColorLight, CapThermostat, CapLock,
		CapCover, CapMediaPlayer, CapSensor, CapAlarm, CapClimate,
	}
}

// Capability is one typed behaviour of a device plus its last known state.
// State may be nil until the adapter has observed a value.
type Capability struct {
	Type      CapabilityType  `json:"type"`
	Supported bool            `json:"supported"`
	State     CapabilityState `json:"state,omitempty"`
}

// NewCapability returns a supported capability with an initial state.
// A nil state is allowed.
func NewCapability(t CapabilityType, state CapabilityState) (Capability, error) {
	c := Capability{Type: t, Supported: true}
	if err := c.SetState(state); err != nil {
		return Capability{}, err
	}
	return c, nil
}

// SetState replaces the capability state, rejecting a state whose tag does
// not match the capability type.
func (c *Capability) SetState(state CapabilityState) error {
	if state != nil && state.Capability() != c.Type {
		return NewError(KindInternal, "capability.SetState",
			stateMismatch(c.Type, state.Capability()))
	}
	c.State = state
	return nil
}

// Device is a normalised controllable or readable entity.
// It is owned by a single adapter (AdapterID) which alone mutates
// capability state, Online and LastUpdated.
type Device struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         DeviceType     `json:"type"`
	AreaID       string         `json:"area_id,omitempty"`
	AdapterID    string         `json:"adapter_id"`
	NativeID     string         `json:"native_id"`
	Capabilities []Capability   `json:"capabilities"`
	Tags         []string       `json:"tags"`
	Manufacturer string         `json:"manufacturer,omitempty"`
	Model        string         `json:"model,omitempty"`
	Online       bool           `json:"online"`
	LastSeen     *time.Time     `json:"last_seen,omitempty"`
	LastUpdated  time.Time      `json:"last_updated"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Capability returns a pointer to the capability of type t, if present.
// The pointer aliases the device; callers mutating it must own the device.
func (d *Device) Capability(t CapabilityType) (*Capability, bool) {
	for i := range d.Capabilities {
		if d.Capabilities[i].Type == t {
			return &d.Capabilities[i], true
		}
	}
	return nil, false
}

// HasCapability reports whether the device exposes capability t.
func (d *Device) HasCapability(t CapabilityType) bool {
	_, ok := d.Capability(t)
	return ok
}

// SetState stores state on the capability it belongs to.
// It fails when the device has no capability of that type.
func (d *Device) SetState(state CapabilityState) error {
	c, ok := d.Capability(state.Capability())
	if !ok {
		return NewError(KindNotFound, "device.SetState",
			capabilityMissing(d.ID, state.Capability()))
	}
	return c.SetState(state)
}

// DeepCopy returns an independent copy of the device.
// Capability states are value types and copy with the slice, except for the
// maps inside SensorState which are cloned explicitly.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d

	if d.Capabilities != nil {
		cpy.Capabilities = make([]Capability, len(d.Capabilities))
		for i, c := range d.Capabilities {
			cpy.Capabilities[i] = Capability{Type: c.Type, Supported: c.Supported, State: copyState(c.State)}
		}
	}
	cpy.Tags = slices.Clone(d.Tags)
	if d.LastSeen != nil {
		seen := *d.LastSeen
		cpy.LastSeen = &seen
	}
	cpy.Metadata = deepCopyMap(d.Metadata)
	return &cpy
}

// Area is a logical or physical zone. Devices point at areas by ID only.
type Area struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Floor   *int     `json:"floor,omitempty"`
	Tags    []string `json:"tags"`
	Aliases []string `json:"aliases,omitempty"`
}

// Scene is an opaque, adapter-executed grouped action.
type Scene struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Icon        string   `json:"icon,omitempty"`
	AdapterID   string   `json:"adapter_id"`
	NativeID    string   `json:"native_id"`
	Tags        []string `json:"tags"`
}

// Filter narrows a device listing. Zero-valued fields match everything.
type Filter struct {
	AdapterID  string
	AreaID     string
	Type       DeviceType
	Capability CapabilityType
	Tag        string
	Online     *bool
}

// Matches reports whether d satisfies every set field of f.
func (f Filter) Matches(d *Device) bool {
	switch {
	case f.AdapterID != "" && d.AdapterID != f.AdapterID:
		return false
	case f.AreaID != "" && d.AreaID != f.AreaID:
		return false
	case f.Type != "" && d.Type != f.Type:
		return false
	case f.Capability != "" && !d.HasCapability(f.Capability):
		return false
	case f.Tag != "" && !slices.Contains(d.Tags, f.Tag):
		return false
	case f.Online != nil && d.Online != *f.Online:
		return false
	}
	return true
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
