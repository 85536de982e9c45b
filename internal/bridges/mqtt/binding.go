package mqtt

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-adapters/internal/validate"
)

// Format is a payload encoding.
type Format string

// Payload formats.
const (
	FormatJSON Format = "json"
	FormatRaw  Format = "raw"
)

// Field roles for composite capabilities. Binding.Fields maps a role to the
// native (dotted) JSON path carrying it.
const (
	RoleTemperature = "temperature"
	RoleTarget      = "target_temperature"
	RoleMode        = "mode"
	RoleHumidity    = "humidity"
	RoleFanMode     = "fan_mode"
	RoleState       = "state"
)

// Binding maps one capability of one device to its broker topics.
type Binding struct {
	DeviceID     string
	Capability   device.CapabilityType
	StateTopic   string
	CommandTopic string
	Format       Format
	// Property is the dotted path of the value inside a JSON payload.
	Property   string
	PayloadOn  string
	PayloadOff string
	// Scale is the native maximum of a percentage value (254 for Zigbee
	// brightness). Zero means the native value is already 0..100.
	Scale  float64
	Fields map[string]string
	Units  map[string]string
}

func (b Binding) field(role, fallback string) string {
	if p, ok := b.Fields[role]; ok && p != "" {
		return p
	}
	return fallback
}

// DeviceSpec is a device plus the bindings for its capabilities.
type DeviceSpec struct {
	Device   *device.Device
	Bindings []Binding
}

// Inventory is the result of one discovery pass.
type Inventory struct {
	Devices []DeviceSpec
	Areas   []device.Area
}

// Discoverer produces the adapter's inventory once the broker session is up.
type Discoverer interface {
	Discover(ctx context.Context, c Client) (Inventory, error)
}

// StaticDiscoverer serves devices declared in configuration.
type StaticDiscoverer struct {
	AdapterID string
	Devices   []config.MQTTDeviceConfig
}

// Discover builds the configured inventory. It never touches the broker.
func (s StaticDiscoverer) Discover(context.Context, Client) (Inventory, error) {
	return StaticInventory(s.AdapterID, s.Devices)
}

// StaticInventory converts configured devices into specs. Topics and
// capability names are checked here because they reach the broker verbatim.
func StaticInventory(adapterID string, devs []config.MQTTDeviceConfig) (Inventory, error) {
	const op = "mqtt.StaticInventory"

	var inv Inventory
	areas := make(map[string]struct{})
	for _, dc := range devs {
		devType := device.DeviceType(dc.Type)
		if dc.Type == "" {
			devType = device.DeviceTypeGeneric
		}
		d := &device.Device{
			ID:           dc.ID,
			Name:         dc.Name,
			Type:         devType,
			AreaID:       dc.AreaID,
			AdapterID:    adapterID,
			NativeID:     dc.ID,
			Tags:         slices.Clone(dc.Tags),
			Manufacturer: dc.Manufacturer,
			Model:        dc.Model,
			Online:       true,
		}
		if d.Name == "" {
			d.Name = dc.ID
		}
		if d.Tags == nil {
			d.Tags = []string{}
		}

		spec := DeviceSpec{Device: d}
		for _, cc := range dc.Capabilities {
			capType, err := validate.Enum("capability", cc.Type, device.AllCapabilityTypes()...)
			if err != nil {
				return Inventory{}, device.NewError(device.KindConfiguration, op, fmt.Errorf("device %s: %w", dc.ID, err))
			}
			for _, topic := range []string{cc.StateTopic, cc.CommandTopic} {
				if topic == "" {
					continue
				}
				if err := validate.Topic(topic); err != nil {
					return Inventory{}, device.NewError(device.KindConfiguration, op, fmt.Errorf("device %s: %w", dc.ID, err))
				}
			}
			format := FormatJSON
			if strings.EqualFold(cc.Format, string(FormatRaw)) {
				format = FormatRaw
			}
			d.Capabilities = append(d.Capabilities, device.Capability{Type: capType, Supported: true})
			spec.Bindings = append(spec.Bindings, Binding{
				DeviceID:     dc.ID,
				Capability:   capType,
				StateTopic:   cc.StateTopic,
				CommandTopic: cc.CommandTopic,
				Format:       format,
				Property:     cc.Property,
				PayloadOn:    cc.PayloadOn,
				PayloadOff:   cc.PayloadOff,
			})
		}
		if err := device.ValidateDevice(d); err != nil {
			return Inventory{}, device.NewError(device.KindConfiguration, op, err)
		}
		inv.Devices = append(inv.Devices, spec)
		if d.AreaID != "" {
			if _, ok := areas[d.AreaID]; !ok {
				areas[d.AreaID] = struct{}{}
				inv.Areas = append(inv.Areas, device.Area{ID: d.AreaID, Name: AreaName(d.AreaID), Tags: []string{}})
			}
		}
	}
	return inv, nil
}

// AreaName turns "living_room" into "Living Room".
func AreaName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '_' || r == '-' || r == '.' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
