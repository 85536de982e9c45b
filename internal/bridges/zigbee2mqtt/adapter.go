// Package zigbee2mqtt implements the Zigbee2MQTT adapter.
//
// It is the generic MQTT adapter plus a discovery strategy: after each
// broker connect it asks the bridge for its device list, maps each device's
// exposes to capabilities and binds them to the device's state and /set
// topics. Payloads use Zigbee2MQTT's native field names, so the generic codec
// handles them through per-binding field maps and brightness scaling.
//
// Bridge online/offline messages on <base>/bridge/state toggle the adapter's
// connected flag without tearing down the broker session.
package zigbee2mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-adapters/internal/adapter"
	"github.com/nerrad567/gray-logic-adapters/internal/bridges/mqtt"
	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-adapters/internal/validate"
)

// Kind is the adapter type name used in configuration.
const Kind = "zigbee2mqtt"

const (
	bridgeQoS               = 1
	defaultDiscoveryTimeout = 10 * time.Second
	coordinatorType         = "Coordinator"
)

// Options configures a Zigbee2MQTT adapter.
type Options struct {
	Config adapter.Config
	Bridge config.Zigbee2MQTTConfig
	Logger adapter.Logger

	// Dialer defaults to mqtt.DialBroker.
	Dialer mqtt.Dialer
	After  func(time.Duration) <-chan time.Time
}

// Adapter is the Zigbee2MQTT protocol adapter.
type Adapter struct {
	*mqtt.Adapter

	topics           Topics
	include          map[string]struct{}
	exclude          map[string]struct{}
	discoveryTimeout time.Duration

	// devices holds the most recent bridge/devices payload not yet consumed.
	devices      chan []byte
	bridgeOnline atomic.Bool
}

// New creates a Zigbee2MQTT adapter. No connection is made until Initialize.
func New(opts Options) *Adapter {
	cfg := opts.Config
	cfg.Kind = Kind

	z := &Adapter{
		topics:           Topics{Base: opts.Bridge.BaseTopic},
		include:          toSet(opts.Bridge.Include),
		exclude:          toSet(opts.Bridge.Exclude),
		discoveryTimeout: opts.Bridge.GetDiscoveryTimeout(),
		devices:          make(chan []byte, 1),
	}
	if z.discoveryTimeout <= 0 {
		z.discoveryTimeout = defaultDiscoveryTimeout
	}
	z.Adapter = mqtt.New(mqtt.Options{
		Config:     cfg,
		Broker:     opts.Bridge.MQTTConfig,
		Logger:     opts.Logger,
		Discoverer: z,
		Dialer:     opts.Dialer,
		After:      opts.After,
	})
	return z
}

var _ adapter.Adapter = (*Adapter)(nil)

// Topics returns the topic builder for this bridge.
func (z *Adapter) Topics() Topics { return z.topics }

// BridgeOnline reports the last status the bridge announced.
func (z *Adapter) BridgeOnline() bool { return z.bridgeOnline.Load() }

// Discover runs the device-list handshake: subscribe to the bridge topics,
// request the device list and wait for it up to the discovery timeout.
func (z *Adapter) Discover(ctx context.Context, c mqtt.Client) (mqtt.Inventory, error) {
	const op = "zigbee2mqtt.discover"

	// A list left over from an earlier session is stale.
	select {
	case <-z.devices:
	default:
	}

	if err := c.Subscribe(z.topics.BridgeAll(), bridgeQoS, z.handleBridge); err != nil {
		return mqtt.Inventory{}, device.NewError(device.KindNetwork, op, fmt.Errorf("subscribing %s: %w", z.topics.BridgeAll(), err))
	}
	if err := c.Publish(z.topics.RequestDevices(), []byte("{}"), bridgeQoS, false); err != nil {
		return mqtt.Inventory{}, device.NewError(device.KindNetwork, op, fmt.Errorf("requesting device list: %w", err))
	}

	payload, err := validate.WithTimeout(ctx, z.discoveryTimeout, func(ctx context.Context) ([]byte, error) {
		select {
		case p := <-z.devices:
			return p, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	if err != nil {
		return mqtt.Inventory{}, device.NewError(device.KindTimeout, op, fmt.Errorf("waiting for %s: %w", z.topics.BridgeDevices(), err))
	}
	return z.inventory(payload)
}

// handleBridge receives every <base>/bridge/# message.
func (z *Adapter) handleBridge(topic string, payload []byte) error {
	switch topic {
	case z.topics.BridgeDevices():
		p := bytes.Clone(payload)
		select {
		case <-z.devices:
		default:
		}
		select {
		case z.devices <- p:
		default:
		}
	case z.topics.BridgeState():
		online := parseBridgeState(payload)
		was := z.bridgeOnline.Swap(online)
		if was != online {
			z.Logger().Info("zigbee2mqtt bridge state", "adapter_id", z.ID(), "online", online)
		}
		// During connect and reconnect the lifecycle owns the flag.
		if z.Running() && !z.Reconnecting() {
			z.SetConnected(online)
		}
	}
	return nil
}

// parseBridgeState accepts both the JSON ({"state":"online"}) and the
// legacy plain-string forms.
func parseBridgeState(payload []byte) bool {
	v := validate.JSON(payload)
	if m, ok := v.(map[string]any); ok {
		v = m["state"]
	}
	s, _ := v.(string)
	return strings.EqualFold(s, "online")
}

// inventory turns a bridge/devices payload into device specs.
func (z *Adapter) inventory(payload []byte) (mqtt.Inventory, error) {
	const op = "zigbee2mqtt.inventory"

	var list []bridgeDevice
	if err := json.Unmarshal(payload, &list); err != nil {
		return mqtt.Inventory{}, device.Errorf(device.KindValidation, op, "%w: malformed device list: %v", validate.ErrInvalid, err)
	}

	var inv mqtt.Inventory
	areas := make(map[string]struct{})
	for _, bd := range list {
		if !z.accept(bd) {
			continue
		}
		spec, ok := z.deviceSpec(bd)
		if !ok {
			continue
		}
		inv.Devices = append(inv.Devices, spec)
		if id := spec.Device.AreaID; id != "" {
			if _, seen := areas[id]; !seen {
				areas[id] = struct{}{}
				inv.Areas = append(inv.Areas, device.Area{ID: id, Name: mqtt.AreaName(id), Tags: []string{}})
			}
		}
	}
	return inv, nil
}

// accept applies the coordinator/supported/disabled rules and the
// configured include and exclude lists.
func (z *Adapter) accept(bd bridgeDevice) bool {
	if strings.EqualFold(bd.Type, coordinatorType) || !bd.supported() || bd.Disabled {
		return false
	}
	if len(z.include) > 0 && !matches(z.include, bd) {
		return false
	}
	return !matches(z.exclude, bd)
}

func matches(set map[string]struct{}, bd bridgeDevice) bool {
	_, byName := set[bd.FriendlyName]
	_, byAddr := set[strings.ToLower(bd.IEEEAddress)]
	return byName || byAddr
}

func (z *Adapter) deviceSpec(bd bridgeDevice) (mqtt.DeviceSpec, bool) {
	log := z.Logger()
	if err := validate.Topic(z.topics.DeviceSet(bd.FriendlyName)); err != nil {
		log.Warn("zigbee2mqtt device skipped", "friendly_name", bd.FriendlyName, "error", err)
		return mqtt.DeviceSpec{}, false
	}

	id := DeviceID(bd.IEEEAddress)
	var exposes []expose
	if bd.Definition != nil {
		exposes = bd.Definition.Exposes
	}
	bindings := capabilitiesFromExposes(z.topics, id, bd.FriendlyName, exposes)
	if len(bindings) == 0 {
		log.Debug("zigbee2mqtt device has no mapped capabilities", "friendly_name", bd.FriendlyName)
		return mqtt.DeviceSpec{}, false
	}

	caps := make([]device.CapabilityType, 0, len(bindings))
	d := &device.Device{
		ID:           id,
		Name:         bd.FriendlyName,
		AreaID:       areaFromName(bd.FriendlyName),
		AdapterID:    z.ID(),
		NativeID:     bd.IEEEAddress,
		Tags:         []string{"zigbee"},
		Manufacturer: bd.Manufacturer,
		Model:        bd.ModelID,
		Online:       true,
		Metadata: map[string]any{
			"ieee_address":  bd.IEEEAddress,
			"friendly_name": bd.FriendlyName,
		},
	}
	if def := bd.Definition; def != nil {
		if def.Vendor != "" {
			d.Manufacturer = def.Vendor
		}
		if def.Model != "" {
			d.Model = def.Model
		}
		if def.Description != "" {
			d.Metadata["description"] = def.Description
		}
	}
	for _, b := range bindings {
		caps = append(caps, b.Capability)
		d.Capabilities = append(d.Capabilities, device.Capability{Type: b.Capability, Supported: true})
	}
	d.Type = inferType(caps)

	if err := device.ValidateDevice(d); err != nil {
		log.Warn("zigbee2mqtt device skipped", "friendly_name", bd.FriendlyName, "error", err)
		return mqtt.DeviceSpec{}, false
	}
	return mqtt.DeviceSpec{Device: d, Bindings: bindings}, true
}

// DeviceID is the normalised device ID for an IEEE address.
func DeviceID(ieee string) string {
	return "zigbee_" + strings.ToLower(strings.TrimSpace(ieee))
}

// areaFromName uses the first segment of a grouped friendly name
// ("kitchen/ceiling") as the area.
func areaFromName(friendlyName string) string {
	head, _, found := strings.Cut(friendlyName, "/")
	if !found || strings.TrimSpace(head) == "" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(head)), " ", "_")
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items)*2)
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		set[s] = struct{}{}
		set[strings.ToLower(s)] = struct{}{}
	}
	return set
}
