// Package bridges builds protocol adapters from configuration.
//
// The set of adapter kinds is closed: fake, mqtt, zigbee2mqtt and hub. Each
// kind lives in its own sub-package; this package only selects one by the
// configured type and translates the shared lifecycle settings.
package bridges

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-adapters/internal/adapter"
	"github.com/nerrad567/gray-logic-adapters/internal/bridges/fake"
	"github.com/nerrad567/gray-logic-adapters/internal/bridges/hub"
	"github.com/nerrad567/gray-logic-adapters/internal/bridges/mqtt"
	"github.com/nerrad567/gray-logic-adapters/internal/bridges/zigbee2mqtt"
	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/config"
)

// ErrUnknownType is returned for an adapter type outside the closed set.
var ErrUnknownType = errors.New("bridges: unknown adapter type")

// Deps are the collaborators shared by every adapter.
type Deps struct {
	Logger adapter.Logger

	// MQTTDialer replaces the broker dialer for mqtt and zigbee2mqtt.
	MQTTDialer mqtt.Dialer
	// HTTPClient and WSDialer replace the hub transports.
	HTTPClient *http.Client
	WSDialer   *websocket.Dialer

	// After replaces time.After for reconnect waits.
	After func(time.Duration) <-chan time.Time
}

// New constructs the adapter described by cfg. No connection is made.
func New(cfg config.AdapterConfig, deps Deps) (adapter.Adapter, error) {
	const op = "bridges.New"
	lc := LifecycleConfig(cfg)

	switch cfg.Type {
	case config.AdapterTypeFake:
		return fake.New(fake.Options{Config: lc, Logger: deps.Logger}), nil

	case config.AdapterTypeMQTT:
		if cfg.MQTT == nil {
			return nil, device.Errorf(device.KindConfiguration, op, "adapter %s: missing mqtt block", cfg.ID)
		}
		return mqtt.New(mqtt.Options{
			Config:     lc,
			Broker:     cfg.MQTT.MQTTConfig,
			Logger:     deps.Logger,
			Discoverer: mqtt.StaticDiscoverer{AdapterID: cfg.ID, Devices: cfg.MQTT.Devices},
			Dialer:     deps.MQTTDialer,
			After:      deps.After,
		}), nil

	case config.AdapterTypeZigbee2MQTT:
		if cfg.Zigbee2MQTT == nil {
			return nil, device.Errorf(device.KindConfiguration, op, "adapter %s: missing zigbee2mqtt block", cfg.ID)
		}
		return zigbee2mqtt.New(zigbee2mqtt.Options{
			Config: lc,
			Bridge: *cfg.Zigbee2MQTT,
			Logger: deps.Logger,
			Dialer: deps.MQTTDialer,
			After:  deps.After,
		}), nil

	case config.AdapterTypeHub:
		if cfg.Hub == nil {
			return nil, device.Errorf(device.KindConfiguration, op, "adapter %s: missing hub block", cfg.ID)
		}
		return hub.New(hub.Options{
			Config:     lc,
			Hub:        *cfg.Hub,
			Logger:     deps.Logger,
			HTTPClient: deps.HTTPClient,
			Dialer:     deps.WSDialer,
			After:      deps.After,
		}), nil
	}
	return nil, device.Errorf(device.KindConfiguration, op, "%w: %q (adapter %s)", ErrUnknownType, cfg.Type, cfg.ID)
}

// LifecycleConfig extracts the shared reconnect and health settings.
func LifecycleConfig(cfg config.AdapterConfig) adapter.Config {
	return adapter.Config{
		ID:                   cfg.ID,
		Kind:                 cfg.Type,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectDelay:       cfg.GetReconnectDelay(),
		HealthCheckInterval:  cfg.GetHealthCheckInterval(),
	}
}
