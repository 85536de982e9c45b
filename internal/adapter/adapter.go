package adapter

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-adapters/internal/device"
)

// Adapter is a protocol driver translating between the normalised device
// model and one native home-automation protocol.
type Adapter interface {
	// ID is the configured adapter identifier.
	ID() string
	// Kind names the protocol variant (fake, mqtt, zigbee2mqtt, hub).
	Kind() string

	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error

	DiscoverDevices(ctx context.Context) ([]*device.Device, error)
	DiscoverScenes(ctx context.Context) ([]device.Scene, error)
	DiscoverAreas(ctx context.Context) ([]device.Area, error)

	GetDeviceState(ctx context.Context, deviceID string) (*device.Device, error)
	ExecuteCommand(ctx context.Context, cmd device.DeviceCommand) error
	ExecuteScene(ctx context.Context, cmd device.SceneCommand) error
	Refresh(ctx context.Context) error

	Status() Status
	Subscribe(l Listener) (unsubscribe func())
}

// Status is a point-in-time view of an adapter's connection health.
type Status struct {
	Connected         bool       `json:"connected"`
	Healthy           bool       `json:"healthy"`
	LastSync          *time.Time `json:"last_sync,omitempty"`
	LastHealthCheck   *time.Time `json:"last_health_check,omitempty"`
	Error             string     `json:"error,omitempty"`
	ReconnectAttempts int        `json:"reconnect_attempts"`
}

// EventType names an adapter event.
type EventType string

// Event types.
const (
	EventConnected        EventType = "connected"
	EventDisconnected     EventType = "disconnected"
	EventError            EventType = "error"
	EventDeviceDiscovered EventType = "device_discovered"
	EventStateChanged     EventType = "state_changed"
)

// Event is emitted by adapters to their listeners.
type Event struct {
	Type      EventType      `json:"type"`
	AdapterID string         `json:"adapter_id"`
	DeviceID  string         `json:"device_id,omitempty"`
	Device    *device.Device `json:"device,omitempty"`
	Err       error          `json:"-"`
	Message   string         `json:"message,omitempty"`
	// Terminal marks the error emitted once reconnect attempts are exhausted.
	Terminal  bool      `json:"terminal,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Listener receives adapter events. It runs on the emitting goroutine.
type Listener func(Event)

// Logger is the logging interface used by adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return noopLogger{} }
