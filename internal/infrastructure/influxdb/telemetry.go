package influxdb

import (
	"maps"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-adapters/internal/adapter"
	"github.com/nerrad567/gray-logic-adapters/internal/device"
)

// Measurements.
const (
	measurementState        = "device_state"
	measurementAvailability = "device_availability"
)

// WriteDeviceState queues one point per capability of d plus an
// availability point.
func (c *Client) WriteDeviceState(d *device.Device) {
	if !c.IsConnected() {
		return
	}
	for _, p := range devicePoints(d, c.now()) {
		c.writeAPI.WritePoint(p)
	}
}

// StateListener returns an adapter listener that records every
// state_changed event carrying a device snapshot.
func (c *Client) StateListener() adapter.Listener {
	return func(e adapter.Event) {
		if e.Type == adapter.EventStateChanged && e.Device != nil {
			c.WriteDeviceState(e.Device)
		}
	}
}

// devicePoints converts a device snapshot into points stamped with its
// LastUpdated time, or now when unset.
func devicePoints(d *device.Device, now time.Time) []*write.Point {
	at := d.LastUpdated
	if at.IsZero() {
		at = now
	}
	base := map[string]string{
		"device_id":   d.ID,
		"adapter_id":  d.AdapterID,
		"device_type": string(d.Type),
	}
	if d.AreaID != "" {
		base["area_id"] = d.AreaID
	}

	points := []*write.Point{
		write.NewPoint(measurementAvailability, base, map[string]any{"online": d.Online}, at),
	}
	for _, c := range d.Capabilities {
		fields := stateFields(c.State)
		if len(fields) == 0 {
			continue
		}
		tags := maps.Clone(base)
		tags["capability"] = string(c.Type)
		points = append(points, write.NewPoint(measurementState, tags, fields, at))
	}
	return points
}

// stateFields flattens a capability state into line-protocol fields. Unset
// optional values are omitted.
func stateFields(st device.CapabilityState) map[string]any {
	f := make(map[string]any)
	putFloat := func(k string, v *float64) {
		if v != nil {
			f[k] = *v
		}
	}
	putString := func(k, v string) {
		if v != "" {
			f[k] = v
		}
	}

	switch s := st.(type) {
	case device.SwitchState:
		f["on"] = s.On
	case device.LightState:
		f["on"] = s.On
	case device.DimmerState:
		f["brightness"] = s.Brightness
	case device.ColorState:
		putFloat("hue", s.Hue)
		putFloat("saturation", s.Saturation)
		if s.RGB != nil {
			f["red"], f["green"], f["blue"] = s.RGB[0], s.RGB[1], s.RGB[2]
		}
	case device.ThermostatState:
		putFloat("temperature", s.Temperature)
		putFloat("target_temperature", s.TargetTemperature)
		putString("mode", string(s.Mode))
	case device.ClimateState:
		putFloat("temperature", s.Temperature)
		putFloat("target_temperature", s.TargetTemperature)
		putFloat("humidity", s.Humidity)
		putString("mode", string(s.Mode))
		putString("fan_mode", s.FanMode)
	case device.LockState:
		f["locked"] = s.Locked
	case device.CoverState:
		f["position"] = s.Position
		putString("moving", s.Moving)
	case device.MediaPlayerState:
		putString("state", s.State)
		putFloat("volume", s.Volume)
		putString("source", s.Source)
	case device.SensorState:
		for k, v := range s.Values {
			switch v.(type) {
			case float64, float32, int, int64, bool, string:
				f[k] = v
			}
		}
	case device.AlarmState:
		f["armed"] = s.Armed
		putString("mode", s.Mode)
	}
	return f
}
