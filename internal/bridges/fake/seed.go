package fake

import (
	"github.com/nerrad567/gray-logic-adapters/internal/device"
)

func mustCap(t device.CapabilityType, st device.CapabilityState) device.Capability {
	c, err := device.NewCapability(t, st)
	if err != nil {
		panic(err)
	}
	return c
}

func seedAreas() []device.Area {
	ground, first := 0, 1
	return []device.Area{
		{ID: "kitchen", Name: "Kitchen", Floor: &ground, Tags: []string{}},
		{ID: "living_room", Name: "Living Room", Floor: &ground, Tags: []string{}, Aliases: []string{"lounge"}},
		{ID: "hallway", Name: "Hallway", Floor: &ground, Tags: []string{}},
		{ID: "bedroom", Name: "Bedroom", Floor: &first, Tags: []string{}},
	}
}

func seedDevices(adapterID string) []*device.Device {
	dev := func(id, name string, t device.DeviceType, area string, caps ...device.Capability) *device.Device {
		return &device.Device{
			ID:           id,
			Name:         name,
			Type:         t,
			AreaID:       area,
			AdapterID:    adapterID,
			NativeID:     "fake-" + id,
			Capabilities: caps,
			Tags:         []string{},
			Manufacturer: "Gray Logic",
			Model:        "Fixture",
			Online:       true,
			Metadata:     map[string]any{},
		}
	}

	return []*device.Device{
		dev("light.kitchen", "Kitchen Light", device.DeviceTypeLight, "kitchen",
			mustCap(device.CapSwitch, device.SwitchState{On: true}),
			mustCap(device.CapDimmer, device.DimmerState{Brightness: 80}),
		),
		dev("light.living_room", "Living Room Lamp", device.DeviceTypeLight, "living_room",
			mustCap(device.CapLight, device.LightState{On: false}),
			mustCap(device.CapDimmer, device.DimmerState{Brightness: 50}),
			mustCap(device.CapColorLight, device.ColorState{Hue: device.Float(30), Saturation: device.Float(60)}),
		),
		dev("switch.coffee_maker", "Coffee Maker", device.DeviceTypeSwitch, "kitchen",
			mustCap(device.CapSwitch, device.SwitchState{On: false}),
		),
		dev("thermostat.hallway", "Hallway Thermostat", device.DeviceTypeThermostat, "hallway",
			mustCap(device.CapThermostat, device.ThermostatState{
				Temperature:       device.Float(20.5),
				TargetTemperature: device.Float(21),
				Mode:              device.ModeHeat,
			}),
		),
		dev("lock.front_door", "Front Door", device.DeviceTypeLock, "hallway",
			mustCap(device.CapLock, device.LockState{Locked: true}),
		),
		dev("cover.bedroom_blinds", "Bedroom Blinds", device.DeviceTypeCover, "bedroom",
			mustCap(device.CapCover, device.CoverState{Position: 0}),
		),
		dev("sensor.bedroom_climate", "Bedroom Climate Sensor", device.DeviceTypeSensor, "bedroom",
			mustCap(device.CapSensor, device.SensorState{
				Values: map[string]any{"temperature": 19.5, "humidity": 45.0},
				Units:  map[string]string{"temperature": "°C", "humidity": "%"},
			}),
		),
		dev("alarm.house", "House Alarm", device.DeviceTypeGeneric, "hallway",
			mustCap(device.CapAlarm, device.AlarmState{Armed: true, Mode: "armed_away"}),
		),
		dev("media.living_room", "Living Room Speaker", device.DeviceTypeMediaPlayer, "living_room",
			mustCap(device.CapMediaPlayer, device.MediaPlayerState{State: "idle", Volume: device.Float(0.3)}),
		),
	}
}

func seedScenes(adapterID string) []device.Scene {
	return []device.Scene{
		{ID: "scene.movie_night", Name: "Movie Night", Icon: "mdi:movie", AdapterID: adapterID, NativeID: "fake-movie", Tags: []string{"evening"}},
		{ID: "scene.good_morning", Name: "Good Morning", Description: "Blinds up, coffee on", AdapterID: adapterID, NativeID: "fake-morning", Tags: []string{}},
	}
}
