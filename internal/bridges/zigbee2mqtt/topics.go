package zigbee2mqtt

import "strings"

// DefaultBaseTopic is the Zigbee2MQTT base_topic out of the box.
const DefaultBaseTopic = "zigbee2mqtt"

// Topics builds Zigbee2MQTT topic names under a base topic.
//
//	topics := Topics{Base: "zigbee2mqtt"}
//	topics.DeviceSet("hallway_lamp")
//	// Returns: "zigbee2mqtt/hallway_lamp/set"
type Topics struct {
	Base string
}

func (t Topics) base() string {
	if b := strings.Trim(t.Base, "/"); b != "" {
		return b
	}
	return DefaultBaseTopic
}

// BridgeAll is the wildcard for every bridge topic.
//
// Example: zigbee2mqtt/bridge/#
func (t Topics) BridgeAll() string {
	return t.base() + "/bridge/#"
}

// BridgeState carries the bridge online/offline status.
//
// Example: zigbee2mqtt/bridge/state
func (t Topics) BridgeState() string {
	return t.base() + "/bridge/state"
}

// BridgeDevices carries the device list (retained).
//
// Example: zigbee2mqtt/bridge/devices
func (t Topics) BridgeDevices() string {
	return t.base() + "/bridge/devices"
}

// RequestDevices asks the bridge to republish its device list.
//
// Example: zigbee2mqtt/bridge/request/devices
func (t Topics) RequestDevices() string {
	return t.base() + "/bridge/request/devices"
}

// Device is the state topic for a device.
//
// Example: zigbee2mqtt/hallway_lamp
func (t Topics) Device(friendlyName string) string {
	return t.base() + "/" + friendlyName
}

// DeviceSet is the command topic for a device.
//
// Example: zigbee2mqtt/hallway_lamp/set
func (t Topics) DeviceSet(friendlyName string) string {
	return t.base() + "/" + friendlyName + "/set"
}
