package policy

import "github.com/nerrad567/gray-logic-adapters/internal/device"

// ClassifyRisk grades a device command. Unlocking and disarming are HIGH,
// climate changes are MEDIUM and everything else takes fallback.
func ClassifyRisk(cmd device.DeviceCommand, d *device.Device, fallback RiskLevel) RiskLevel {
	switch cmd.Capability {
	case device.CapLock, device.CapAlarm:
		if cmd.Action == device.ActionUnlock || cmd.Action == device.ActionDisarm {
			return RiskHigh
		}
	case device.CapThermostat, device.CapClimate:
		return RiskMedium
	}
	if d != nil && d.Type == device.DeviceTypeLock && cmd.Action == device.ActionUnlock {
		return RiskHigh
	}
	if fallback == "" {
		return RiskSafe
	}
	return fallback
}
