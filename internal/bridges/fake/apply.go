package fake

import (
	"github.com/nerrad567/gray-logic-adapters/internal/device"
)

const op = "fake.ExecuteCommand"

// apply mutates d according to cmd. Only the targeted capability changes.
func apply(d *device.Device, cmd device.DeviceCommand) error {
	switch cmd.Action {
	case device.ActionTurnOn, device.ActionTurnOff, device.ActionToggle:
		return applyPower(d, cmd)

	case device.ActionSetBrightness:
		if cmd.Params.Brightness == nil {
			return missingParam(cmd, device.ParamBrightness)
		}
		return setState(d, device.DimmerState{Brightness: *cmd.Params.Brightness})

	case device.ActionSetColor:
		if cmd.Params.Color == nil {
			return missingParam(cmd, device.ParamColor)
		}
		st := device.ColorState{}
		if hs := cmd.Params.Color.HS; hs != nil {
			st.Hue, st.Saturation = device.Float(hs.Hue), device.Float(hs.Saturation)
		}
		if rgb := cmd.Params.Color.RGB; rgb != nil {
			c := *rgb
			st.RGB = &c
		}
		return setState(d, st)

	case device.ActionSetTemperature, device.ActionSetMode:
		return applyThermostat(d, cmd)

	case device.ActionLock, device.ActionUnlock:
		return setState(d, device.LockState{Locked: cmd.Action == device.ActionLock})

	case device.ActionOpen:
		return setState(d, device.CoverState{Position: device.MaxPosition})
	case device.ActionClose:
		return setState(d, device.CoverState{Position: device.MinPosition})
	case device.ActionSetPosition:
		if cmd.Params.Position == nil {
			return missingParam(cmd, device.ParamPosition)
		}
		return setState(d, device.CoverState{Position: *cmd.Params.Position})
	case device.ActionStop:
		c, ok := d.Capability(device.CapCover)
		if !ok {
			return capabilityMissing(d, device.CapCover)
		}
		st, _ := c.State.(device.CoverState)
		st.Moving = ""
		return c.SetState(st)

	case device.ActionArm, device.ActionDisarm:
		mode := "armed_away"
		if cmd.Action == device.ActionDisarm {
			mode = "disarmed"
		}
		return setState(d, device.AlarmState{Armed: cmd.Action == device.ActionArm, Mode: mode})

	case device.ActionPlay, device.ActionPause:
		state := "playing"
		if cmd.Action == device.ActionPause {
			state = "paused"
		}
		return setState(d, device.MediaPlayerState{State: state})

	default:
		return device.Errorf(device.KindNotFound, op, "%w: %q", device.ErrActionNotSupported, cmd.Action)
	}
}

// applyPower switches the command's capability when it is switch or light,
// otherwise whichever of the two the device has.
func applyPower(d *device.Device, cmd device.DeviceCommand) error {
	target := cmd.Capability
	if target != device.CapSwitch && target != device.CapLight {
		switch {
		case d.HasCapability(device.CapSwitch):
			target = device.CapSwitch
		case d.HasCapability(device.CapLight):
			target = device.CapLight
		default:
			return capabilityMissing(d, device.CapSwitch)
		}
	}
	c, ok := d.Capability(target)
	if !ok {
		return capabilityMissing(d, target)
	}

	current := false
	switch st := c.State.(type) {
	case device.SwitchState:
		current = st.On
	case device.LightState:
		current = st.On
	}
	on := cmd.Action == device.ActionTurnOn || (cmd.Action == device.ActionToggle && !current)

	if target == device.CapLight {
		return c.SetState(device.LightState{On: on})
	}
	return c.SetState(device.SwitchState{On: on})
}

func applyThermostat(d *device.Device, cmd device.DeviceCommand) error {
	if cmd.Action == device.ActionSetTemperature && cmd.Params.Temperature == nil {
		return missingParam(cmd, device.ParamTemperature)
	}
	if cmd.Action == device.ActionSetMode && cmd.Params.Mode == "" {
		return missingParam(cmd, device.ParamMode)
	}

	if c, ok := d.Capability(device.CapClimate); ok && cmd.Capability == device.CapClimate {
		st, _ := c.State.(device.ClimateState)
		if cmd.Params.Temperature != nil {
			st.TargetTemperature = device.Float(*cmd.Params.Temperature)
		}
		if cmd.Params.Mode != "" {
			st.Mode = cmd.Params.Mode
		}
		return c.SetState(st)
	}

	c, ok := d.Capability(device.CapThermostat)
	if !ok {
		return capabilityMissing(d, device.CapThermostat)
	}
	st, _ := c.State.(device.ThermostatState)
	if cmd.Params.Temperature != nil {
		st.TargetTemperature = device.Float(*cmd.Params.Temperature)
	}
	if cmd.Params.Mode != "" {
		st.Mode = cmd.Params.Mode
	}
	return c.SetState(st)
}

func setState(d *device.Device, st device.CapabilityState) error {
	if err := d.SetState(st); err != nil {
		return device.NewError(device.KindNotFound, op, err)
	}
	return nil
}

func capabilityMissing(d *device.Device, c device.CapabilityType) error {
	return device.Errorf(device.KindNotFound, op, "%w: device %s has no %s capability", device.ErrCapabilityNotFound, d.ID, c)
}

func missingParam(cmd device.DeviceCommand, name string) error {
	return device.Errorf(device.KindValidation, op, "%w: %s requires %s", device.ErrInvalidCommand, cmd.Action, name)
}
