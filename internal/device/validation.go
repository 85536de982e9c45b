package device

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-adapters/internal/validate"
)

const maxNameLength = 200

// Pre-computed validation sets for O(1) lookups.
var (
	validDeviceTypes  map[DeviceType]struct{}
	validCapabilities map[CapabilityType]struct{}
)

func init() {
	validDeviceTypes = make(map[DeviceType]struct{}, len(AllDeviceTypes()))
	for _, t := range AllDeviceTypes() {
		validDeviceTypes[t] = struct{}{}
	}

	validCapabilities = make(map[CapabilityType]struct{}, len(AllCapabilityTypes()))
	for _, c := range AllCapabilityTypes() {
		validCapabilities[c] = struct{}{}
	}
}

// IsValidDeviceType reports whether t is a known device type.
func IsValidDeviceType(t DeviceType) bool {
	_, ok := validDeviceTypes[t]
	return ok
}

// IsValidCapability reports whether c is a known capability type.
func IsValidCapability(c CapabilityType) bool {
	_, ok := validCapabilities[c]
	return ok
}

// ValidateDevice checks a device produced by an adapter before it is stored.
// Protocol payloads originate outside the process, so every field derived
// from them is checked here.
func ValidateDevice(d *Device) error {
	const op = "device.ValidateDevice"

	if _, err := validate.DeviceID(d.ID); err != nil {
		return NewError(KindValidation, op, err)
	}
	if err := validate.Required("adapter_id", d.AdapterID); err != nil {
		return NewError(KindValidation, op, err)
	}
	if strings.TrimSpace(d.Name) == "" || len(d.Name) > maxNameLength {
		return Errorf(KindValidation, op, "%w: device %s name must be 1-%d characters", validate.ErrInvalid, d.ID, maxNameLength)
	}
	if !IsValidDeviceType(d.Type) {
		return Errorf(KindValidation, op, "%w: device %s has unknown type %q", validate.ErrInvalid, d.ID, d.Type)
	}

	seen := make(map[CapabilityType]struct{}, len(d.Capabilities))
	for _, c := range d.Capabilities {
		if !IsValidCapability(c.Type) {
			return Errorf(KindValidation, op, "%w: device %s has unknown capability %q", validate.ErrInvalid, d.ID, c.Type)
		}
		if _, dup := seen[c.Type]; dup {
			return Errorf(KindValidation, op, "%w: device %s lists %s twice", validate.ErrInvalid, d.ID, c.Type)
		}
		seen[c.Type] = struct{}{}
		if c.State != nil && c.State.Capability() != c.Type {
			return NewError(KindValidation, op, fmt.Errorf("device %s: %w", d.ID, stateMismatch(c.Type, c.State.Capability())))
		}
	}
	return nil
}
