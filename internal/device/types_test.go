package device

import (
	"errors"
	"testing"
)

func kitchenLight() *Device {
	sw, _ := NewCapability(CapSwitch, SwitchState{On: true})
	dim, _ := NewCapability(CapDimmer, DimmerState{Brightness: 40})
	col, _ := NewCapability(CapColorLight, ColorState{Hue: Float(120), Saturation: Float(50)})
	return &Device{
		ID:           "light.kitchen",
		Name:         "Kitchen Light",
		Type:         DeviceTypeLight,
		AdapterID:    "fake",
		NativeID:     "kitchen-1",
		Capabilities: []Capability{sw, dim, col},
		Tags:         []string{"downstairs"},
		Online:       true,
		Metadata:     map[string]any{"nested": map[string]any{"k": "v"}},
	}
}

func TestCapabilitySetStateRejectsMismatch(t *testing.T) {
	c := Capability{Type: CapSwitch, Supported: true}

	if err := c.SetState(SwitchState{On: true}); err != nil {
		t.Fatalf("SetState(SwitchState) error = %v", err)
	}
	err := c.SetState(DimmerState{Brightness: 10})
	if !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("SetState(DimmerState) error = %v, want ErrStateMismatch", err)
	}
	if got := c.State.(SwitchState); !got.On {
		t.Error("mismatched SetState must leave prior state in place")
	}
}

func TestNewCapabilityMismatch(t *testing.T) {
	if _, err := NewCapability(CapLock, CoverState{Position: 3}); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("NewCapability() error = %v, want ErrStateMismatch", err)
	}
}

func TestDeviceSetState(t *testing.T) {
	d := kitchenLight()

	if err := d.SetState(DimmerState{Brightness: 90}); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}
	c, _ := d.Capability(CapDimmer)
	if got := c.State.(DimmerState).Brightness; got != 90 {
		t.Errorf("brightness = %d, want 90", got)
	}

	err := d.SetState(LockState{Locked: true})
	if !errors.Is(err, ErrCapabilityNotFound) {
		t.Errorf("SetState(LockState) error = %v, want ErrCapabilityNotFound", err)
	}
	if KindOf(err) != KindNotFound {
		t.Errorf("KindOf() = %s, want %s", KindOf(err), KindNotFound)
	}
}

func TestDeepCopyIsIndependent(t *testing.T) {
	orig := kitchenLight()
	cpy := orig.DeepCopy()

	cpy.Tags[0] = "changed"
	cpy.Metadata["nested"].(map[string]any)["k"] = "changed"
	*cpy.Capabilities[2].State.(ColorState).Hue = 300
	_ = cpy.SetState(SwitchState{On: false})

	if orig.Tags[0] != "downstairs" {
		t.Error("Tags shared between copies")
	}
	if orig.Metadata["nested"].(map[string]any)["k"] != "v" {
		t.Error("Metadata shared between copies")
	}
	if *orig.Capabilities[2].State.(ColorState).Hue != 120 {
		t.Error("ColorState hue shared between copies")
	}
	if !orig.Capabilities[0].State.(SwitchState).On {
		t.Error("capability slice shared between copies")
	}

	var nilDevice *Device
	if nilDevice.DeepCopy() != nil {
		t.Error("DeepCopy(nil) should return nil")
	}
}

func TestFilterMatches(t *testing.T) {
	d := kitchenLight()
	d.AreaID = "kitchen"
	online, offline := true, false

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty", filter: Filter{}, want: true},
		{name: "adapter", filter: Filter{AdapterID: "fake"}, want: true},
		{name: "other adapter", filter: Filter{AdapterID: "mqtt"}, want: false},
		{name: "area", filter: Filter{AreaID: "kitchen"}, want: true},
		{name: "type", filter: Filter{Type: DeviceTypeLock}, want: false},
		{name: "capability", filter: Filter{Capability: CapDimmer}, want: true},
		{name: "missing capability", filter: Filter{Capability: CapLock}, want: false},
		{name: "tag", filter: Filter{Tag: "downstairs"}, want: true},
		{name: "online", filter: Filter{Online: &online}, want: true},
		{name: "offline", filter: Filter{Online: &offline}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(d); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateDevice(t *testing.T) {
	if err := ValidateDevice(kitchenLight()); err != nil {
		t.Fatalf("ValidateDevice(valid) = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Device)
	}{
		{name: "bad id", mutate: func(d *Device) { d.ID = "has space" }},
		{name: "no adapter", mutate: func(d *Device) { d.AdapterID = "" }},
		{name: "no name", mutate: func(d *Device) { d.Name = " " }},
		{name: "bad type", mutate: func(d *Device) { d.Type = "toaster" }},
		{name: "bad capability", mutate: func(d *Device) { d.Capabilities[0].Type = "teleport" }},
		{name: "duplicate capability", mutate: func(d *Device) { d.Capabilities[1] = d.Capabilities[0] }},
		{name: "state mismatch", mutate: func(d *Device) { d.Capabilities[0].State = LockState{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := kitchenLight()
			tt.mutate(d)
			err := ValidateDevice(d)
			if KindOf(err) != KindValidation {
				t.Errorf("ValidateDevice() kind = %q (err %v), want VALIDATION", KindOf(err), err)
			}
		})
	}
}
