package device

import (
	"errors"
	"testing"
)

func TestRegistryUpsertAndGet(t *testing.T) {
	r := NewRegistry()
	r.Upsert(kitchenLight())

	got, err := r.Get("light.kitchen")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LastUpdated.IsZero() {
		t.Error("LastUpdated not stamped on upsert")
	}

	got.Name = "mutated"
	again, _ := r.Get("light.kitchen")
	if again.Name != "Kitchen Light" {
		t.Error("Get() returned a shared pointer")
	}

	if d, ok := r.ByNativeID("kitchen-1"); !ok || d.ID != "light.kitchen" {
		t.Errorf("ByNativeID() = %v, %v", d, ok)
	}

	if _, err := r.Get("nope"); !errors.Is(err, ErrDeviceNotFound) || KindOf(err) != KindNotFound {
		t.Errorf("Get(nope) error = %v", err)
	}
}

func TestRegistryUpdateRollsBackOnError(t *testing.T) {
	r := NewRegistry()
	r.Upsert(kitchenLight())

	_, err := r.Update("light.kitchen", func(d *Device) error {
		_ = d.SetState(SwitchState{On: false})
		return errors.New("refused")
	})
	if err == nil {
		t.Fatal("Update() error = nil")
	}
	d, _ := r.Get("light.kitchen")
	c, _ := d.Capability(CapSwitch)
	if !c.State.(SwitchState).On {
		t.Error("failed Update must not persist changes")
	}

	updated, err := r.Update("light.kitchen", func(d *Device) error {
		return d.SetState(SwitchState{On: false})
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	c, _ = updated.Capability(CapSwitch)
	if c.State.(SwitchState).On {
		t.Error("Update() did not apply change")
	}
}

func TestRegistryListOrderAndClear(t *testing.T) {
	r := NewRegistry()
	b := kitchenLight()
	b.ID, b.NativeID = "b", "nb"
	a := kitchenLight()
	a.ID, a.NativeID = "a", "na"
	r.ReplaceDevices([]*Device{b, a})
	r.SetAreas([]Area{{ID: "z"}, {ID: "k"}})
	r.SetScenes([]Scene{{ID: "s2"}, {ID: "s1"}})

	list := r.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("List() order = %v", []string{list[0].ID, list[1].ID})
	}
	if areas := r.Areas(); areas[0].ID != "k" {
		t.Errorf("Areas()[0] = %s, want k", areas[0].ID)
	}
	if _, err := r.Scene("s1"); err != nil {
		t.Errorf("Scene(s1) error = %v", err)
	}
	if _, err := r.Scene("s9"); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("Scene(s9) error = %v", err)
	}

	r.Clear()
	if r.Len() != 0 || len(r.Areas()) != 0 || len(r.Scenes()) != 0 {
		t.Error("Clear() left data behind")
	}
	if _, ok := r.ByNativeID("na"); ok {
		t.Error("Clear() left native index behind")
	}
}
