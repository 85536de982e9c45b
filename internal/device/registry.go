package device

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Registry is an adapter's in-memory store of the devices, areas and scenes
// discovered in the current session. Nothing is persisted: Clear drops it all
// on shutdown and discovery repopulates it.
//
// All methods are safe for concurrent use. Returned values are deep copies.
type Registry struct {
	mu       sync.RWMutex
	devices  map[string]*Device
	byNative map[string]string
	areas    map[string]Area
	scenes   map[string]Scene
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices:  make(map[string]*Device),
		byNative: make(map[string]string),
		areas:    make(map[string]Area),
		scenes:   make(map[string]Scene),
		now:      time.Now,
	}
}

// Upsert stores a copy of d, replacing any device with the same ID.
func (r *Registry) Upsert(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertLocked(d)
}

func (r *Registry) upsertLocked(d *Device) {
	if old, ok := r.devices[d.ID]; ok && old.NativeID != d.NativeID {
		delete(r.byNative, old.NativeID)
	}
	cpy := d.DeepCopy()
	if cpy.LastUpdated.IsZero() {
		cpy.LastUpdated = r.now()
	}
	r.devices[d.ID] = cpy
	if d.NativeID != "" {
		r.byNative[d.NativeID] = d.ID
	}
}

// ReplaceDevices swaps the whole device set for devs.
func (r *Registry) ReplaceDevices(devs []*Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = make(map[string]*Device, len(devs))
	r.byNative = make(map[string]string, len(devs))
	for _, d := range devs {
		r.upsertLocked(d)
	}
}

// Get returns the device with the given ID or a NOT_FOUND error.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, Errorf(KindNotFound, "registry.Get", "%w: %s", ErrDeviceNotFound, id)
	}
	return d.DeepCopy(), nil
}

// ByNativeID returns the device whose protocol-native ID is native.
func (r *Registry) ByNativeID(native string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNative[native]
	if !ok {
		return nil, false
	}
	return r.devices[id].DeepCopy(), true
}

// List returns every device ordered by ID.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.DeepCopy())
	}
	slices.SortFunc(out, func(a, b *Device) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Update applies fn to the stored device under the write lock and stamps
// LastUpdated when fn succeeds. It returns a copy of the updated device.
func (r *Registry) Update(id string, fn func(*Device) error) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, Errorf(KindNotFound, "registry.Update", "%w: %s", ErrDeviceNotFound, id)
	}
	// Work on a copy so a failing fn leaves the stored device untouched.
	work := d.DeepCopy()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.LastUpdated = r.now()
	r.devices[id] = work
	return work.DeepCopy(), nil
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// SetAreas replaces the area set.
func (r *Registry) SetAreas(areas []Area) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.areas = make(map[string]Area, len(areas))
	for _, a := range areas {
		a.Tags = slices.Clone(a.Tags)
		a.Aliases = slices.Clone(a.Aliases)
		r.areas[a.ID] = a
	}
}

// Areas returns every area ordered by ID.
func (r *Registry) Areas() []Area {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Area, 0, len(r.areas))
	for _, a := range r.areas {
		a.Tags = slices.Clone(a.Tags)
		a.Aliases = slices.Clone(a.Aliases)
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Area) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// SetScenes replaces the scene set.
func (r *Registry) SetScenes(scenes []Scene) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scenes = make(map[string]Scene, len(scenes))
	for _, s := range scenes {
		s.Tags = slices.Clone(s.Tags)
		r.scenes[s.ID] = s
	}
}

// Scene returns the scene with the given ID or a NOT_FOUND error.
func (r *Registry) Scene(id string) (Scene, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scenes[id]
	if !ok {
		return Scene{}, Errorf(KindNotFound, "registry.Scene", "%w: %s", ErrSceneNotFound, id)
	}
	s.Tags = slices.Clone(s.Tags)
	return s, nil
}

// Scenes returns every scene ordered by ID.
func (r *Registry) Scenes() []Scene {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Scene, 0, len(r.scenes))
	for _, s := range r.scenes {
		s.Tags = slices.Clone(s.Tags)
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Scene) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Clear drops every device, area and scene.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = make(map[string]*Device)
	r.byNative = make(map[string]string)
	r.areas = make(map[string]Area)
	r.scenes = make(map[string]Scene)
}
