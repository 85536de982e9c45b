// Package device defines the normalised home model shared by every adapter.
//
// Each protocol adapter translates its native representation into these
// types, so the manager, the policy engine and the API layer never see
// protocol details.
//
// # Key Types
//
//   - Device: a controllable or readable entity owned by exactly one adapter
//   - Capability: a typed behaviour (switch, dimmer, lock, ...) with its state
//   - CapabilityState: closed set of per-capability state shapes
//   - Area / Scene: zones and adapter-executed grouped actions
//   - DeviceCommand / SceneCommand: validated command values
//   - Error / Kind: the error taxonomy every component reports through
//
// # Invariants
//
// A capability's State always reports the same CapabilityType as the
// capability itself. Capability.SetState and Device.SetState enforce this.
//
// # Registry
//
// Registry is the in-memory device/area/scene store an adapter keeps for the
// lifetime of one session. It returns deep copies so callers can never mutate
// adapter-owned state.
package device
