// Package adapter defines the contract every protocol driver implements and
// the lifecycle Base they share.
//
// # Lifecycle
//
//	Initialize ──▶ connected+healthy ──▶ health ticker ──▶ check fails
//	                     ▲                                     │
//	                     │        delay·2^(k-1), k ≤ max        ▼
//	                     └──────────── reconnect ◀─────── TriggerReconnect
//	                                        │
//	                                        ▼ attempts exhausted
//	                               terminal error event (stop)
//
// Initialize either leaves the adapter connected and healthy or returns an
// error after tearing down whatever it had opened. Only one reconnect runs at
// a time; callers that trigger a reconnect while one is in flight are ignored.
//
// # Events
//
// Listeners are called synchronously, in registration order. A panicking
// listener is logged and skipped so its siblings still see the event.
package adapter
