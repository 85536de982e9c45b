// Package manager owns the running adapters and the command queue in front
// of them.
//
// Adapters register with a priority that orders aggregated discovery
// results. Lifecycle and discovery calls fan out to every adapter
// concurrently; one adapter failing never fails the others.
//
// Every device and scene command passes through a single bounded queue.
// Items are dispatched one at a time, highest command priority first with
// ties broken by arrival, and consecutive dispatches are spaced by at least
// the configured throttle. A command is only accepted alongside a policy
// verdict that allows it.
package manager
