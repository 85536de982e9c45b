// Package home is the typed entry point the outer layers call into: device
// and scene listings, command execution, and adapter status.
//
// Commands are evaluated by the policy engine, queued through the adapter
// manager when allowed, and written to the audit trail whatever the outcome.
package home
