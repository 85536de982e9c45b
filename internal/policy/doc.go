// Package policy decides whether a device or scene command may run.
//
// The engine is a pure function of its configuration and the command: it
// classifies the command's risk (SAFE, MEDIUM, HIGH), looks for the most
// specific configured rule and otherwise falls back to the global settings.
// Denials are decisions, not errors; callers branch on Result.Decision.
//
// Rule precedence for device commands is device id, then device type, then
// capability, then action. For scenes it is scene id, then scene name.
//
// Scene commands are always classified SAFE because scene contents are
// opaque to the adapters. A scene that unlocks a door is therefore only
// guarded by an explicit scene rule.
package policy
