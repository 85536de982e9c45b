package manager

import "errors"

// Manager errors. Check with errors.Is; each is wrapped in a device.Error
// carrying the appropriate kind.
var (
	ErrAdapterNotFound = errors.New("manager: adapter not found")
	ErrAdapterExists   = errors.New("manager: adapter already registered")

	ErrQueueFull    = errors.New("manager: command queue full")
	ErrQueueCleared = errors.New("manager: command queue cleared")

	ErrPolicyBypass = errors.New("manager: command not permitted by a policy verdict")
)
