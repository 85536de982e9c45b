package adapter

import "errors"

// ErrNotConnected is returned by operations that need a live session.
var ErrNotConnected = errors.New("adapter: not connected")
