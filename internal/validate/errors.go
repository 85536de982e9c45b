package validate

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalid is the root of every validation failure in this package.
	ErrInvalid = errors.New("validate: invalid value")

	// ErrOutOfRange is returned when a numeric value falls outside its bounds.
	ErrOutOfRange = fmt.Errorf("%w: out of range", ErrInvalid)

	// ErrInvalidTopic is returned for illegal MQTT topics or filters.
	ErrInvalidTopic = fmt.Errorf("%w: mqtt topic", ErrInvalid)

	// ErrTimeout is returned by WithTimeout when the deadline passes first.
	ErrTimeout = errors.New("validate: operation timed out")
)
