package mqtt

import "errors"

// Broker session errors. The bridge adapters wrap these as NETWORK device
// errors, so callers above the adapter layer match on the device kind.
var (
	// ErrNotConnected means the session was closed or dropped. A dropped
	// session is never revived; the adapter dials a new Client.
	ErrNotConnected = errors.New("mqtt: broker session closed")

	// ErrConnectionFailed wraps any failure to open a session, including
	// an unreadable CA bundle.
	ErrConnectionFailed = errors.New("mqtt: broker dial failed")

	ErrPublishFailed     = errors.New("mqtt: command publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: state subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: state unsubscribe failed")

	// ErrInvalidQoS rejects anything above QoS 2.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrInvalidTopic wraps the validate package's topic error.
	ErrInvalidTopic = errors.New("mqtt: malformed topic")
)
