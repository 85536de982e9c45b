// Package validate holds the stateless input checks shared by every adapter.
//
// Values that arrive from outside the process (broker payloads, hub push
// events, inbound command parameters) pass through these helpers before they
// touch device state:
//
//   - DeviceID: identifier sanitisation
//   - Int / Float: range checks with numeric coercion
//   - Enum: membership in a closed string set
//   - Bool / ParseBool: protocol-style boolean tokens ("ON", "true", "1")
//   - JSON / Lookup: JSON parsing with raw-string fallback and dotted-path access
//   - Topic / TopicFilter: MQTT topic legality
//   - Retry / WithTimeout: bounded retries and waits
//
// Every validation failure wraps ErrInvalid so callers can classify it with
// errors.Is without parsing messages.
package validate
