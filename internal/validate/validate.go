package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const maxIDLength = 128

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.:\-]+$`)

// DeviceID trims and checks an identifier. Allowed characters are letters,
// digits, underscore, dot, colon and hyphen.
func DeviceID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if len(id) > maxIDLength {
		return "", fmt.Errorf("%w: id exceeds %d characters", ErrInvalid, maxIDLength)
	}
	if !idPattern.MatchString(id) {
		return "", fmt.Errorf("%w: id %q contains illegal characters", ErrInvalid, id)
	}
	return id, nil
}

// Required rejects empty (after trimming) strings.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalid, field)
	}
	return nil
}

// Int coerces v to an int and checks min <= v <= max.
// Floats are rounded to the nearest integer; numeric strings are parsed.
func Int(field string, v any, lo, hi int) (int, error) {
	f, err := toFloat(field, v)
	if err != nil {
		return 0, err
	}
	n := int(math.Round(f))
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %s %d not in [%d, %d]", ErrOutOfRange, field, n, lo, hi)
	}
	return n, nil
}

// Float coerces v to a float64 and checks min <= v <= max.
func Float(field string, v any, lo, hi float64) (float64, error) {
	f, err := toFloat(field, v)
	if err != nil {
		return 0, err
	}
	if f < lo || f > hi {
		return 0, fmt.Errorf("%w: %s %g not in [%g, %g]", ErrOutOfRange, field, f, lo, hi)
	}
	return f, nil
}

// Number coerces v to a float64 without bounds checking.
func Number(field string, v any) (float64, error) {
	return toFloat(field, v)
}

func toFloat(field string, v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint8:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s %q is not a number", ErrInvalid, field, n)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s %q is not a number", ErrInvalid, field, n)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: %s has type %T, want number", ErrInvalid, field, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s is not finite", ErrInvalid, field)
	}
	return f, nil
}

// Enum checks that v is one of allowed. Matching is exact.
func Enum[T ~string](field, v string, allowed ...T) (T, error) {
	for _, a := range allowed {
		if string(a) == v {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %s %q not one of %v", ErrInvalid, field, v, allowed)
}

// ParseBool reports whether s is a truthy protocol token.
// "on", "true" and "1" are true (case-insensitive); everything else is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1":
		return true
	default:
		return false
	}
}

// Bool coerces a decoded JSON value into a boolean.
func Bool(field string, v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "on", "true", "1", "yes", "locked", "open":
			return true, nil
		case "off", "false", "0", "no", "unlocked", "closed":
			return false, nil
		}
		return false, fmt.Errorf("%w: %s %q is not a boolean", ErrInvalid, field, b)
	case float64:
		return b != 0, nil
	case int:
		return b != 0, nil
	default:
		return false, fmt.Errorf("%w: %s has type %T, want boolean", ErrInvalid, field, v)
	}
}
