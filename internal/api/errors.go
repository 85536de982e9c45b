package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/manager"
	"github.com/nerrad567/gray-logic-adapters/internal/policy"
)

// Error is the JSON error body.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest           = "bad_request"
	ErrCodeNotFound             = "not_found"
	ErrCodeUnauthorized         = "unauthorised"
	ErrCodeForbidden            = "forbidden"
	ErrCodePolicyDenied         = "policy_denied"
	ErrCodeConfirmationRequired = "confirmation_required"
	ErrCodeValidation           = "validation_error"
	ErrCodeUnavailable          = "unavailable"
	ErrCodeTimeout              = "timeout"
	ErrCodeBusy                 = "queue_full"
	ErrCodeInternal             = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // best effort; the client may be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps an error's kind onto an HTTP status. details, when
// set, is attached to the body.
func writeDomainError(w http.ResponseWriter, err error, details any) {
	status, code := statusFor(err)
	writeJSON(w, status, Error{Status: status, Code: code, Message: err.Error(), Details: details})
}

// writeRefusal answers a command the policy did not permit. The verdict is a
// normal result, not an error: DENY maps to 403 and an unconfirmed
// REQUIRE_CONFIRMATION to 409, both with the verdict as details.
func writeRefusal(w http.ResponseWriter, verdict policy.Result) {
	status, code := http.StatusForbidden, ErrCodePolicyDenied
	if verdict.Decision == policy.DecisionRequireConfirmation {
		status, code = http.StatusConflict, ErrCodeConfirmationRequired
	}
	msg := string(verdict.Decision)
	if verdict.Reason != "" {
		msg += ": " + verdict.Reason
	}
	writeJSON(w, status, Error{Status: status, Code: code, Message: msg, Details: verdict})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, manager.ErrQueueFull):
		return http.StatusTooManyRequests, ErrCodeBusy
	}
	switch device.KindOf(err) {
	case device.KindValidation:
		return http.StatusBadRequest, ErrCodeValidation
	case device.KindNotFound:
		return http.StatusNotFound, ErrCodeNotFound
	case device.KindPermission:
		return http.StatusForbidden, ErrCodeForbidden
	case device.KindTimeout:
		return http.StatusGatewayTimeout, ErrCodeTimeout
	case device.KindNetwork, device.KindDeviceOffline:
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
