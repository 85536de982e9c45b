package manager

import (
	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/policy"
)

// Authorization is the policy verdict a caller obtained for a command.
// Confirmed records that the user accepted a REQUIRE_CONFIRMATION verdict.
type Authorization struct {
	Verdict   policy.Result
	Confirmed bool
}

// Allow builds an authorization from a verdict.
func Allow(verdict policy.Result, confirmed bool) Authorization {
	return Authorization{Verdict: verdict, Confirmed: confirmed}
}

// check admits only commands whose verdict permits them. Callers branch on
// DENY and unconfirmed REQUIRE_CONFIRMATION verdicts before queueing, so
// anything else reaching the manager has skipped the policy gate.
func (a Authorization) check(op string) error {
	if a.Verdict.Permits(a.Confirmed) {
		return nil
	}
	if a.Verdict.Decision == "" {
		return device.NewError(device.KindPermission, op, ErrPolicyBypass)
	}
	return device.Errorf(device.KindPermission, op, "%w: %s verdict not permitted", ErrPolicyBypass, a.Verdict.Decision)
}
