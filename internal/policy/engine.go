package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-adapters/internal/device"
)

// Engine evaluates commands against a replaceable configuration. It is
// safe for concurrent use.
type Engine struct {
	mu  sync.RWMutex
	cfg Config

	now func() time.Time
	loc *time.Location
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for quiet-hours checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the zone quiet hours are read in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// New creates an Engine.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg.clone(), now: time.Now, loc: time.UTC}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Config returns a copy of the current configuration.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.clone()
}

// SetConfig replaces the configuration wholesale.
func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg.clone()
	e.mu.Unlock()
}

// UpdateConfig merges u into the configuration. Nil fields are kept.
func (e *Engine) UpdateConfig(u Update) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if u.DefaultRiskLevel != nil {
		e.cfg.DefaultRiskLevel = *u.DefaultRiskLevel
	}
	if u.DevicePolicies != nil {
		e.cfg.DevicePolicies = append([]DeviceRule(nil), u.DevicePolicies...)
	}
	if u.ScenePolicies != nil {
		e.cfg.ScenePolicies = append([]SceneRule(nil), u.ScenePolicies...)
	}
	if u.GlobalSettings != nil {
		e.cfg.GlobalSettings = *u.GlobalSettings
	}
}

// EvaluateDeviceCommand decides whether cmd may run against d. d may be
// nil when the device is unknown; type-based rules then never match.
func (e *Engine) EvaluateDeviceCommand(cmd device.DeviceCommand, d *device.Device) Result {
	e.mu.RLock()
	cfg := e.cfg
	e.mu.RUnlock()

	risk := ClassifyRisk(cmd, d, cfg.DefaultRiskLevel)

	rule, ok := mostSpecificDeviceRule(cfg.DevicePolicies, cmd, d)
	if !ok {
		return e.fallback(cfg.GlobalSettings, risk, "")
	}
	if rule.RiskLevel != "" {
		risk = rule.RiskLevel
	}
	if r := rule.AllowedRange; r != nil {
		if v, present := cmd.Params.Number(r.Parameter); present && !r.contains(v) {
			return Result{
				Decision:  DecisionDeny,
				RiskLevel: risk,
				Reason:    fmt.Sprintf("%s %g outside allowed range%s", r.Parameter, v, describeRange(*r)),
			}
		}
	}
	switch {
	case rule.Decision != "":
		return Result{Decision: rule.Decision, RiskLevel: risk, Reason: rule.Reason}
	case rule.RequiresConfirmation:
		return Result{Decision: DecisionRequireConfirmation, RiskLevel: risk, Reason: reasonOr(rule.Reason, "rule requires confirmation")}
	}
	return e.fallback(cfg.GlobalSettings, risk, rule.Reason)
}

// EvaluateSceneCommand decides whether a scene may run. Scenes are SAFE.
// s may be nil; name rules then never match.
func (e *Engine) EvaluateSceneCommand(cmd device.SceneCommand, s *device.Scene) Result {
	e.mu.RLock()
	cfg := e.cfg
	e.mu.RUnlock()

	var (
		best  SceneRule
		found bool
	)
	for _, r := range cfg.ScenePolicies {
		if r.matches(cmd, s) && (!found || r.specificity() > best.specificity()) {
			best, found = r, true
		}
	}
	if found {
		switch {
		case best.Decision != "":
			return Result{Decision: best.Decision, RiskLevel: RiskSafe, Reason: best.Reason}
		case best.RequiresConfirmation:
			return Result{Decision: DecisionRequireConfirmation, RiskLevel: RiskSafe, Reason: reasonOr(best.Reason, "rule requires confirmation")}
		}
	}
	return Result{Decision: DecisionAllow, RiskLevel: RiskSafe}
}

// mostSpecificDeviceRule returns the matching rule with the highest
// specificity. Earlier rules win ties.
func mostSpecificDeviceRule(rules []DeviceRule, cmd device.DeviceCommand, d *device.Device) (DeviceRule, bool) {
	var (
		best  DeviceRule
		found bool
	)
	for _, r := range rules {
		if r.matches(cmd, d) && (!found || r.specificity() > best.specificity()) {
			best, found = r, true
		}
	}
	return best, found
}

// fallback applies the global settings and quiet hours.
func (e *Engine) fallback(g GlobalSettings, risk RiskLevel, reason string) Result {
	res := Result{Decision: DecisionAllow, RiskLevel: risk, Reason: reason}
	if risk == RiskHigh {
		switch {
		case !g.AllowHighRiskActions:
			return Result{Decision: DecisionDeny, RiskLevel: risk, Reason: "high-risk actions are disabled"}
		case g.RequireConfirmationForHighRisk:
			return Result{Decision: DecisionRequireConfirmation, RiskLevel: risk, Reason: "high-risk action requires confirmation"}
		}
	}
	if g.EnableQuietHours && risk.rank() >= RiskMedium.rank() && g.QuietHours.contains(e.now().In(e.loc)) {
		return Result{Decision: DecisionRequireConfirmation, RiskLevel: risk, Reason: "quiet hours in effect"}
	}
	return res
}

func describeRange(r Range) string {
	switch {
	case r.Min != nil && r.Max != nil:
		return fmt.Sprintf(" [%g, %g]", *r.Min, *r.Max)
	case r.Min != nil:
		return fmt.Sprintf(" (min %g)", *r.Min)
	case r.Max != nil:
		return fmt.Sprintf(" (max %g)", *r.Max)
	}
	return ""
}

func reasonOr(reason, fallback string) string {
	if reason != "" {
		return reason
	}
	return fallback
}
