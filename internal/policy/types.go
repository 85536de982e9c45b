package policy

import (
	"slices"
	"strings"

	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/config"
)

// Decision is the outcome of an evaluation.
type Decision string

// Decisions.
const (
	DecisionAllow               Decision = "ALLOW"
	DecisionDeny                Decision = "DENY"
	DecisionRequireConfirmation Decision = "REQUIRE_CONFIRMATION"
)

// RiskLevel grades the real-world impact of a command.
type RiskLevel string

// Risk levels, lowest first.
const (
	RiskSafe   RiskLevel = "SAFE"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

func (r RiskLevel) rank() int {
	switch r {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Result is the verdict for one command.
type Result struct {
	Decision  Decision  `json:"decision"`
	RiskLevel RiskLevel `json:"risk_level"`
	Reason    string    `json:"reason,omitempty"`
}

// Permits reports whether the command may run, given whether the user has
// confirmed it.
func (r Result) Permits(confirmed bool) bool {
	return r.Decision == DecisionAllow || (r.Decision == DecisionRequireConfirmation && confirmed)
}

// Range bounds one numeric command parameter. Nil ends are open.
type Range struct {
	Parameter string
	Min       *float64
	Max       *float64
}

func (r Range) contains(v float64) bool {
	return (r.Min == nil || v >= *r.Min) && (r.Max == nil || v <= *r.Max)
}

// DeviceRule selects device commands. Empty selectors match anything; at
// least one should be set.
type DeviceRule struct {
	DeviceID   string
	DeviceType device.DeviceType
	Capability device.CapabilityType
	Action     device.Action

	Decision             Decision
	RiskLevel            RiskLevel
	RequiresConfirmation bool
	AllowedRange         *Range
	Reason               string
}

// specificity orders matching rules: id beats type beats capability beats
// action.
func (r DeviceRule) specificity() int {
	s := 0
	if r.DeviceID != "" {
		s += 8
	}
	if r.DeviceType != "" {
		s += 4
	}
	if r.Capability != "" {
		s += 2
	}
	if r.Action != "" {
		s++
	}
	return s
}

func (r DeviceRule) matches(cmd device.DeviceCommand, d *device.Device) bool {
	if r.specificity() == 0 {
		return false
	}
	if r.DeviceID != "" && r.DeviceID != cmd.DeviceID {
		return false
	}
	if r.DeviceType != "" && (d == nil || r.DeviceType != d.Type) {
		return false
	}
	if r.Capability != "" && r.Capability != cmd.Capability {
		return false
	}
	return r.Action == "" || r.Action == cmd.Action
}

// SceneRule selects scene commands by id or by name (case-insensitive).
type SceneRule struct {
	SceneID   string
	SceneName string

	Decision             Decision
	RequiresConfirmation bool
	Reason               string
}

func (r SceneRule) specificity() int {
	switch {
	case r.SceneID != "":
		return 2
	case r.SceneName != "":
		return 1
	}
	return 0
}

func (r SceneRule) matches(cmd device.SceneCommand, s *device.Scene) bool {
	switch {
	case r.SceneID != "":
		return r.SceneID == cmd.SceneID
	case r.SceneName != "":
		return s != nil && strings.EqualFold(r.SceneName, s.Name)
	}
	return false
}

// QuietHours is a local-time window in HH:MM. End before Start wraps
// midnight.
type QuietHours struct {
	Start string
	End   string
}

// GlobalSettings apply when no rule decides.
type GlobalSettings struct {
	AllowHighRiskActions           bool
	RequireConfirmationForHighRisk bool
	EnableQuietHours               bool
	QuietHours                     QuietHours
}

// Config is the engine's complete configuration.
type Config struct {
	DefaultRiskLevel RiskLevel
	DevicePolicies   []DeviceRule
	ScenePolicies    []SceneRule
	GlobalSettings   GlobalSettings
}

// DefaultConfig allows high-risk commands only with confirmation.
func DefaultConfig() Config {
	return Config{
		DefaultRiskLevel: RiskSafe,
		GlobalSettings: GlobalSettings{
			AllowHighRiskActions:           true,
			RequireConfirmationForHighRisk: true,
		},
	}
}

// Update is a shallow patch: every non-nil field replaces the current value
// wholesale.
type Update struct {
	DefaultRiskLevel *RiskLevel
	DevicePolicies   []DeviceRule
	ScenePolicies    []SceneRule
	GlobalSettings   *GlobalSettings
}

func (c Config) clone() Config {
	c.DevicePolicies = slices.Clone(c.DevicePolicies)
	c.ScenePolicies = slices.Clone(c.ScenePolicies)
	return c
}

// FromConfig converts the YAML policy section.
func FromConfig(pc config.PolicyConfig) Config {
	out := Config{
		DefaultRiskLevel: RiskLevel(pc.DefaultRiskLevel),
		GlobalSettings: GlobalSettings{
			AllowHighRiskActions:           pc.GlobalSettings.AllowHighRiskActions,
			RequireConfirmationForHighRisk: pc.GlobalSettings.RequireConfirmationForHighRisk,
			EnableQuietHours:               pc.GlobalSettings.EnableQuietHours,
			QuietHours: QuietHours{
				Start: pc.GlobalSettings.QuietHours.Start,
				End:   pc.GlobalSettings.QuietHours.End,
			},
		},
	}
	if out.DefaultRiskLevel == "" {
		out.DefaultRiskLevel = RiskSafe
	}
	for _, r := range pc.DevicePolicies {
		rule := DeviceRule{
			DeviceID:             r.DeviceID,
			DeviceType:           device.DeviceType(r.DeviceType),
			Capability:           device.CapabilityType(r.Capability),
			Action:               device.Action(r.Action),
			Decision:             Decision(r.Decision),
			RiskLevel:            RiskLevel(r.RiskLevel),
			RequiresConfirmation: r.RequiresConfirmation,
			Reason:               r.Reason,
		}
		if ar := r.AllowedRange; ar != nil {
			rule.AllowedRange = &Range{Parameter: ar.Parameter, Min: ar.Min, Max: ar.Max}
		}
		out.DevicePolicies = append(out.DevicePolicies, rule)
	}
	for _, r := range pc.ScenePolicies {
		out.ScenePolicies = append(out.ScenePolicies, SceneRule{
			SceneID:              r.SceneID,
			SceneName:            r.SceneName,
			Decision:             Decision(r.Decision),
			RequiresConfirmation: r.RequiresConfirmation,
			Reason:               r.Reason,
		})
	}
	return out
}
