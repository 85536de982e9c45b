package home

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/nerrad567/gray-logic-adapters/internal/adapter"
	"github.com/nerrad567/gray-logic-adapters/internal/audit"
	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-adapters/internal/manager"
	"github.com/nerrad567/gray-logic-adapters/internal/policy"
)

// ErrAuditUnavailable is returned by AuditLogs when no repository is set.
var ErrAuditUnavailable = errors.New("home: audit trail not configured")

// Options wires a Service. Audit and Metrics may be nil.
type Options struct {
	Manager *manager.Manager
	Policy  *policy.Engine
	Audit   audit.Repository
	Metrics *metrics.Metrics
	Logger  adapter.Logger
}

// Service serves the inbound calls.
type Service struct {
	manager *manager.Manager
	policy  *policy.Engine
	audit   audit.Repository
	metrics *metrics.Metrics
	logger  adapter.Logger
}

// New creates a Service.
func New(opts Options) *Service {
	s := &Service{
		manager: opts.Manager,
		policy:  opts.Policy,
		audit:   opts.Audit,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	if s.logger == nil {
		s.logger = adapter.NopLogger()
	}
	return s
}

// CommandRequest asks for one device command.
type CommandRequest struct {
	Command device.DeviceCommand
	// AdapterID pins the owning adapter. Empty searches every adapter.
	AdapterID string
	Priority  int
	// Confirmed accepts a REQUIRE_CONFIRMATION verdict.
	Confirmed bool
	UserID    string
	Source    string
}

// SceneRequest asks for one scene run.
type SceneRequest struct {
	Command   device.SceneCommand
	AdapterID string
	Priority  int
	Confirmed bool
	UserID    string
	Source    string
}

// Result reports the verdict a command received and whether it ran.
type Result struct {
	Verdict  policy.Result `json:"verdict"`
	Executed bool          `json:"executed"`
}

// ListDevices aggregates devices from every adapter, keeping those that
// match f.
func (s *Service) ListDevices(ctx context.Context, f device.Filter) []*device.Device {
	all := s.manager.DiscoverAllDevices(ctx)
	return slices.DeleteFunc(all, func(d *device.Device) bool { return !f.Matches(d) })
}

// GetDevice returns the current state of one device.
func (s *Service) GetDevice(ctx context.Context, id string) (*device.Device, error) {
	d, _, err := s.manager.FindDevice(ctx, id)
	return d, err
}

// ListAreas aggregates areas. When adapters report the same area ID the
// higher priority adapter's entry wins.
func (s *Service) ListAreas(ctx context.Context) []device.Area {
	seen := make(map[string]bool)
	var out []device.Area
	for _, a := range s.manager.DiscoverAllAreas(ctx) {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b device.Area) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// ListScenes aggregates scenes from every adapter.
func (s *Service) ListScenes(ctx context.Context) []device.Scene {
	return s.manager.DiscoverAllScenes(ctx)
}

// GetAdapterStatus lists every adapter with its connection status.
func (s *Service) GetAdapterStatus() []manager.Info {
	return s.manager.Adapters()
}

// Subscribe receives events from every adapter.
func (s *Service) Subscribe(l adapter.Listener) (unsubscribe func()) {
	return s.manager.Subscribe(l)
}

// ExecuteDeviceCommand evaluates req against policy and, when permitted,
// queues it on the owning adapter. A DENY or unconfirmed
// REQUIRE_CONFIRMATION verdict is not an error: the Result carries the
// verdict with Executed false and the command never reaches the adapter.
func (s *Service) ExecuteDeviceCommand(ctx context.Context, req CommandRequest) (Result, error) {
	cmd := req.Command
	d, adapterID, err := s.locateDevice(ctx, cmd.DeviceID, req.AdapterID)
	if err != nil {
		return Result{}, err
	}

	verdict := s.policy.EvaluateDeviceCommand(cmd, d)
	s.metrics.ObserveDecision(string(verdict.Decision), string(verdict.RiskLevel))

	log := &audit.Log{
		Action:     audit.ActionCommand,
		EntityType: audit.EntityDevice,
		EntityID:   cmd.DeviceID,
		AdapterID:  adapterID,
		UserID:     req.UserID,
		Source:     req.Source,
		Details: map[string]any{
			"capability": string(cmd.Capability),
			"action":     string(cmd.Action),
			"confirmed":  req.Confirmed,
			"priority":   req.Priority,
		},
	}
	if !verdict.Permits(req.Confirmed) {
		s.record(ctx, log, verdict, false, nil)
		return Result{Verdict: verdict}, nil
	}

	err = s.manager.ExecuteCommand(ctx, adapterID, cmd, manager.Allow(verdict, req.Confirmed), req.Priority)
	s.record(ctx, log, verdict, err == nil, err)
	return Result{Verdict: verdict, Executed: err == nil}, err
}

// ExecuteSceneCommand evaluates and queues a scene run. Refused verdicts are
// returned the same way as for device commands.
func (s *Service) ExecuteSceneCommand(ctx context.Context, req SceneRequest) (Result, error) {
	cmd := req.Command
	scene, err := s.locateScene(ctx, cmd.SceneID, req.AdapterID)
	if err != nil {
		return Result{}, err
	}

	verdict := s.policy.EvaluateSceneCommand(cmd, &scene)
	s.metrics.ObserveDecision(string(verdict.Decision), string(verdict.RiskLevel))

	log := &audit.Log{
		Action:     audit.ActionScene,
		EntityType: audit.EntityScene,
		EntityID:   cmd.SceneID,
		AdapterID:  scene.AdapterID,
		UserID:     req.UserID,
		Source:     req.Source,
		Details:    map[string]any{"confirmed": req.Confirmed, "priority": req.Priority},
	}
	if !verdict.Permits(req.Confirmed) {
		s.record(ctx, log, verdict, false, nil)
		return Result{Verdict: verdict}, nil
	}

	err = s.manager.ExecuteScene(ctx, scene.AdapterID, cmd, manager.Allow(verdict, req.Confirmed), req.Priority)
	s.record(ctx, log, verdict, err == nil, err)
	return Result{Verdict: verdict, Executed: err == nil}, err
}

// AuditLogs pages through the audit trail.
func (s *Service) AuditLogs(ctx context.Context, f audit.Filter) (*audit.ListResult, error) {
	if s.audit == nil {
		return nil, ErrAuditUnavailable
	}
	return s.audit.List(ctx, f)
}

func (s *Service) locateDevice(ctx context.Context, id, adapterID string) (*device.Device, string, error) {
	if adapterID == "" {
		return s.manager.FindDevice(ctx, id)
	}
	a, err := s.manager.Adapter(adapterID)
	if err != nil {
		return nil, "", err
	}
	d, err := a.GetDeviceState(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return d, adapterID, nil
}

func (s *Service) locateScene(ctx context.Context, id, adapterID string) (device.Scene, error) {
	if adapterID == "" {
		return s.manager.FindScene(ctx, id)
	}
	a, err := s.manager.Adapter(adapterID)
	if err != nil {
		return device.Scene{}, err
	}
	scenes, err := a.DiscoverScenes(ctx)
	if err != nil {
		return device.Scene{}, err
	}
	for _, sc := range scenes {
		if sc.ID == id {
			sc.AdapterID = adapterID
			return sc, nil
		}
	}
	return device.Scene{}, device.Errorf(device.KindNotFound, "home.ExecuteSceneCommand", "%w: %s", device.ErrSceneNotFound, id)
}

// record writes the audit entry. A failing audit write is logged; it never
// fails the command.
func (s *Service) record(ctx context.Context, log *audit.Log, verdict policy.Result, executed bool, err error) {
	log.Decision = string(verdict.Decision)
	log.RiskLevel = string(verdict.RiskLevel)
	log.Reason = verdict.Reason
	switch {
	case executed:
		log.Outcome = audit.OutcomeExecuted
	case err != nil:
		log.Outcome = audit.OutcomeFailed
		log.Error = err.Error()
	case verdict.Decision == policy.DecisionRequireConfirmation:
		log.Outcome = audit.OutcomeConfirmationPending
	default:
		log.Outcome = audit.OutcomeDenied
	}
	if log.Source == "" {
		log.Source = "service"
	}

	if s.audit == nil {
		return
	}
	if werr := s.audit.Create(context.WithoutCancel(ctx), log); werr != nil {
		s.logger.Error("audit write failed", "entity_id", log.EntityID, "error", werr)
	}
}
