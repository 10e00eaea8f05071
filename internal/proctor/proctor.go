// Package proctor wires the monitoring subsystems around one exam session.
//
// The Manager owns session startup and teardown: it runs the environment
// check, resolves multi-device conflicts, binds the input monitors, starts
// the visual checks if a camera source is supplied, and feeds the one-shot
// frame-timing heuristic. Individual sub-step failures at start are
// recorded as data and never abort the session; teardown happens once, as
// an ordered batch, at session end.
package proctor

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Von-Etana/lune-sub000/internal/content"
	"github.com/Von-Etana/lune-sub000/internal/device"
	"github.com/Von-Etana/lune-sub000/internal/environment"
	"github.com/Von-Etana/lune-sub000/internal/frametiming"
	"github.com/Von-Etana/lune-sub000/internal/logging"
	"github.com/Von-Etana/lune-sub000/internal/monitor"
	"github.com/Von-Etana/lune-sub000/internal/session"
	"github.com/Von-Etana/lune-sub000/internal/store"
	"github.com/Von-Etana/lune-sub000/internal/vision"
)

// Options configures a Manager. SessionID, CandidateID and AssessmentID are
// required; everything else is optional and degrades gracefully.
type Options struct {
	SessionID    string
	CandidateID  string
	AssessmentID string

	// Callbacks are the host observation hooks.
	Callbacks session.Callbacks

	// MaxTabSwitches overrides the tab-switch budget when positive.
	MaxTabSwitches int

	// RequireFullscreen asks the host for fullscreen at start.
	RequireFullscreen bool

	// RequestFullscreen and ReleaseFullscreen are host hooks. A failing
	// request is logged, never fatal.
	RequestFullscreen func() error
	ReleaseFullscreen func() error

	// Environment carries host-observed capabilities for the one-time
	// environment check.
	Environment environment.Inputs

	// Events supplies host input events. Nil disables the input monitors.
	Events monitor.EventSource

	// Store enables multi-device coordination and session archiving.
	Store *store.Store

	// DeviceConfig tunes registry liveness. Zero values use defaults.
	DeviceConfig device.Config

	// VisionConfig tunes camera check intervals. Zero values use defaults.
	VisionConfig vision.Config
}

// Manager owns one proctoring session end to end.
type Manager struct {
	mu sync.Mutex

	opts   Options
	engine *session.Engine
	mon    *monitor.Monitor
	timing *frametiming.Detector
	log    *slog.Logger

	// teardown closures accumulated during start, invoked in order at end.
	teardown []func()

	started bool
	ended   bool
}

// New creates a manager for one session. Start must be called before any
// monitoring happens.
func New(opts Options) *Manager {
	engine := session.NewEngine(opts.SessionID, opts.CandidateID, opts.AssessmentID, opts.Callbacks)
	if opts.MaxTabSwitches > 0 {
		engine.SetMaxTabSwitches(opts.MaxTabSwitches)
	}
	return &Manager{
		opts:   opts,
		engine: engine,
		mon:    monitor.New(engine),
		timing: frametiming.NewDetector(),
		log:    logging.Component("proctor"),
	}
}

// Start brings the session up: environment check, device conflict
// resolution, monitor binding, optional fullscreen request. Sub-step
// failures are recorded, never returned; Start only errors when called
// twice.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("session %s already started", m.opts.SessionID)
	}
	m.started = true

	m.engine.SetEnvironment(environment.Check(m.opts.Environment))

	if m.opts.Store != nil {
		m.resolveDevicesLocked()
	}

	if m.opts.Events != nil {
		m.teardown = append(m.teardown, m.mon.Bind(m.opts.Events))
	}

	if m.opts.RequireFullscreen && m.opts.RequestFullscreen != nil {
		if err := m.opts.RequestFullscreen(); err != nil {
			m.log.Warn("fullscreen request failed", "error", err)
		}
	}

	m.log.Info("session started",
		"session", m.opts.SessionID,
		"candidate", m.opts.CandidateID,
		"assessment", m.opts.AssessmentID)
	return nil
}

// resolveDevicesLocked runs prune-check-register against the shared
// registry and starts the heartbeat tick.
func (m *Manager) resolveDevicesLocked() {
	coord, err := device.NewCoordinator(m.opts.Store, m.opts.CandidateID, m.opts.AssessmentID, m.opts.DeviceConfig)
	if err != nil {
		m.log.Error("device coordination unavailable", "error", err)
		return
	}

	conflicts, err := coord.Resolve(time.Now())
	if err != nil {
		m.log.Error("device conflict resolution failed", "error", err)
	}
	if conflicts > 0 {
		m.engine.Record(session.ViolationMultipleDevices, session.SeverityCritical,
			fmt.Sprintf("assessment already open on %d other device(s)", conflicts))
	}

	m.teardown = append(m.teardown, coord.Start())
}

// EnableVisualVerification supplies the live camera source and starts the
// periodic face and gaze checks. It returns false, silently, when
// calibration finds no usable face; no checks are scheduled in that case.
func (m *Manager) EnableVisualVerification(src vision.Source) bool {
	checker := vision.NewChecker(src, func(sev session.Severity, msg string) {
		m.engine.Record(session.ViolationFaceNotDetected, sev, msg)
	}, m.opts.VisionConfig)

	if !checker.Calibrate() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return false
	}
	m.teardown = append(m.teardown, checker.Start())
	return true
}

// ObserveFrame feeds one rendered-frame timestamp to the one-shot
// frame-timing heuristic.
func (m *Manager) ObserveFrame(at time.Time) {
	result, done := m.timing.Observe(at)
	if done && result.Suspicious {
		m.engine.Record(session.ViolationScreenshotAttempt, session.SeverityHigh,
			fmt.Sprintf("frame timing irregularity suggests capture interference (variance %.1f)", result.Variance))
	}
}

// HandleEvent processes one host input event directly, for hosts that call
// in rather than supply an EventSource.
func (m *Manager) HandleEvent(ev monitor.Event) monitor.Response {
	return m.mon.Handle(ev)
}

// RecordKeystroke samples a keystroke for the behavior metrics.
func (m *Manager) RecordKeystroke(at time.Time) {
	m.engine.RecordKeystroke(at)
}

// RecordMouseIdle accumulates observed mouse idle time.
func (m *Manager) RecordMouseIdle(d time.Duration) {
	m.engine.AddMouseIdle(d)
}

// CheckPlagiarism scans submitted text and records a violation when the
// verdict is positive. Callable at any time.
func (m *Manager) CheckPlagiarism(text string) content.PlagiarismResult {
	res := content.CheckPlagiarism(text)
	if res.IsPlagiarized {
		m.engine.Record(session.ViolationPlagiarism, session.SeverityHigh,
			fmt.Sprintf("plagiarism indicators matched: %s", strings.Join(res.Indicators, ", ")))
	}
	return res
}

// CheckAIGenerated scans submitted text for AI-generation cues and records
// a violation when the verdict is positive. Callable at any time.
func (m *Manager) CheckAIGenerated(text string) content.AIResult {
	res := content.CheckAIGenerated(text)
	if res.IsAIGenerated {
		m.engine.Record(session.ViolationAIContent, session.SeverityHigh,
			fmt.Sprintf("AI-generated content suspected (probability %d%%)", res.Probability))
	}
	return res
}

// AcknowledgeViolation marks a violation acknowledged by ID.
func (m *Manager) AcknowledgeViolation(id string) bool {
	return m.engine.Acknowledge(id)
}

// Status returns the current session status without mutating anything.
func (m *Manager) Status() session.Status {
	return m.engine.Status()
}

// Snapshot returns a read-only copy of the session record.
func (m *Manager) Snapshot() *session.Snapshot {
	return m.engine.Snapshot()
}

// End tears down all monitors and timers as an ordered batch, releases
// fullscreen, completes the session unless it terminated, and returns the
// final snapshot. Idempotent: the second call returns nil and mutates
// nothing.
func (m *Manager) End() *session.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ended {
		return nil
	}
	m.ended = true

	for _, fn := range m.teardown {
		fn()
	}
	m.teardown = nil

	if m.opts.ReleaseFullscreen != nil {
		if err := m.opts.ReleaseFullscreen(); err != nil {
			m.log.Warn("fullscreen release failed", "error", err)
		}
	}

	snap := m.engine.Complete()

	if m.opts.Store != nil {
		if err := m.opts.Store.ArchiveSession(snap); err != nil {
			m.log.Error("session archive failed", "error", err)
		}
	}

	m.log.Info("session ended",
		"session", snap.SessionID,
		"status", string(snap.Status),
		"score", snap.IntegrityScore,
		"violations", len(snap.Violations))
	return snap
}
