package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Von-Etana/lune-sub000/internal/environment"
	"github.com/Von-Etana/lune-sub000/internal/logging"
)

// DefaultMaxTabSwitches is the tab-switch budget before a synthetic
// critical violation is emitted on top of the regular one.
const DefaultMaxTabSwitches = 3

// Integrity deductions per severity. The score floors at zero.
var deductions = map[Severity]int{
	SeverityLow:      2,
	SeverityMedium:   5,
	SeverityHigh:     10,
	SeverityCritical: 25,
}

// actionFor maps a severity to its escalation action.
func actionFor(sev Severity) Action {
	switch sev {
	case SeverityHigh:
		return ActionFlagged
	case SeverityCritical:
		return ActionTerminated
	default:
		return ActionWarning
	}
}

// Callbacks are the host's observation hooks. All fields are optional.
// A panicking callback is isolated: it never stops the engine or any
// scheduled check.
type Callbacks struct {
	OnViolation       func(Violation)
	OnWarning         func(message string)
	OnIntegrityUpdate func(score int)
	OnTerminate       func(reason string)
}

// Engine is the single choke point through which every suspicious-activity
// signal mutates the session. It owns the deduction table, the escalation
// policy, the tab-switch budget, and the callback fan-out.
type Engine struct {
	mu sync.Mutex

	session   *ProctoringSession
	callbacks Callbacks
	log       *slog.Logger

	maxTabSwitches int
	tabSwitches    int
	tabLimitFired  bool
	terminateFired bool

	lastKeystroke time.Time
}

// NewEngine creates an engine owning a fresh active session.
func NewEngine(sessionID, candidateID, assessmentID string, cb Callbacks) *Engine {
	return &Engine{
		session:        newSession(sessionID, candidateID, assessmentID),
		callbacks:      cb,
		log:            logging.Component("session"),
		maxTabSwitches: DefaultMaxTabSwitches,
	}
}

// SetMaxTabSwitches overrides the tab-switch budget. Values below one are
// ignored.
func (e *Engine) SetMaxTabSwitches(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n >= 1 {
		e.maxTabSwitches = n
	}
}

// Record scores one violation and applies the escalation policy. It returns
// the recorded violation, or nil when the session is already terminal and
// accepts no further mutation.
func (e *Engine) Record(vt ViolationType, sev Severity, description string) *Violation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recordLocked(vt, sev, description)
}

func (e *Engine) recordLocked(vt ViolationType, sev Severity, description string) *Violation {
	if e.session.Status.Terminal() {
		return nil
	}

	v := Violation{
		ID:          newViolationID(),
		Type:        vt,
		Severity:    sev,
		Timestamp:   time.Now(),
		Description: description,
		Action:      actionFor(sev),
	}

	e.session.IntegrityScore -= deductions[sev]
	if e.session.IntegrityScore < 0 {
		e.session.IntegrityScore = 0
	}
	e.session.Violations = append(e.session.Violations, v)

	switch vt {
	case ViolationTabSwitch:
		// The synthetic limit violation is critical and is not itself a switch.
		if sev != SeverityCritical {
			e.tabSwitches++
			e.session.Metrics.TabSwitchCount++
		}
	case ViolationCopyPaste:
		e.session.Metrics.CopyPasteCount++
	}

	switch v.Action {
	case ActionFlagged:
		if e.session.Status == StatusActive {
			e.session.Status = StatusFlagged
		}
	case ActionTerminated:
		e.session.Status = StatusTerminated
		e.session.EndTime = time.Now()
	}

	e.log.Warn("violation recorded",
		"type", string(vt),
		"severity", string(sev),
		"action", string(v.Action),
		"score", e.session.IntegrityScore)

	score := e.session.IntegrityScore
	if e.callbacks.OnViolation != nil {
		e.safe("violation", func() { e.callbacks.OnViolation(v) })
	}
	if e.callbacks.OnIntegrityUpdate != nil {
		e.safe("integrity_update", func() { e.callbacks.OnIntegrityUpdate(score) })
	}

	switch v.Action {
	case ActionWarning:
		if e.callbacks.OnWarning != nil {
			e.safe("warning", func() { e.callbacks.OnWarning(description) })
		}
	case ActionTerminated:
		if !e.terminateFired {
			e.terminateFired = true
			if e.callbacks.OnTerminate != nil {
				e.safe("terminate", func() { e.callbacks.OnTerminate(description) })
			}
		}
	}

	// The tab-switch budget compounds: reaching the limit emits one extra
	// synthetic critical violation on top of the regular one.
	if vt == ViolationTabSwitch && e.tabSwitches >= e.maxTabSwitches && !e.tabLimitFired {
		e.tabLimitFired = true
		e.recordLocked(ViolationTabSwitch, SeverityCritical,
			fmt.Sprintf("maximum tab switches exceeded (%d)", e.tabSwitches))
	}

	return &v
}

// safe invokes a host callback, isolating the engine from panics.
func (e *Engine) safe(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("host callback panicked", "callback", name, "panic", r)
		}
	}()
	fn()
}

// Acknowledge marks a violation as acknowledged by the host. Returns false
// if no violation with the given ID exists.
func (e *Engine) Acknowledge(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.session.Violations {
		if e.session.Violations[i].ID == id {
			e.session.Violations[i].Acknowledged = true
			return true
		}
	}
	return false
}

// Complete marks the session completed unless it already terminated.
// Returns the final snapshot.
func (e *Engine) Complete() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status != StatusTerminated {
		e.session.Status = StatusCompleted
	}
	if e.session.EndTime.IsZero() {
		e.session.EndTime = time.Now()
	}
	return e.session.clone()
}

// Status returns the current session status without mutating anything.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Status
}

// IntegrityScore returns the current integrity score.
func (e *Engine) IntegrityScore() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.IntegrityScore
}

// Snapshot returns a deep copy of the session record.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.clone()
}

// SetEnvironment stores the one-time environment check snapshot.
func (e *Engine) SetEnvironment(env environment.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Environment = env
}

// AddFocusLost accumulates time the exam surface was out of focus.
func (e *Engine) AddFocusLost(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Status.Terminal() {
		return
	}
	e.session.Metrics.FocusLostMS += d.Milliseconds()
}

// AddMouseIdle accumulates mouse idle time.
func (e *Engine) AddMouseIdle(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Status.Terminal() {
		return
	}
	e.session.Metrics.MouseIdleMS += d.Milliseconds()
}

// RecordKeystroke samples one keystroke for the behavior aggregates.
// Intervals above two seconds count as pauses rather than typing.
func (e *Engine) RecordKeystroke(at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Status.Terminal() {
		return
	}

	if !e.lastKeystroke.IsZero() {
		interval := at.Sub(e.lastKeystroke).Milliseconds()
		if interval > 2000 {
			e.session.Metrics.PauseDurationsMS = append(e.session.Metrics.PauseDurationsMS, interval)
		} else if interval > 0 {
			m := &e.session.Metrics
			m.KeystrokeIntervalsMS = append(m.KeystrokeIntervalsMS, interval)

			var sum int64
			for _, iv := range m.KeystrokeIntervalsMS {
				sum += iv
			}
			avg := float64(sum) / float64(len(m.KeystrokeIntervalsMS))
			// Five characters per word.
			m.AvgTypingSpeedWPM = 60000.0 / avg / 5.0
		}
	}
	e.lastKeystroke = at
}
