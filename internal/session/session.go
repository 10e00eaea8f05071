// Package session implements the proctoring session state machine and the
// violation engine that scores suspicious-activity signals.
//
// A session is a single-writer record: every mutation while the session is
// active flows through the Engine, which applies the deduction table, maps
// severities to escalation actions, and fires host callbacks. External
// readers only ever see deep-copied snapshots.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/Von-Etana/lune-sub000/internal/environment"
)

// Status is the lifecycle state of a proctoring session.
type Status string

const (
	// StatusActive is the initial state of every session.
	StatusActive Status = "active"
	// StatusFlagged marks a session under suspicion. Sticky: a flagged
	// session never reverts to active.
	StatusFlagged Status = "flagged"
	// StatusTerminated is terminal. Reached only through a critical violation.
	StatusTerminated Status = "terminated"
	// StatusCompleted is terminal. Reached only through EndSession on an
	// active or flagged session.
	StatusCompleted Status = "completed"
)

// Terminal reports whether the status accepts no further mutation.
func (s Status) Terminal() bool {
	return s == StatusTerminated || s == StatusCompleted
}

// ViolationType is the closed set of detectable suspicious activities.
type ViolationType string

const (
	ViolationTabSwitch         ViolationType = "tab_switch"
	ViolationWindowBlur        ViolationType = "window_blur"
	ViolationCopyPaste         ViolationType = "copy_paste"
	ViolationBrowserResize     ViolationType = "browser_resize"
	ViolationDevtoolsOpen      ViolationType = "devtools_open"
	ViolationExternalResource  ViolationType = "external_resource"
	ViolationFaceNotDetected   ViolationType = "face_not_detected"
	ViolationScreenshotAttempt ViolationType = "screenshot_attempt"
	ViolationMultipleDevices   ViolationType = "multiple_devices"
	ViolationPlagiarism        ViolationType = "plagiarism_detected"
	ViolationAIContent         ViolationType = "ai_content_detected"
)

// Severity grades a violation. The severity alone determines both the
// integrity deduction and the escalation action.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Action is the escalation outcome the engine applied for a violation.
type Action string

const (
	ActionWarning    Action = "warning"
	ActionFlagged    Action = "flagged"
	ActionTerminated Action = "terminated"
)

// Violation is one scored, policy-mapped detection event. Immutable once
// recorded, except for the Acknowledged flag.
type Violation struct {
	ID           string        `json:"id"`
	Type         ViolationType `json:"type"`
	Severity     Severity      `json:"severity"`
	Timestamp    time.Time     `json:"timestamp"`
	Description  string        `json:"description"`
	Evidence     string        `json:"evidence,omitempty"`
	Acknowledged bool          `json:"acknowledged"`
	Action       Action        `json:"action"`
}

// BehaviorMetrics aggregates candidate behavior over the session.
type BehaviorMetrics struct {
	// KeystrokeIntervalsMS are sampled intervals between keystrokes.
	KeystrokeIntervalsMS []int64 `json:"keystroke_intervals_ms,omitempty"`

	// AvgTypingSpeedWPM is derived from the keystroke samples, assuming
	// five characters per word.
	AvgTypingSpeedWPM float64 `json:"avg_typing_speed_wpm"`

	// PauseDurationsMS records typing pauses longer than two seconds.
	PauseDurationsMS []int64 `json:"pause_durations_ms,omitempty"`

	CopyPasteCount int   `json:"copy_paste_count"`
	TabSwitchCount int   `json:"tab_switch_count"`
	FocusLostMS    int64 `json:"focus_lost_ms"`
	MouseIdleMS    int64 `json:"mouse_idle_ms"`
}

// ProctoringSession is the single-writer session record.
type ProctoringSession struct {
	SessionID    string    `json:"session_id"`
	CandidateID  string    `json:"candidate_id"`
	AssessmentID string    `json:"assessment_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time,omitempty"`

	Status         Status `json:"status"`
	IntegrityScore int    `json:"integrity_score"`

	Violations  []Violation          `json:"violations"`
	Environment environment.Snapshot `json:"environment"`
	Metrics     BehaviorMetrics      `json:"metrics"`
}

// Snapshot is a read-only deep copy of a session.
type Snapshot = ProctoringSession

// newSession builds a fresh active session with a full integrity score.
func newSession(sessionID, candidateID, assessmentID string) *ProctoringSession {
	return &ProctoringSession{
		SessionID:      sessionID,
		CandidateID:    candidateID,
		AssessmentID:   assessmentID,
		StartTime:      time.Now(),
		Status:         StatusActive,
		IntegrityScore: 100,
		Violations:     make([]Violation, 0, 16),
	}
}

// clone deep-copies the session for external readers.
func (s *ProctoringSession) clone() *Snapshot {
	cp := *s
	cp.Violations = make([]Violation, len(s.Violations))
	copy(cp.Violations, s.Violations)
	cp.Metrics.KeystrokeIntervalsMS = append([]int64(nil), s.Metrics.KeystrokeIntervalsMS...)
	cp.Metrics.PauseDurationsMS = append([]int64(nil), s.Metrics.PauseDurationsMS...)
	return &cp
}

// newViolationID generates a random violation identifier.
func newViolationID() string {
	var b [8]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
