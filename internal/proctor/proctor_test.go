package proctor

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Von-Etana/lune-sub000/internal/environment"
	"github.com/Von-Etana/lune-sub000/internal/monitor"
	"github.com/Von-Etana/lune-sub000/internal/session"
	"github.com/Von-Etana/lune-sub000/internal/store"
)

func newManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.SessionID == "" {
		opts.SessionID = "sess-1"
		opts.CandidateID = "cand"
		opts.AssessmentID = "exam"
	}
	m := New(opts)
	t.Cleanup(func() { m.End() })
	return m
}

func openTemp(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "proctord.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// =============================================================================
// Tests for the session lifecycle
// =============================================================================

func TestStartTwiceErrors(t *testing.T) {
	m := newManager(t, Options{})

	if err := m.Start(); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := m.Start(); err == nil {
		t.Error("second start accepted")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	m := newManager(t, Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	snap := m.End()
	if snap == nil {
		t.Fatal("first End returned nil")
	}
	if snap.Status != session.StatusCompleted {
		t.Errorf("status = %s, want completed", snap.Status)
	}
	if snap.EndTime.IsZero() {
		t.Error("EndTime not stamped")
	}

	if again := m.End(); again != nil {
		t.Error("second End returned a snapshot")
	}
}

func TestStartRecordsEnvironment(t *testing.T) {
	m := newManager(t, Options{
		Environment: environment.Inputs{MonitorCount: 2, CameraAvailable: true},
	})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	snap := m.Snapshot()
	if snap.Environment.MonitorCount != 2 || !snap.Environment.CameraAvailable {
		t.Errorf("environment not recorded: %+v", snap.Environment)
	}
}

func TestFullscreenHooks(t *testing.T) {
	var requested, released bool
	m := newManager(t, Options{
		RequireFullscreen: true,
		RequestFullscreen: func() error { requested = true; return nil },
		ReleaseFullscreen: func() error { released = true; return nil },
	})

	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !requested {
		t.Error("fullscreen not requested at start")
	}

	m.End()
	if !released {
		t.Error("fullscreen not released at end")
	}
}

func TestFullscreenRequestFailureIsNotFatal(t *testing.T) {
	m := newManager(t, Options{
		RequireFullscreen: true,
		RequestFullscreen: func() error { return errors.New("denied") },
	})

	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.Status() != session.StatusActive {
		t.Errorf("status = %s, want active after denied fullscreen", m.Status())
	}
}

// =============================================================================
// Tests for multi-device coordination
// =============================================================================

func TestStartDetectsConcurrentSession(t *testing.T) {
	st := openTemp(t)
	if err := st.TouchDevice("cand", "exam", "foreign-device", time.Now()); err != nil {
		t.Fatalf("seed registry: %v", err)
	}

	var terminated bool
	m := newManager(t, Options{
		Store:     st,
		Callbacks: session.Callbacks{OnTerminate: func(string) { terminated = true }},
	})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if m.Status() != session.StatusTerminated {
		t.Fatalf("status = %s, want terminated", m.Status())
	}
	if !terminated {
		t.Error("terminate callback not fired")
	}

	snap := m.Snapshot()
	if len(snap.Violations) != 1 {
		t.Fatalf("violations = %d, want 1", len(snap.Violations))
	}
	v := snap.Violations[0]
	if v.Type != session.ViolationMultipleDevices || v.Severity != session.SeverityCritical {
		t.Errorf("violation = %s/%s, want multiple_devices/critical", v.Type, v.Severity)
	}
	if !strings.Contains(v.Description, "1 other device") {
		t.Errorf("description = %q", v.Description)
	}
}

func TestStartAloneDoesNotConflict(t *testing.T) {
	m := newManager(t, Options{Store: openTemp(t)})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.Status() != session.StatusActive {
		t.Errorf("status = %s, want active", m.Status())
	}
}

func TestEndArchivesSession(t *testing.T) {
	st := openTemp(t)
	m := newManager(t, Options{Store: st})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.HandleEvent(monitor.Event{Kind: monitor.EventVisibilityHidden, At: time.Now()})
	m.End()

	got, err := st.Session("sess-1")
	if err != nil {
		t.Fatalf("load archive: %v", err)
	}
	if got.Status != session.StatusCompleted {
		t.Errorf("archived status = %s, want completed", got.Status)
	}
	if len(got.Violations) != 1 {
		t.Errorf("archived violations = %d, want 1", len(got.Violations))
	}
}

// =============================================================================
// Tests for event and content paths
// =============================================================================

func TestHandleEventRecordsViolation(t *testing.T) {
	m := newManager(t, Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	m.HandleEvent(monitor.Event{Kind: monitor.EventVisibilityHidden, At: time.Now()})

	snap := m.Snapshot()
	if snap.IntegrityScore != 95 {
		t.Errorf("score = %d, want 95 after one medium violation", snap.IntegrityScore)
	}
	if snap.Metrics.TabSwitchCount != 1 {
		t.Errorf("tab switch count = %d, want 1", snap.Metrics.TabSwitchCount)
	}
}

func TestCheckPlagiarismRecordsViolation(t *testing.T) {
	m := newManager(t, Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	res := m.CheckPlagiarism("According to Smith et al. the result is known [4].")
	if !res.IsPlagiarized {
		t.Fatal("expected a positive verdict")
	}

	snap := m.Snapshot()
	if len(snap.Violations) != 1 || snap.Violations[0].Type != session.ViolationPlagiarism {
		t.Fatalf("violations = %+v, want one plagiarism_detected", snap.Violations)
	}
	if snap.Status != session.StatusFlagged {
		t.Errorf("status = %s, want flagged after high severity", snap.Status)
	}
}

func TestCheckPlagiarismCleanTextRecordsNothing(t *testing.T) {
	m := newManager(t, Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if res := m.CheckPlagiarism("I solved it with a truth table."); res.IsPlagiarized {
		t.Fatal("clean text flagged")
	}
	if n := len(m.Snapshot().Violations); n != 0 {
		t.Errorf("violations = %d, want 0", n)
	}
}

func TestCheckAIGeneratedRecordsViolation(t *testing.T) {
	m := newManager(t, Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	res := m.CheckAIGenerated("As an AI language model, I cannot take exams.")
	if !res.IsAIGenerated {
		t.Fatal("expected a positive verdict")
	}

	snap := m.Snapshot()
	if len(snap.Violations) != 1 || snap.Violations[0].Type != session.ViolationAIContent {
		t.Fatalf("violations = %+v, want one ai_content_detected", snap.Violations)
	}
}

func TestAcknowledgeViolation(t *testing.T) {
	m := newManager(t, Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	m.HandleEvent(monitor.Event{Kind: monitor.EventCopy, At: time.Now()})
	id := m.Snapshot().Violations[0].ID

	if !m.AcknowledgeViolation(id) {
		t.Error("known violation not acknowledged")
	}
	if m.AcknowledgeViolation("missing") {
		t.Error("unknown violation acknowledged")
	}
}

// =============================================================================
// Tests for frame timing
// =============================================================================

func TestObserveFrameIrregularTiming(t *testing.T) {
	m := newManager(t, Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	at := time.Unix(0, 0)
	m.ObserveFrame(at)
	for i := 0; i < 30; i++ {
		if i%2 == 0 {
			at = at.Add(5 * time.Millisecond)
		} else {
			at = at.Add(60 * time.Millisecond)
		}
		m.ObserveFrame(at)
	}

	snap := m.Snapshot()
	if len(snap.Violations) != 1 {
		t.Fatalf("violations = %d, want 1", len(snap.Violations))
	}
	v := snap.Violations[0]
	if v.Type != session.ViolationScreenshotAttempt || v.Severity != session.SeverityHigh {
		t.Errorf("violation = %s/%s, want screenshot_attempt/high", v.Type, v.Severity)
	}
}

func TestObserveFrameSteadyTiming(t *testing.T) {
	m := newManager(t, Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	at := time.Unix(0, 0)
	for i := 0; i < 40; i++ {
		m.ObserveFrame(at)
		at = at.Add(16 * time.Millisecond)
	}

	if n := len(m.Snapshot().Violations); n != 0 {
		t.Errorf("violations = %d, want 0 for steady timing", n)
	}
}

// =============================================================================
// Tests for visual verification
// =============================================================================

type stillSource struct {
	img image.Image
}

func (s *stillSource) Frame() (image.Image, bool) {
	if s.img == nil {
		return nil, false
	}
	return s.img, true
}

func faceFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	bg := color.RGBA{R: 230, G: 230, B: 240, A: 255}
	skin := color.RGBA{R: 200, G: 120, B: 80, A: 255}
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.SetRGBA(x, y, bg)
		}
	}
	for y := 80; y < 120; y++ {
		for x := 60; x < 100; x++ {
			img.SetRGBA(x, y, skin)
		}
	}
	return img
}

func TestEnableVisualVerificationWithoutFace(t *testing.T) {
	m := newManager(t, Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if m.EnableVisualVerification(&stillSource{}) {
		t.Error("calibration succeeded without a frame")
	}
	if n := len(m.Snapshot().Violations); n != 0 {
		t.Errorf("violations = %d, want 0 after silent calibration failure", n)
	}
}

func TestEnableVisualVerificationWithFace(t *testing.T) {
	m := newManager(t, Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if !m.EnableVisualVerification(&stillSource{img: faceFrame()}) {
		t.Error("calibration failed on a frame with a face")
	}
}

func TestEnableVisualVerificationAfterEnd(t *testing.T) {
	m := newManager(t, Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.End()

	if m.EnableVisualVerification(&stillSource{img: faceFrame()}) {
		t.Error("checks scheduled on an ended session")
	}
}
