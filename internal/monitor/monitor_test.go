package monitor

import (
	"testing"
	"time"

	"github.com/Von-Etana/lune-sub000/internal/session"
)

// fakeRecorder captures engine calls for assertions.
type fakeRecorder struct {
	violations []recorded
	focusLost  time.Duration
}

type recorded struct {
	vt   session.ViolationType
	sev  session.Severity
	desc string
}

func (f *fakeRecorder) Record(vt session.ViolationType, sev session.Severity, desc string) *session.Violation {
	f.violations = append(f.violations, recorded{vt, sev, desc})
	return &session.Violation{Type: vt, Severity: sev, Description: desc}
}

func (f *fakeRecorder) AddFocusLost(d time.Duration) {
	f.focusLost += d
}

// =============================================================================
// Tests for the fixed event bindings
// =============================================================================

func TestEventBindings(t *testing.T) {
	cases := []struct {
		name    string
		event   Event
		wantVT  session.ViolationType
		wantSev session.Severity
	}{
		{"tab switch", Event{Kind: EventVisibilityHidden}, session.ViolationTabSwitch, session.SeverityMedium},
		{"window blur", Event{Kind: EventWindowBlur}, session.ViolationWindowBlur, session.SeverityMedium},
		{"copy", Event{Kind: EventCopy}, session.ViolationCopyPaste, session.SeverityLow},
		{"paste", Event{Kind: EventPaste}, session.ViolationCopyPaste, session.SeverityMedium},
		{"context menu", Event{Kind: EventContextMenu}, session.ViolationExternalResource, session.SeverityLow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			New(rec).Handle(tc.event)

			if len(rec.violations) != 1 {
				t.Fatalf("violations = %d, want 1", len(rec.violations))
			}
			got := rec.violations[0]
			if got.vt != tc.wantVT || got.sev != tc.wantSev {
				t.Errorf("got (%s, %s), want (%s, %s)", got.vt, got.sev, tc.wantVT, tc.wantSev)
			}
		})
	}
}

// =============================================================================
// Tests for fullscreen tracking
// =============================================================================

func TestFullscreenExitAfterFullscreen(t *testing.T) {
	rec := &fakeRecorder{}
	m := New(rec)

	m.Handle(Event{Kind: EventFullscreenChange, Fullscreen: true})
	m.Handle(Event{Kind: EventFullscreenChange, Fullscreen: false})

	if len(rec.violations) != 1 {
		t.Fatalf("violations = %d, want 1", len(rec.violations))
	}
	got := rec.violations[0]
	if got.vt != session.ViolationBrowserResize || got.sev != session.SeverityHigh {
		t.Errorf("got (%s, %s), want (browser_resize, high)", got.vt, got.sev)
	}
}

func TestFullscreenExitWithoutPriorFullscreen(t *testing.T) {
	rec := &fakeRecorder{}
	New(rec).Handle(Event{Kind: EventFullscreenChange, Fullscreen: false})

	if len(rec.violations) != 0 {
		t.Errorf("violations = %d, want 0", len(rec.violations))
	}
}

func TestEscapeInFullscreen(t *testing.T) {
	rec := &fakeRecorder{}
	m := New(rec)

	m.Handle(Event{Kind: EventFullscreenChange, Fullscreen: true})
	m.Handle(Event{Kind: EventKeyDown, Key: "Escape"})

	if len(rec.violations) != 1 {
		t.Fatalf("violations = %d, want 1", len(rec.violations))
	}
	got := rec.violations[0]
	if got.vt != session.ViolationBrowserResize || got.sev != session.SeverityMedium {
		t.Errorf("got (%s, %s), want (browser_resize, medium)", got.vt, got.sev)
	}
}

func TestEscapeOutsideFullscreenIgnored(t *testing.T) {
	rec := &fakeRecorder{}
	New(rec).Handle(Event{Kind: EventKeyDown, Key: "Escape"})

	if len(rec.violations) != 0 {
		t.Errorf("violations = %d, want 0", len(rec.violations))
	}
}

// =============================================================================
// Tests for devtools detection
// =============================================================================

func TestDevtoolsGapDetected(t *testing.T) {
	rec := &fakeRecorder{}
	New(rec).Handle(Event{
		Kind:       EventWindowResize,
		OuterWidth: 1920, InnerWidth: 1700,
		OuterHeight: 1080, InnerHeight: 1040,
	})

	if len(rec.violations) != 1 {
		t.Fatalf("violations = %d, want 1", len(rec.violations))
	}
	got := rec.violations[0]
	if got.vt != session.ViolationDevtoolsOpen || got.sev != session.SeverityHigh {
		t.Errorf("got (%s, %s), want (devtools_open, high)", got.vt, got.sev)
	}
}

func TestSmallResizeGapIgnored(t *testing.T) {
	rec := &fakeRecorder{}
	New(rec).Handle(Event{
		Kind:       EventWindowResize,
		OuterWidth: 1920, InnerWidth: 1820,
		OuterHeight: 1080, InnerHeight: 1000,
	})

	if len(rec.violations) != 0 {
		t.Errorf("violations = %d, want 0", len(rec.violations))
	}
}

// =============================================================================
// Tests for host responses
// =============================================================================

func TestContextMenuSuppressed(t *testing.T) {
	rec := &fakeRecorder{}
	resp := New(rec).Handle(Event{Kind: EventContextMenu})

	if !resp.SuppressDefault {
		t.Error("expected SuppressDefault for context menu")
	}
}

func TestBeforeUnloadAlwaysConfirms(t *testing.T) {
	rec := &fakeRecorder{}
	resp := New(rec).Handle(Event{Kind: EventBeforeUnload})

	if !resp.ConfirmLeave {
		t.Error("expected ConfirmLeave for close attempt")
	}
	if len(rec.violations) != 0 {
		t.Errorf("close attempt recorded %d violations, want 0", len(rec.violations))
	}
}

// =============================================================================
// Tests for focus-lost accounting
// =============================================================================

func TestFocusLostMeasured(t *testing.T) {
	rec := &fakeRecorder{}
	m := New(rec)

	base := time.Now()
	m.Handle(Event{Kind: EventVisibilityHidden, At: base})
	m.Handle(Event{Kind: EventVisibilityVisible, At: base.Add(3 * time.Second)})

	if rec.focusLost != 3*time.Second {
		t.Errorf("focus lost = %v, want 3s", rec.focusLost)
	}

	m.Handle(Event{Kind: EventWindowBlur, At: base})
	m.Handle(Event{Kind: EventWindowFocus, At: base.Add(time.Second)})

	if rec.focusLost != 4*time.Second {
		t.Errorf("focus lost = %v, want 4s", rec.focusLost)
	}
}

// =============================================================================
// Tests for the event pump
// =============================================================================

type chanSource struct {
	ch chan Event
}

func (c *chanSource) Events() <-chan Event { return c.ch }

func TestBindPumpsAndTearsDown(t *testing.T) {
	rec := &fakeRecorder{}
	m := New(rec)
	src := &chanSource{ch: make(chan Event)}

	teardown := m.Bind(src)
	src.ch <- Event{Kind: EventCopy}
	src.ch <- Event{Kind: EventPaste}
	close(src.ch)
	teardown()

	if len(rec.violations) != 2 {
		t.Errorf("violations = %d, want 2", len(rec.violations))
	}
}
