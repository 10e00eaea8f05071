// Package monitor binds host input and focus events to violation types.
//
// The proctor core does not capture OS input itself; the host (the exam
// surface embedding the engine) observes page and device events and pushes
// them through an EventSource. The monitor applies the fixed event-to-type
// bindings and replies with how the host should treat the event (suppress
// it, show a leave-confirmation prompt).
package monitor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Von-Etana/lune-sub000/internal/logging"
	"github.com/Von-Etana/lune-sub000/internal/session"
)

// EventKind identifies a host event.
type EventKind string

const (
	// EventVisibilityHidden fires when the exam page is hidden (tab switch).
	EventVisibilityHidden EventKind = "visibility_hidden"
	// EventVisibilityVisible fires when the page becomes visible again.
	EventVisibilityVisible EventKind = "visibility_visible"
	// EventWindowBlur fires when the exam window loses focus.
	EventWindowBlur EventKind = "window_blur"
	// EventWindowFocus fires when the window regains focus.
	EventWindowFocus EventKind = "window_focus"
	// EventCopy fires on clipboard copy.
	EventCopy EventKind = "copy"
	// EventPaste fires on clipboard paste.
	EventPaste EventKind = "paste"
	// EventFullscreenChange fires when fullscreen state toggles.
	EventFullscreenChange EventKind = "fullscreen_change"
	// EventKeyDown fires for key presses the host forwards (escape).
	EventKeyDown EventKind = "key_down"
	// EventWindowResize fires with outer and inner window dimensions.
	EventWindowResize EventKind = "window_resize"
	// EventContextMenu fires on a context-menu open attempt.
	EventContextMenu EventKind = "context_menu"
	// EventBeforeUnload fires on a window-close attempt.
	EventBeforeUnload EventKind = "before_unload"
)

// Event is one host-observed page or device event.
type Event struct {
	Kind EventKind `json:"kind"`
	At   time.Time `json:"at,omitempty"`

	// Key is set for EventKeyDown.
	Key string `json:"key,omitempty"`

	// Fullscreen is set for EventFullscreenChange.
	Fullscreen bool `json:"fullscreen,omitempty"`

	// Window dimensions, set for EventWindowResize.
	OuterWidth  int `json:"outer_width,omitempty"`
	OuterHeight int `json:"outer_height,omitempty"`
	InnerWidth  int `json:"inner_width,omitempty"`
	InnerHeight int `json:"inner_height,omitempty"`
}

// Response tells the host how to treat the event it reported.
type Response struct {
	// SuppressDefault asks the host to cancel the event's default action
	// (context menu open).
	SuppressDefault bool

	// ConfirmLeave asks the host to show a leave-confirmation prompt. Always
	// set for a window-close attempt, independent of the violation pipeline.
	ConfirmLeave bool
}

// Recorder is the violation sink. Satisfied by *session.Engine.
type Recorder interface {
	Record(vt session.ViolationType, sev session.Severity, description string) *session.Violation
	AddFocusLost(d time.Duration)
}

// devtoolsGapPx is the outer/inner window divergence beyond which developer
// tools are assumed open.
const devtoolsGapPx = 160

// Monitor applies the fixed event-to-violation bindings.
type Monitor struct {
	rec Recorder
	log *slog.Logger

	fullscreen bool
	hiddenAt   time.Time
	blurredAt  time.Time
}

// New creates a monitor recording into rec.
func New(rec Recorder) *Monitor {
	return &Monitor{
		rec: rec,
		log: logging.Component("monitor"),
	}
}

// Handle processes one host event and returns the host response.
func (m *Monitor) Handle(ev Event) Response {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	switch ev.Kind {
	case EventVisibilityHidden:
		m.hiddenAt = at
		m.rec.Record(session.ViolationTabSwitch, session.SeverityMedium,
			"candidate switched away from the exam tab")

	case EventVisibilityVisible:
		if !m.hiddenAt.IsZero() {
			m.rec.AddFocusLost(at.Sub(m.hiddenAt))
			m.hiddenAt = time.Time{}
		}

	case EventWindowBlur:
		m.blurredAt = at
		m.rec.Record(session.ViolationWindowBlur, session.SeverityMedium,
			"exam window lost focus")

	case EventWindowFocus:
		if !m.blurredAt.IsZero() {
			m.rec.AddFocusLost(at.Sub(m.blurredAt))
			m.blurredAt = time.Time{}
		}

	case EventCopy:
		m.rec.Record(session.ViolationCopyPaste, session.SeverityLow,
			"content copied to clipboard")

	case EventPaste:
		m.rec.Record(session.ViolationCopyPaste, session.SeverityMedium,
			"content pasted from clipboard")

	case EventFullscreenChange:
		wasFullscreen := m.fullscreen
		m.fullscreen = ev.Fullscreen
		if wasFullscreen && !ev.Fullscreen {
			m.rec.Record(session.ViolationBrowserResize, session.SeverityHigh,
				"exited fullscreen mode")
		}

	case EventKeyDown:
		if ev.Key == "Escape" && m.fullscreen {
			m.rec.Record(session.ViolationBrowserResize, session.SeverityMedium,
				"escape pressed while in fullscreen")
		}

	case EventWindowResize:
		wGap := ev.OuterWidth - ev.InnerWidth
		hGap := ev.OuterHeight - ev.InnerHeight
		if wGap > devtoolsGapPx || hGap > devtoolsGapPx {
			m.rec.Record(session.ViolationDevtoolsOpen, session.SeverityHigh,
				fmt.Sprintf("window size divergence suggests developer tools (gap %dx%d px)", wGap, hGap))
		}

	case EventContextMenu:
		m.rec.Record(session.ViolationExternalResource, session.SeverityLow,
			"context menu open attempt")
		return Response{SuppressDefault: true}

	case EventBeforeUnload:
		// The prompt is unconditional and bypasses the violation pipeline.
		return Response{ConfirmLeave: true}

	default:
		m.log.Debug("ignoring unknown event", "kind", string(ev.Kind))
	}

	return Response{}
}

// EventSource supplies host events to a bound monitor.
type EventSource interface {
	// Events returns the channel of host events. The source closes the
	// channel when it has no more events.
	Events() <-chan Event
}

// Bind starts a pump that feeds source events into the monitor. The returned
// teardown stops the pump; it is safe to call once.
func (m *Monitor) Bind(src EventSource) (teardown func()) {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		for {
			select {
			case <-done:
				return
			case ev, ok := <-src.Events():
				if !ok {
					return
				}
				m.Handle(ev)
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}
