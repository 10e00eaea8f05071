package vision

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/Von-Etana/lune-sub000/internal/logging"
	"github.com/Von-Etana/lune-sub000/internal/session"
)

// Drift thresholds for the periodic checks.
const (
	// faceAreaDriftPx2 is the face-box area change that suggests a
	// different person in front of the camera.
	faceAreaDriftPx2 = 5000

	// Gaze centroid offsets tolerated before a drift violation.
	gazeHorizTolPx = 30
	gazeVertTolPx  = 20
)

// Config controls check scheduling.
type Config struct {
	// FaceInterval is how often face presence is rechecked.
	FaceInterval time.Duration

	// GazeInterval is how often gaze drift is rechecked.
	GazeInterval time.Duration
}

// DefaultConfig returns the standard check intervals.
func DefaultConfig() Config {
	return Config{
		FaceInterval: 30 * time.Second,
		GazeInterval: 5 * time.Second,
	}
}

// Calibration is the one-time reference captured at session start: the face
// bounding box and its center as the gaze baseline.
type Calibration struct {
	Face Rect  `json:"face"`
	Gaze Point `json:"gaze"`
}

// ReportFunc receives a check finding. All findings carry the same violation
// type downstream; only severity and message differ.
type ReportFunc func(sev session.Severity, message string)

// Checker runs the periodic face and gaze checks against a frame source.
type Checker struct {
	src    Source
	report ReportFunc
	cfg    Config
	log    *slog.Logger

	mu         sync.Mutex
	cal        Calibration
	calibrated bool
}

// Source supplies live camera frames. Frame returns ok=false when no frame
// is currently available; that tick is silently skipped.
type Source interface {
	Frame() (img image.Image, ok bool)
}

// NewChecker creates a checker. report must not be nil.
func NewChecker(src Source, report ReportFunc, cfg Config) *Checker {
	if cfg.FaceInterval <= 0 {
		cfg.FaceInterval = DefaultConfig().FaceInterval
	}
	if cfg.GazeInterval <= 0 {
		cfg.GazeInterval = DefaultConfig().GazeInterval
	}
	return &Checker{
		src:    src,
		report: report,
		cfg:    cfg,
		log:    logging.Component("vision"),
	}
}

// Calibrate samples one frame and stores the face box and gaze baseline.
// It returns false, without reporting anything, when no usable face is
// found; periodic checks must not be scheduled in that case.
func (c *Checker) Calibrate() bool {
	img, ok := c.src.Frame()
	if !ok {
		c.log.Debug("calibration skipped, no frame available")
		return false
	}

	box, found := FaceRegion(img)
	if !found {
		c.log.Debug("calibration failed, no face region in frame")
		return false
	}

	c.mu.Lock()
	c.cal = Calibration{Face: box, Gaze: box.Center()}
	c.calibrated = true
	c.mu.Unlock()

	c.log.Info("visual verification calibrated",
		"face_area_px2", box.Area(),
		"gaze_x", box.Center().X,
		"gaze_y", box.Center().Y)
	return true
}

// Calibrated reports whether a reference face was captured.
func (c *Checker) Calibrated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calibrated
}

// Calibration returns the stored reference.
func (c *Checker) Calibration() Calibration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cal
}

// Start schedules the periodic checks and returns a teardown that stops
// them. If the checker is not calibrated, Start does nothing and the
// teardown is a no-op.
func (c *Checker) Start() (teardown func()) {
	if !c.Calibrated() {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		t := time.NewTicker(c.cfg.FaceInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				c.CheckFace()
			}
		}
	}()
	go func() {
		defer wg.Done()
		t := time.NewTicker(c.cfg.GazeInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				c.CheckGaze()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// CheckFace recomputes the face region and compares it to the reference.
func (c *Checker) CheckFace() {
	img, ok := c.src.Frame()
	if !ok {
		return
	}

	box, found := FaceRegion(img)
	if !found {
		c.report(session.SeverityHigh, "no face detected in camera frame")
		return
	}

	ref := c.Calibration().Face
	drift := box.Area() - ref.Area()
	if drift < 0 {
		drift = -drift
	}
	if drift > faceAreaDriftPx2 {
		c.report(session.SeverityHigh,
			fmt.Sprintf("face region changed significantly, possible different person (drift %d px2)", drift))
	}
}

// CheckGaze recomputes the eye-region centroid and compares it to the
// reference. The horizontal axis takes priority when both exceed their
// tolerance.
func (c *Checker) CheckGaze() {
	img, ok := c.src.Frame()
	if !ok {
		return
	}

	centroid, count := EyeCentroid(img)
	if count < minEyePixels {
		c.report(session.SeverityMedium, "candidate appears to be looking away")
		return
	}

	ref := c.Calibration().Gaze
	dx := centroid.X - ref.X
	dy := centroid.Y - ref.Y

	switch {
	case dx > gazeHorizTolPx:
		c.report(session.SeverityLow, "gaze drifted right of calibrated center")
	case dx < -gazeHorizTolPx:
		c.report(session.SeverityLow, "gaze drifted left of calibrated center")
	case dy > gazeVertTolPx:
		c.report(session.SeverityLow, "gaze drifted below calibrated center")
	case dy < -gazeVertTolPx:
		c.report(session.SeverityLow, "gaze drifted above calibrated center")
	}
}
