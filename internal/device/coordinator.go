// Package device detects duplicate exam sessions across devices.
//
// Every device registers under the (candidate, assessment) key in the
// shared durable registry and keeps its entry alive with heartbeats. On
// start a coordinator prunes stale entries, flags any surviving foreign
// device as a concurrent session, then registers itself. A live device is
// never pruned because its heartbeat interval is well inside the stale
// window.
package device

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Von-Etana/lune-sub000/internal/logging"
	"github.com/Von-Etana/lune-sub000/internal/store"
)

// Config controls registry liveness.
type Config struct {
	// HeartbeatInterval is how often this device refreshes its entry.
	HeartbeatInterval time.Duration

	// StaleAfter is the age beyond which a registry entry is pruned.
	StaleAfter time.Duration
}

// DefaultConfig returns the standard liveness windows.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 10 * time.Second,
		StaleAfter:        30 * time.Minute,
	}
}

// Coordinator manages this device's registration for one session.
type Coordinator struct {
	st  *store.Store
	cfg Config
	log *slog.Logger

	candidateID  string
	assessmentID string
	deviceID     string
}

// NewCoordinator resolves this device's persistent identity and prepares a
// coordinator for the (candidate, assessment) key.
func NewCoordinator(st *store.Store, candidateID, assessmentID string, cfg Config) (*Coordinator, error) {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig().StaleAfter
	}

	deviceID, err := st.DeviceIdentity()
	if err != nil {
		return nil, fmt.Errorf("resolve device identity: %w", err)
	}

	return &Coordinator{
		st:           st,
		cfg:          cfg,
		log:          logging.Component("device"),
		candidateID:  candidateID,
		assessmentID: assessmentID,
		deviceID:     deviceID,
	}, nil
}

// DeviceID returns this device's persistent identifier.
func (c *Coordinator) DeviceID() string {
	return c.deviceID
}

// Resolve prunes stale registry entries and returns how many other live
// devices hold a registration under the same key, then registers this
// device. A non-zero count means a concurrent session.
func (c *Coordinator) Resolve(now time.Time) (conflicts int, err error) {
	if _, err := c.st.PruneDevices(c.candidateID, c.assessmentID, now.Add(-c.cfg.StaleAfter)); err != nil {
		return 0, err
	}

	records, err := c.st.Devices(c.candidateID, c.assessmentID)
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		if rec.DeviceID != c.deviceID {
			conflicts++
		}
	}

	if err := c.st.TouchDevice(c.candidateID, c.assessmentID, c.deviceID, now); err != nil {
		return conflicts, err
	}

	if conflicts > 0 {
		c.log.Warn("concurrent session detected",
			"candidate", c.candidateID,
			"assessment", c.assessmentID,
			"other_devices", conflicts)
	}
	return conflicts, nil
}

// Heartbeat refreshes this device's registry entry.
func (c *Coordinator) Heartbeat(now time.Time) error {
	return c.st.TouchDevice(c.candidateID, c.assessmentID, c.deviceID, now)
}

// Start launches the background heartbeat tick and returns a teardown that
// stops it and removes this device's registration.
func (c *Coordinator) Start() (teardown func()) {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		t := time.NewTicker(c.cfg.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-t.C:
				if err := c.Heartbeat(now); err != nil {
					c.log.Error("heartbeat failed", "error", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-stopped
			if err := c.st.RemoveDevice(c.candidateID, c.assessmentID, c.deviceID); err != nil {
				c.log.Error("deregister failed", "error", err)
			}
		})
	}
}
