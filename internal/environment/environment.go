// Package environment captures the one-time capability snapshot taken at
// session start.
//
// The proctor core is host-embedded and platform-neutral: it cannot probe
// monitors, cameras, or fullscreen support portably, so the host passes what
// it observed. Missing inputs degrade to pessimistic defaults and are
// recorded as data, never raised as errors. A denied camera simply means the
// session runs without visual verification.
package environment

import (
	"runtime"
	"time"
)

// Inputs carries host-observed capabilities. The zero value is valid and
// yields a fully degraded snapshot.
type Inputs struct {
	MonitorCount        int
	CameraAvailable     bool
	MicrophoneAvailable bool
	FullscreenCapable   bool
	Browser             string
	Platform            string
	Timezone            string
}

// Snapshot is the recorded environment check.
type Snapshot struct {
	MonitorCount        int       `json:"monitor_count"`
	CameraAvailable     bool      `json:"camera_available"`
	MicrophoneAvailable bool      `json:"microphone_available"`
	FullscreenCapable   bool      `json:"fullscreen_capable"`
	Browser             string    `json:"browser"`
	Platform            string    `json:"platform"`
	Timezone            string    `json:"timezone"`
	TakenAt             time.Time `json:"taken_at"`
}

// Check builds the environment snapshot from host inputs, filling defaults
// for anything the host could not observe.
func Check(in Inputs) Snapshot {
	snap := Snapshot{
		MonitorCount:        in.MonitorCount,
		CameraAvailable:     in.CameraAvailable,
		MicrophoneAvailable: in.MicrophoneAvailable,
		FullscreenCapable:   in.FullscreenCapable,
		Browser:             in.Browser,
		Platform:            in.Platform,
		Timezone:            in.Timezone,
		TakenAt:             time.Now(),
	}

	if snap.MonitorCount < 1 {
		snap.MonitorCount = 1
	}
	if snap.Platform == "" {
		snap.Platform = runtime.GOOS
	}
	if snap.Timezone == "" {
		snap.Timezone = time.Now().Location().String()
	}
	return snap
}
