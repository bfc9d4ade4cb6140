// Package platform abstracts host capabilities (lifecycle events, device
// class) so the capture pipeline can be tested without real hardware.
package platform

import (
	"os"
	"runtime"
	"strconv"
)

// LifecycleEvent identifies a host lifecycle transition that requires
// resource cleanup.
type LifecycleEvent int

const (
	// EventUnload fires when the process is about to exit.
	EventUnload LifecycleEvent = iota
	// EventHidden fires when the application is backgrounded.
	EventHidden
	// EventFreeze fires when the application is suspended.
	EventFreeze
)

// String returns a human-readable name for the event.
func (e LifecycleEvent) String() string {
	switch e {
	case EventUnload:
		return "unload"
	case EventHidden:
		return "hidden"
	case EventFreeze:
		return "freeze"
	default:
		return "unknown"
	}
}

// Lifecycle delivers lifecycle events to subscribers.
//
// Implementations must invoke subscribers synchronously in subscription
// order and must tolerate subscribers being added at any time.
type Lifecycle interface {
	// Subscribe registers fn for all future lifecycle events and returns
	// a cancel function. Cancel is idempotent.
	Subscribe(fn func(LifecycleEvent)) (cancel func())
}

// DeviceClass describes the host for adaptive performance policy.
type DeviceClass struct {
	// Mobile is true on battery/CPU constrained devices.
	Mobile bool
	// CPUCores is the number of logical CPU cores.
	CPUCores int
}

// DetectDeviceClass inspects the host. ARM targets are treated as
// constrained devices (phones, single-board computers); the
// SCANTRACK_MOBILE variable overrides the detection either way.
func DetectDeviceClass() DeviceClass {
	mobile := runtime.GOARCH == "arm" || runtime.GOARCH == "arm64"
	if raw := os.Getenv("SCANTRACK_MOBILE"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			mobile = v
		}
	}
	return DeviceClass{
		Mobile:   mobile,
		CPUCores: runtime.NumCPU(),
	}
}
