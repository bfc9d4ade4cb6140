package camera

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scantrack/internal/platform"
	"scantrack/internal/resource"
)

// ActiveStreamResourceID is the fixed resource id for the current stream.
// Registering under one id means a new start always supersedes the prior
// stream cleanly.
const ActiveStreamResourceID = "camera:active-stream"

// Service negotiates camera streams with graceful degradation.
type Service struct {
	driver    Driver
	resources *resource.Manager
	device    platform.DeviceClass
	deviceID  int

	mu      sync.Mutex
	current Stream
	state   SessionState
}

// NewService creates a camera Service bound to one logical device.
func NewService(driver Driver, resources *resource.Manager, device platform.DeviceClass, deviceID int) *Service {
	return &Service{
		driver:    driver,
		resources: resources,
		device:    device,
		deviceID:  deviceID,
	}
}

// OptimalConstraints returns the preferred configuration: 640x480 target
// capped at 1024x768, rear camera. Constrained devices additionally get a
// 30fps cap for battery, 4:3 framing, and continuous autofocus and
// autoexposure hints.
func (s *Service) OptimalConstraints() Constraints {
	c := Constraints{
		Width:      640,
		Height:     480,
		MaxWidth:   1024,
		MaxHeight:  768,
		FacingRear: true,
	}
	if s.device.Mobile {
		c.FrameRate = 30
		c.AspectRatio = 4.0 / 3.0
		c.ContinuousFocus = true
		c.ContinuousExposure = true
	}
	return c
}

// minimalConstraints is the single fallback tier when the optimal
// configuration is rejected by the hardware.
func (s *Service) minimalConstraints() Constraints {
	return Constraints{
		Width:      320,
		Height:     240,
		MaxWidth:   640,
		MaxHeight:  480,
		FacingRear: true,
	}
}

// StartCamera acquires a stream, tearing down any existing one first so
// at most one stream is ever active. It tries optimal constraints, falls
// back once to minimal constraints, and returns a classified *Error when
// both attempts fail.
func (s *Service) StartCamera(ctx context.Context) (Stream, error) {
	s.StopCamera()

	s.mu.Lock()
	s.state = SessionState{Loading: true}
	s.mu.Unlock()

	stream, err := s.driver.Open(ctx, s.deviceID, s.OptimalConstraints())
	if err != nil {
		slog.Warn("camera: optimal constraints rejected, falling back", "error", err)
		stream, err = s.driver.Open(ctx, s.deviceID, s.minimalConstraints())
	}
	if err != nil {
		cerr := Classify(err)
		denied := cerr.Kind == ErrKindPermissionDenied
		permission := !denied

		s.mu.Lock()
		s.state = SessionState{Error: cerr, Permission: &permission}
		s.mu.Unlock()

		slog.Error("camera: acquisition failed", "kind", cerr.Kind.String(), "error", err)
		return nil, cerr
	}

	caps := s.Capabilities(stream)
	granted := true

	s.mu.Lock()
	s.current = stream
	s.state = SessionState{Active: true, Capabilities: caps, Permission: &granted}
	s.mu.Unlock()

	// The release closure clears the service state too, so a lifecycle
	// release (backgrounding, shutdown) leaves no live reference to the
	// closed stream behind.
	s.resources.Register(resource.KindCameraStream, func() error {
		err := stream.Close()
		s.mu.Lock()
		if s.current == stream {
			s.current = nil
			s.state = SessionState{}
		}
		s.mu.Unlock()
		return err
	}, ActiveStreamResourceID)

	s.OptimizeForBarcodeScanning(stream)
	slog.Info("camera: stream acquired", "device", s.deviceID,
		"torch", caps.Torch, "focus", caps.FocusMode)
	return stream, nil
}

// StopCamera releases the registered stream, if any. Idempotent.
func (s *Service) StopCamera() {
	s.mu.Lock()
	s.current = nil
	s.state = SessionState{}
	s.mu.Unlock()

	s.resources.Release(ActiveStreamResourceID)
}

// State returns a snapshot of the camera sub-state.
func (s *Service) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsCameraAvailable reports whether any video input device exists.
// Enumeration failures read as unavailable rather than erroring.
func (s *Service) IsCameraAvailable() bool {
	devices, err := s.driver.EnumerateDevices()
	if err != nil {
		slog.Warn("camera: device enumeration failed", "error", err)
		return false
	}
	return len(devices) > 0
}

// Capabilities introspects a stream best-effort, returning an empty
// capability set on any failure.
func (s *Service) Capabilities(stream Stream) (caps Capabilities) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("camera: capability introspection panicked", "panic", r)
			caps = Capabilities{}
		}
	}()
	return stream.Capabilities()
}

// OptimizeForBarcodeScanning applies continuous focus and exposure where
// supported. Failures here are non-critical and swallowed.
func (s *Service) OptimizeForBarcodeScanning(stream Stream) {
	caps := s.Capabilities(stream)
	if caps.FocusMode {
		if err := stream.SetContinuousFocus(); err != nil {
			slog.Debug("camera: continuous focus not applied", "error", err)
		}
	}
	if caps.ExposureMode {
		if err := stream.SetContinuousExposure(); err != nil {
			slog.Debug("camera: continuous exposure not applied", "error", err)
		}
	}
}

// ToggleTorch attempts to switch the fill light and reports whether the
// attempt succeeded. Never returns an error.
func (s *Service) ToggleTorch(stream Stream, enabled bool) bool {
	if !s.Capabilities(stream).Torch {
		return false
	}
	if err := stream.SetTorch(enabled); err != nil {
		slog.Debug("camera: torch toggle failed", "enabled", enabled, "error", err)
		return false
	}
	return true
}

// PerformanceSettings derives the adaptive scan policy from the device
// class: constrained devices scan less often to save battery, low core
// counts additionally stretch the interval.
func (s *Service) PerformanceSettings() PerformanceSettings {
	switch {
	case s.device.Mobile && s.device.CPUCores > 0 && s.device.CPUCores < 4:
		return PerformanceSettings{ScanInterval: 800 * time.Millisecond, EnableTorch: true}
	case s.device.Mobile:
		return PerformanceSettings{ScanInterval: 500 * time.Millisecond, EnableTorch: true}
	default:
		return PerformanceSettings{ScanInterval: 300 * time.Millisecond, EnableTorch: false}
	}
}
