// Package camera negotiates the best available camera stream for barcode
// scanning, abstracting device and driver variance behind a small Driver
// interface. The contract is always a usable stream or a classified
// failure, never a raw platform error.
package camera

import (
	"context"
	"image"
	"time"
)

// Constraints describe a desired stream configuration. Fields beyond the
// resolution are hints; drivers apply what the hardware supports.
type Constraints struct {
	Width     int
	Height    int
	MaxWidth  int
	MaxHeight int

	// FacingRear prefers the environment-facing camera where the driver
	// can distinguish devices.
	FacingRear bool

	// FrameRate caps capture FPS; zero leaves the driver default.
	FrameRate int

	// AspectRatio is a framing hint (4:3 frames barcodes better); zero
	// leaves the driver default.
	AspectRatio float64

	ContinuousFocus    bool
	ContinuousExposure bool
}

// Capabilities reports which stream controls the hardware supports.
type Capabilities struct {
	Torch        bool `json:"torch"`
	FocusMode    bool `json:"focusMode"`
	ExposureMode bool `json:"exposureMode"`
	Zoom         bool `json:"zoom"`
}

// DeviceInfo identifies an attached video input device.
type DeviceInfo struct {
	ID    int
	Label string
}

// Stream is a live video source. The detector reads frames from it; the
// service owns its lifecycle pairing with the registered resource.
type Stream interface {
	// ReadFrame grabs the next frame. It returns an error on hardware
	// failure or when ctx is done.
	ReadFrame(ctx context.Context) (image.Image, error)

	// Capabilities reports supported controls, best-effort.
	Capabilities() Capabilities

	// SetContinuousFocus and SetContinuousExposure request continuous
	// autofocus/autoexposure. Unsupported controls return an error.
	SetContinuousFocus() error
	SetContinuousExposure() error

	// SetTorch toggles the fill light. Unsupported on most drivers.
	SetTorch(enabled bool) error

	Close() error
}

// Driver opens streams on concrete camera hardware.
type Driver interface {
	Open(ctx context.Context, deviceID int, c Constraints) (Stream, error)
	EnumerateDevices() ([]DeviceInfo, error)
}

// PerformanceSettings is the single source of adaptive-performance policy:
// the detector paces attempts by ScanInterval, the capture flow offers the
// torch only where EnableTorch allows it.
type PerformanceSettings struct {
	ScanInterval time.Duration
	EnableTorch  bool
}

// SessionState is a snapshot of the camera sub-state observed by the
// presentation layer.
type SessionState struct {
	Active       bool
	Loading      bool
	Error        *Error
	Capabilities Capabilities
	// Permission is nil until an acquisition attempt settles it.
	Permission *bool
}
