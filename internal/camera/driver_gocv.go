package camera

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"
)

// GocvDriver opens camera devices through OpenCV video capture.
type GocvDriver struct{}

// NewGocvDriver returns the OpenCV-backed camera driver.
func NewGocvDriver() *GocvDriver {
	return &GocvDriver{}
}

// Open acquires the device and applies constraints. OpenCV property sets
// are fire-and-forget; the hardware keeps its defaults for anything it
// does not support, which is exactly the hint semantics Constraints ask for.
func (d *GocvDriver) Open(_ context.Context, deviceID int, c Constraints) (Stream, error) {
	capture, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open video capture device %d: %w", deviceID, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, fmt.Errorf("video capture device %d not found", deviceID)
	}

	if c.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	}
	if c.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}
	if c.FrameRate > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(c.FrameRate))
	}

	// Reject streams negotiated above the cap; the hardware picked a mode
	// the constraints do not allow.
	if c.MaxWidth > 0 && capture.Get(gocv.VideoCaptureFrameWidth) > float64(c.MaxWidth) {
		_ = capture.Close()
		return nil, fmt.Errorf("device %d negotiated unsupported resolution %vx%v",
			deviceID, capture.Get(gocv.VideoCaptureFrameWidth), capture.Get(gocv.VideoCaptureFrameHeight))
	}

	s := &gocvStream{capture: capture}
	if c.ContinuousFocus {
		_ = s.SetContinuousFocus()
	}
	if c.ContinuousExposure {
		_ = s.SetContinuousExposure()
	}
	return s, nil
}

// EnumerateDevices lists V4L video nodes. On hosts without /dev/video*
// it falls back to probing the default device.
func (d *GocvDriver) EnumerateDevices() ([]DeviceInfo, error) {
	nodes, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate video devices: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(nodes))
	for i, node := range nodes {
		devices = append(devices, DeviceInfo{ID: i, Label: node})
	}
	return devices, nil
}

// gocvStream wraps an OpenCV capture handle.
type gocvStream struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	closed  bool
}

func (s *gocvStream) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("camera stream is closed")
	}

	mat := gocv.NewMat()
	defer mat.Close()
	if ok := s.capture.Read(&mat); !ok || mat.Empty() {
		return nil, fmt.Errorf("failed to read frame from camera")
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

func (s *gocvStream) Capabilities() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Capabilities{}
	}
	// OpenCV exposes no torch control and gives no feedback on property
	// sets, so focus/exposure are reported as attemptable and zoom by its
	// current value.
	return Capabilities{
		Torch:        false,
		FocusMode:    true,
		ExposureMode: true,
		Zoom:         s.capture.Get(gocv.VideoCaptureZoom) > 0,
	}
}

func (s *gocvStream) SetContinuousFocus() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("camera stream is closed")
	}
	s.capture.Set(gocv.VideoCaptureAutoFocus, 1)
	return nil
}

func (s *gocvStream) SetContinuousExposure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("camera stream is closed")
	}
	s.capture.Set(gocv.VideoCaptureAutoExposure, 1)
	return nil
}

func (s *gocvStream) SetTorch(bool) error {
	return fmt.Errorf("torch is not supported by this driver")
}

func (s *gocvStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.capture.Close()
}
