package barcode

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scantrack/internal/camera"
	"scantrack/internal/platform"
	"scantrack/internal/resource"
)

// ErrAlreadyScanning is returned when continuous scanning is started while
// a previous session is still running.
var ErrAlreadyScanning = errors.New("barcode: continuous scanning already active")

// Events are the continuous-scanning callbacks. Exactly one of OnDetected
// or OnAttemptsExceeded fires per session, unless the session is stopped
// first. OnError reports non-terminal per-attempt failures.
type Events struct {
	OnDetected         func(Result)
	OnAttemptsExceeded func(attempts int)
	OnError            func(error)
}

// Detector runs single-shot and continuous decode attempts against a live
// stream. The decode engine is registered with the resource manager on
// creation and explicitly reset on every stop.
type Detector struct {
	decoder        Decoder
	resources      *resource.Manager
	settings       camera.PerformanceSettings
	maxAttempts    int
	attemptTimeout time.Duration

	mu       sync.Mutex
	scanning bool
	cancel   context.CancelFunc
	done     chan struct{}

	scannerResourceID string
	cancelLifecycle   func()
}

// NewDetector creates a Detector. The scan interval comes from the camera
// service's adaptive performance settings; maxAttempts bounds a continuous
// session so an unscannable target cannot drain the battery indefinitely.
func NewDetector(decoder Decoder, resources *resource.Manager, settings camera.PerformanceSettings, maxAttempts int, attemptTimeout time.Duration) *Detector {
	d := &Detector{
		decoder:        decoder,
		resources:      resources,
		settings:       settings,
		maxAttempts:    maxAttempts,
		attemptTimeout: attemptTimeout,
	}
	d.scannerResourceID = resources.Register(resource.KindScanner, func() error {
		d.StopContinuousScanning()
		return nil
	}, "")
	return d
}

// Bind stops scanning when the application is backgrounded. Scanning does
// not auto-resume on foreground; the orchestrator restarts it explicitly.
func (d *Detector) Bind(lifecycle platform.Lifecycle) {
	if d.cancelLifecycle != nil {
		return
	}
	d.cancelLifecycle = lifecycle.Subscribe(func(event platform.LifecycleEvent) {
		if event == platform.EventHidden {
			slog.Info("barcode: stopping scan, application hidden")
			d.StopContinuousScanning()
		}
	})
}

// DetectOnce performs a single decode attempt bounded by timeout.
// "Not found within the timeout" is a normal nil result, not an error;
// only genuine decode or hardware failures return one.
func (d *Detector) DetectOnce(ctx context.Context, stream camera.Stream, timeout time.Duration) (*Result, error) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type attempt struct {
		det Detection
		err error
	}
	ch := make(chan attempt, 1)
	go func() {
		img, err := stream.ReadFrame(dctx)
		if err != nil {
			ch <- attempt{err: err}
			return
		}
		ch <- attempt{det: d.decoder.Decode(img)}
	}()

	select {
	case a := <-ch:
		if a.err != nil {
			if errors.Is(a.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, nil
			}
			return nil, a.err
		}
		switch a.det.Outcome {
		case OutcomeDetected:
			return a.det.Result, nil
		case OutcomeNotFound:
			return nil, nil
		default:
			return nil, a.det.Err
		}
	case <-dctx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

// StartContinuousScanning begins a scan session: repeated DetectOnce calls
// separated by the adaptive interval, halting on the first detection or
// after maxAttempts. Attempt completion schedules the next attempt, so two
// attempts are never pending at once.
func (d *Detector) StartContinuousScanning(stream camera.Stream, events Events) error {
	d.mu.Lock()
	if d.scanning {
		d.mu.Unlock()
		return ErrAlreadyScanning
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.scanning = true
	d.cancel = cancel
	d.done = done
	d.mu.Unlock()

	go func() {
		result, attempts, scanErr := d.scanLoop(ctx, stream, events)
		d.settle()
		close(done)

		// A stop that raced the final attempt wins; its effects were
		// already applied and no event fires.
		if ctx.Err() != nil {
			return
		}
		switch {
		case result != nil:
			if events.OnDetected != nil {
				events.OnDetected(*result)
			}
		case scanErr == nil:
			slog.Info("barcode: scan attempts exhausted", "attempts", attempts)
			if events.OnAttemptsExceeded != nil {
				events.OnAttemptsExceeded(attempts)
			}
		}
	}()
	return nil
}

// scanLoop returns the first detection, or (nil, attempts, nil) once the
// ceiling is reached.
func (d *Detector) scanLoop(ctx context.Context, stream camera.Stream, events Events) (*Result, int, error) {
	for attemptNo := 1; ; attemptNo++ {
		res, err := d.DetectOnce(ctx, stream, d.attemptTimeout)
		if ctx.Err() != nil {
			return nil, attemptNo, ctx.Err()
		}
		if err != nil {
			// Abnormal failure; not-found never reaches this branch.
			slog.Warn("barcode: decode attempt failed", "attempt", attemptNo, "error", err)
			if events.OnError != nil {
				events.OnError(err)
			}
		}
		if res != nil {
			return res, attemptNo, nil
		}
		if attemptNo >= d.maxAttempts {
			return nil, attemptNo, nil
		}
		select {
		case <-time.After(d.settings.ScanInterval):
		case <-ctx.Done():
			return nil, attemptNo, ctx.Err()
		}
	}
}

// StopContinuousScanning cancels any pending attempt and resets the decode
// engine. Safe to call when not scanning.
func (d *Detector) StopContinuousScanning() {
	d.mu.Lock()
	cancel := d.cancel
	done := d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	// Reset even when idle: the engine holds native resources independent
	// of our references.
	d.decoder.Reset()
}

// IsScanning reports whether a continuous session is active.
func (d *Detector) IsScanning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scanning
}

// Close unsubscribes from lifecycle events and releases the scanner
// resource registration.
func (d *Detector) Close() {
	if d.cancelLifecycle != nil {
		d.cancelLifecycle()
		d.cancelLifecycle = nil
	}
	d.resources.Release(d.scannerResourceID)
}

// settle closes out a session when its loop exits, releasing the scan
// context even when no StopContinuousScanning call follows.
func (d *Detector) settle() {
	d.mu.Lock()
	d.scanning = false
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.decoder.Reset()
}
