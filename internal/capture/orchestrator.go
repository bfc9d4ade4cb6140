package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scantrack/internal/barcode"
	"scantrack/internal/camera"
	"scantrack/internal/config"
	"scantrack/internal/lookup"
	"scantrack/internal/meal"
	"scantrack/internal/metrics"
	"scantrack/internal/resource"
)

// autoTimerResourceID tracks the auto-detection timeout with the resource
// manager so lifecycle teardown cancels it with everything else.
const autoTimerResourceID = "capture:auto-detection-timer"

// Mode is the active capture strategy.
type Mode string

const (
	ModeBarcode Mode = "barcode"
	ModeLabel   Mode = "label"
	ModeAI      Mode = "ai"
	ModeManual  Mode = "manual"
)

// Phase is the current step within a capture session.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseAcquiringCamera  Phase = "acquiring_camera"
	PhaseAutoDetecting    Phase = "auto_detecting"
	PhaseLookupInProgress Phase = "lookup_in_progress"
	PhaseModeSelection    Phase = "mode_selection"
	PhaseResultReady      Phase = "result_ready"
	PhaseCameraError      Phase = "camera_error"
	PhaseLabelMode        Phase = "label_mode"
	PhaseAIMode           Phase = "ai_mode"
	PhaseManualEntry      Phase = "manual_entry"
)

// State is the capture session snapshot observed by the presentation
// layer. It is fully reset between sessions.
type State struct {
	Mode                  Mode
	Phase                 Phase
	Active                bool
	Processing            bool
	AutoDetectionComplete bool
	ShowModeSelection     bool
	Barcode               *barcode.Result
	Result                *lookup.EnhancedProduct
	Error                 string
	Camera                camera.SessionState
}

// Events are the orchestrator's transition callbacks.
type Events struct {
	OnPhaseChange     func(Phase)
	OnModeChange      func(Mode)
	OnBarcodeDetected func(lookup.EnhancedProduct)
	OnError           func(string)
}

// Sink receives finalized meal entries. Nutrition arrives pre-scaled by
// servings; the sink never re-scales.
type Sink interface {
	AddFood(ctx context.Context, date string, mealType meal.Type, entry meal.Entry) meal.AddResult
}

// SessionRecorder persists capture session metrics. Implemented by
// metrics.Store; a nil recorder disables recording.
type SessionRecorder interface {
	Begin(ctx context.Context) (string, error)
	Finish(ctx context.Context, sess metrics.CaptureSession) error
}

// Orchestrator owns the capture state machine binding camera, detector,
// lookup and sink into one flow. Camera readiness is a precondition
// checked before any transition into a scanning phase.
type Orchestrator struct {
	cameras   *camera.Service
	detector  *barcode.Detector
	products  *lookup.Service
	sink      Sink
	resources *resource.Manager
	recorder  SessionRecorder
	events    Events

	window     time.Duration
	lookupOpts lookup.Options

	mu     sync.Mutex
	state  State
	stream camera.Stream
	timer  *time.Timer

	// sessionCtx spans one capture session and is cancelled by teardown,
	// aborting an in-flight lookup including its retry delays.
	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	sessionID    string
	detectStart  time.Time
	lookupMS     int64
	detectionMS  int64
	scanAttempts int
}

// NewOrchestrator wires a capture flow from its collaborators. recorder
// may be nil.
func NewOrchestrator(
	cameras *camera.Service,
	detector *barcode.Detector,
	products *lookup.Service,
	sink Sink,
	resources *resource.Manager,
	recorder SessionRecorder,
	cfg *config.Config,
	events Events,
) *Orchestrator {
	return &Orchestrator{
		cameras:    cameras,
		detector:   detector,
		products:   products,
		sink:       sink,
		resources:  resources,
		recorder:   recorder,
		events:     events,
		window:     cfg.AutoDetectionWindow,
		lookupOpts: lookup.Options{EnableCache: true, MaxRetries: cfg.LookupMaxRetries, Timeout: cfg.LookupTimeout},
		state:      State{Mode: ModeBarcode, Phase: PhaseIdle},
	}
}

// State returns a snapshot of the capture session.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// StartCapture acquires the camera and begins auto-detection. Any prior
// session is fully superseded before the new one starts.
func (o *Orchestrator) StartCapture(ctx context.Context) error {
	o.teardown()

	sctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.sessionCtx = sctx
	o.sessionCancel = cancel
	o.state = State{Mode: ModeBarcode, Phase: PhaseAcquiringCamera, Active: true, Processing: true}
	o.mu.Unlock()
	o.emitPhase(PhaseAcquiringCamera)

	if o.recorder != nil {
		if id, err := o.recorder.Begin(ctx); err == nil {
			o.mu.Lock()
			o.sessionID = id
			o.mu.Unlock()
		} else {
			slog.Warn("capture: failed to record session start", "error", err)
		}
	}

	stream, err := o.cameras.StartCamera(ctx)
	if err != nil {
		o.mu.Lock()
		o.state.Phase = PhaseCameraError
		o.state.Processing = false
		o.state.Error = err.Error()
		o.state.Camera = o.cameras.State()
		// A classified failure with a fallback still offers the manual
		// capture modes.
		var cerr *camera.Error
		if errors.As(err, &cerr) && cerr.FallbackAvailable {
			o.state.ShowModeSelection = true
		}
		o.mu.Unlock()
		o.finishSession(metrics.OutcomeFailed)
		o.emitPhase(PhaseCameraError)
		o.emitError(err.Error())
		return err
	}

	o.mu.Lock()
	o.stream = stream
	o.state.Camera = o.cameras.State()
	o.mu.Unlock()

	return o.beginAutoDetection()
}

// beginAutoDetection starts the continuous scan loop and the detection
// window timer. Whichever of detection and timeout resolves first wins;
// the loser's effect is suppressed.
func (o *Orchestrator) beginAutoDetection() error {
	o.mu.Lock()
	if o.stream == nil {
		o.mu.Unlock()
		return fmt.Errorf("capture: cannot scan without an active camera stream")
	}
	stream := o.stream
	o.state.Mode = ModeBarcode
	o.state.Phase = PhaseAutoDetecting
	o.state.Processing = false
	o.state.AutoDetectionComplete = false
	o.state.ShowModeSelection = false
	o.state.Barcode = nil
	o.state.Result = nil
	o.state.Error = ""
	o.detectStart = time.Now()
	o.mu.Unlock()
	o.emitPhase(PhaseAutoDetecting)

	err := o.detector.StartContinuousScanning(stream, barcode.Events{
		OnDetected: o.handleDetection,
		OnAttemptsExceeded: func(attempts int) {
			o.mu.Lock()
			o.scanAttempts = attempts
			o.mu.Unlock()
			o.completeWithoutDetection("scan attempts exhausted")
		},
	})
	if err != nil {
		return err
	}

	timer := time.AfterFunc(o.window, func() {
		o.completeWithoutDetection("auto-detection window elapsed")
	})
	o.mu.Lock()
	o.timer = timer
	o.mu.Unlock()
	o.resources.Register(resource.KindTimer, func() error {
		timer.Stop()
		return nil
	}, autoTimerResourceID)
	return nil
}

// handleDetection is the detection side of the race. A detection arriving
// after the window already closed must not override the mode selection.
func (o *Orchestrator) handleDetection(res barcode.Result) {
	o.mu.Lock()
	if o.state.AutoDetectionComplete || o.state.Phase != PhaseAutoDetecting {
		o.mu.Unlock()
		slog.Debug("capture: late detection suppressed", "barcode", res.Text)
		return
	}
	o.state.AutoDetectionComplete = true
	o.state.Barcode = &res
	o.state.Phase = PhaseLookupInProgress
	o.state.Processing = true
	o.detectionMS = time.Since(o.detectStart).Milliseconds()
	timer := o.timer
	o.timer = nil
	sctx := o.sessionCtx
	o.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	o.resources.Release(autoTimerResourceID)
	o.emitPhase(PhaseLookupInProgress)

	if sctx == nil {
		sctx = context.Background()
	}
	lookupStart := time.Now()
	product, err := o.products.LookupByBarcode(sctx, res.Text, o.lookupOpts)

	o.mu.Lock()
	if o.state.Phase != PhaseLookupInProgress {
		// Session was stopped mid-lookup.
		o.mu.Unlock()
		return
	}
	o.lookupMS = time.Since(lookupStart).Milliseconds()
	o.state.Processing = false
	if err != nil {
		o.state.Phase = PhaseModeSelection
		o.state.ShowModeSelection = true
		o.state.Error = err.Error()
		o.mu.Unlock()
		o.emitPhase(PhaseModeSelection)
		o.emitError(err.Error())
		return
	}
	o.state.Phase = PhaseResultReady
	o.state.Result = product
	o.mu.Unlock()

	o.emitPhase(PhaseResultReady)
	if o.events.OnBarcodeDetected != nil {
		o.events.OnBarcodeDetected(*product)
	}
}

// completeWithoutDetection is the timeout side of the race: close the
// window and offer the manual capture modes.
func (o *Orchestrator) completeWithoutDetection(reason string) {
	o.mu.Lock()
	if o.state.AutoDetectionComplete || o.state.Phase != PhaseAutoDetecting {
		o.mu.Unlock()
		return
	}
	o.state.AutoDetectionComplete = true
	o.state.Phase = PhaseModeSelection
	o.state.ShowModeSelection = true
	timer := o.timer
	o.timer = nil
	o.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	o.resources.Release(autoTimerResourceID)
	o.detector.StopContinuousScanning()

	slog.Info("capture: auto-detection completed without a barcode", "reason", reason)
	o.emitPhase(PhaseModeSelection)
}

// SelectMode switches the capture strategy from the mode selection UI.
// Any running detection loop is stopped before the new mode starts.
func (o *Orchestrator) SelectMode(m Mode) error {
	o.detector.StopContinuousScanning()

	switch m {
	case ModeBarcode:
		return o.beginAutoDetection()
	case ModeLabel, ModeAI, ModeManual:
		o.mu.Lock()
		o.state.Mode = m
		o.state.Phase = phaseForMode(m)
		o.state.ShowModeSelection = false
		phase := o.state.Phase
		o.mu.Unlock()
		o.emitPhase(phase)
		if o.events.OnModeChange != nil {
			o.events.OnModeChange(m)
		}
		return nil
	}
	return fmt.Errorf("capture: unknown mode %q", m)
}

func phaseForMode(m Mode) Phase {
	switch m {
	case ModeLabel:
		return PhaseLabelMode
	case ModeAI:
		return PhaseAIMode
	default:
		return PhaseManualEntry
	}
}

// RetryCapture clears the prior result and restarts detection, reusing
// the active camera session when there is one instead of tearing the
// camera down just to reacquire it.
func (o *Orchestrator) RetryCapture(ctx context.Context) error {
	o.detector.StopContinuousScanning()

	o.mu.Lock()
	cameraActive := o.stream != nil && o.cameras.State().Active
	o.mu.Unlock()

	if cameraActive {
		return o.beginAutoDetection()
	}
	return o.StartCapture(ctx)
}

// ToggleTorch switches the fill light on the active stream. Reports
// false when no stream is active, the device's performance policy keeps
// the torch off, or the hardware refuses.
func (o *Orchestrator) ToggleTorch(enabled bool) bool {
	o.mu.Lock()
	stream := o.stream
	o.mu.Unlock()

	if stream == nil {
		return false
	}
	if !o.cameras.PerformanceSettings().EnableTorch {
		return false
	}
	return o.cameras.ToggleTorch(stream, enabled)
}

// ScanAnother keeps the session open and returns to auto-detection after
// a result was shown.
func (o *Orchestrator) ScanAnother() error {
	o.detector.StopContinuousScanning()
	return o.beginAutoDetection()
}

// ConfirmResult finalizes the shown product into the sink and resets the
// session. Nutrition is scaled by servings before handoff.
func (o *Orchestrator) ConfirmResult(ctx context.Context, date string, mealType meal.Type, servings float64) meal.AddResult {
	o.mu.Lock()
	result := o.state.Result
	o.mu.Unlock()
	if result == nil {
		return meal.AddResult{Error: "no product result to confirm"}
	}

	entry, err := meal.NewEntry(*result, servings)
	if err != nil {
		return meal.AddResult{Error: err.Error()}
	}

	res := o.sink.AddFood(ctx, date, mealType, entry)
	if res.Success {
		o.finishSession(metrics.OutcomeLogged)
		o.teardown()
		o.emitPhase(PhaseIdle)
	}
	return res
}

// StopCapture cancels the session from any phase: pending timers, the
// scan loop and the camera stream are all released.
func (o *Orchestrator) StopCapture() {
	o.finishSession(metrics.OutcomeCancelled)
	o.teardown()
	o.emitPhase(PhaseIdle)
}

// teardown is the total-cancellation path shared by stop, confirm and
// supersede. Cancelling the session context aborts any in-flight lookup
// mid-attempt or mid-backoff.
func (o *Orchestrator) teardown() {
	o.mu.Lock()
	timer := o.timer
	cancel := o.sessionCancel
	o.timer = nil
	o.stream = nil
	o.sessionCtx = nil
	o.sessionCancel = nil
	o.state = State{Mode: ModeBarcode, Phase: PhaseIdle}
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if timer != nil {
		timer.Stop()
	}
	o.resources.Release(autoTimerResourceID)
	o.detector.StopContinuousScanning()
	o.cameras.StopCamera()
}

// finishSession closes the metrics record, if one is open.
func (o *Orchestrator) finishSession(outcome metrics.SessionOutcome) {
	o.mu.Lock()
	id := o.sessionID
	o.sessionID = ""
	sess := metrics.CaptureSession{
		ID:           id,
		Outcome:      outcome,
		ScanAttempts: o.scanAttempts,
		DetectionMS:  o.detectionMS,
		LookupMS:     o.lookupMS,
	}
	if o.state.Barcode != nil {
		sess.Barcode = o.state.Barcode.Text
		sess.Source = string(lookup.SourceBarcode)
	}
	o.scanAttempts = 0
	o.detectionMS = 0
	o.lookupMS = 0
	o.mu.Unlock()

	if o.recorder == nil || id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.recorder.Finish(ctx, sess); err != nil {
		slog.Warn("capture: failed to record session finish", "error", err)
	}
}

func (o *Orchestrator) emitPhase(p Phase) {
	if o.events.OnPhaseChange != nil {
		o.events.OnPhaseChange(p)
	}
}

func (o *Orchestrator) emitError(msg string) {
	if o.events.OnError != nil {
		o.events.OnError(msg)
	}
}
