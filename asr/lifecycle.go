package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Phase is one discrete stage of the model-loading state machine.
type Phase string

const (
	PhaseStarting        Phase = "starting"
	PhaseRestoringModel  Phase = "restoring_model"
	PhasePreparingDevice Phase = "preparing_device"
	PhaseReady           Phase = "ready"
)

// Phases is the ordered loading sequence. The terminal error state is not a
// phase.
var Phases = []Phase{PhaseStarting, PhaseRestoringModel, PhasePreparingDevice, PhaseReady}

// Index returns the position of the phase in the loading sequence, 0 for
// unknown phases.
func (p Phase) Index() int {
	for i, phase := range Phases {
		if phase == p {
			return i
		}
	}
	return 0
}

// State is the coarse lifecycle state reported alongside the phase.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// ErrNotReady is returned when transcription is requested before the model
// finished loading or after a load failure.
var ErrNotReady = errors.New("model is not ready")

// PhaseEvent is one entry in the load event log.
type PhaseEvent struct {
	Phase   Phase   `json:"phase"`
	Message string  `json:"message"`
	At      float64 `json:"at"`
}

// Status is an immutable snapshot of the lifecycle.
type Status struct {
	State      State
	Phase      Phase
	PhaseIndex int
	Progress   float64
	Message    string
	Error      string
	Device     string
	Model      string
	StartedAt  float64
	ReadyAt    float64 // zero until first ready
	Events     []PhaseEvent
}

// RestoreFunc builds the recognizer. Runs once inside the background loader.
type RestoreFunc func(ctx context.Context) (Recognizer, error)

// DeviceFunc selects the compute device the recognizer will run on.
type DeviceFunc func(ctx context.Context) (string, error)

// Lifecycle drives the model through its loading phases exactly once per
// process and answers non-blocking status reads while doing so.
type Lifecycle struct {
	mu        sync.Mutex
	state     State
	phase     Phase
	message   string
	errText   string
	device    string
	startedAt time.Time
	readyAt   time.Time
	events    []PhaseEvent
	rec       Recognizer

	model        string
	restore      RestoreFunc
	selectDevice DeviceFunc
}

// NewLifecycle creates a lifecycle in the starting phase. model is the
// display name reported on /health.
func NewLifecycle(model string, restore RestoreFunc, selectDevice DeviceFunc) *Lifecycle {
	l := &Lifecycle{
		state:        StateLoading,
		model:        model,
		restore:      restore,
		selectDevice: selectDevice,
		startedAt:    time.Now(),
	}
	l.setPhase(PhaseStarting, "Starting backend...")
	return l
}

// Load transitions through the loading phases in order. Any failure moves to
// the terminal error state; there is no retry. Intended to run in its own
// goroutine.
func (l *Lifecycle) Load(ctx context.Context) {
	l.setPhase(PhaseRestoringModel, "Restoring model weights (download if needed)...")
	rec, err := l.restore(ctx)
	if err != nil {
		l.fail(fmt.Errorf("failed to restore model: %w", err))
		return
	}

	l.setPhase(PhasePreparingDevice, "Preparing model on device...")
	device, err := l.selectDevice(ctx)
	if err != nil {
		l.fail(fmt.Errorf("failed to prepare device: %w", err))
		return
	}

	l.mu.Lock()
	l.rec = rec
	l.device = device
	l.state = StateReady
	l.message = fmt.Sprintf("Model loaded on %s", device)
	if l.readyAt.IsZero() {
		l.readyAt = time.Now()
	}
	l.appendEvent(PhaseReady, l.message)
	l.phase = PhaseReady
	l.mu.Unlock()

	slog.Info("Model loaded", "model", l.model, "device", device)
}

func (l *Lifecycle) setPhase(phase Phase, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phase = phase
	l.message = message
	l.appendEvent(phase, message)
}

// appendEvent records a phase transition, collapsing consecutive identical
// phases into one entry. Caller holds l.mu.
func (l *Lifecycle) appendEvent(phase Phase, message string) {
	if n := len(l.events); n > 0 && l.events[n-1].Phase == phase {
		return
	}
	l.events = append(l.events, PhaseEvent{
		Phase:   phase,
		Message: message,
		At:      epoch(time.Now()),
	})
}

func (l *Lifecycle) fail(err error) {
	l.mu.Lock()
	l.state = StateError
	l.errText = err.Error()
	l.message = "Model load failed"
	l.mu.Unlock()
	slog.Error("Model load failed", "model", l.model, "error", err)
}

// Ready reports whether transcription is possible right now.
func (l *Lifecycle) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == StateReady && l.rec != nil
}

// Status returns a point-in-time snapshot. Safe for any number of concurrent
// callers.
func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]PhaseEvent, len(l.events))
	copy(events, l.events)

	idx := l.phase.Index()
	return Status{
		State:      l.state,
		Phase:      l.phase,
		PhaseIndex: idx,
		Progress:   float64(idx) / float64(len(Phases)-1),
		Message:    l.message,
		Error:      l.errText,
		Device:     l.device,
		Model:      l.model,
		StartedAt:  epoch(l.startedAt),
		ReadyAt:    epoch(l.readyAt),
		Events:     events,
	}
}

// Transcribe runs the audio through the recognizer. The readiness check and
// the recognizer handle are taken under one lock acquisition, so a load that
// has not completed at the moment transcription begins yields ErrNotReady
// instead of silently dropping audio.
func (l *Lifecycle) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	l.mu.Lock()
	rec := l.rec
	ready := l.state == StateReady && rec != nil
	l.mu.Unlock()

	if !ready {
		return "", ErrNotReady
	}
	result, err := rec.Transcribe(ctx, samples, sampleRate)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func epoch(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixMilli()) / 1000
}

// NewRestorer builds the RestoreFunc for the configured backend mode.
func NewRestorer(mode, command, modelName, modelPath string) RestoreFunc {
	return func(ctx context.Context) (Recognizer, error) {
		if mode == "mock" {
			return NewMockRecognizer(), nil
		}
		if modelPath != "" {
			if _, err := os.Stat(modelPath); err != nil {
				return nil, fmt.Errorf("model file not found: %w", err)
			}
		}
		return NewExecRecognizer(command, modelPath, modelName)
	}
}

// NewDeviceSelector prefers the configured device, then an accelerator if one
// is visible, then the CPU.
func NewDeviceSelector(device string) DeviceFunc {
	return func(ctx context.Context) (string, error) {
		if device != "" {
			return device, nil
		}
		if _, err := exec.LookPath("nvidia-smi"); err == nil {
			return "cuda", nil
		}
		return "cpu", nil
	}
}
