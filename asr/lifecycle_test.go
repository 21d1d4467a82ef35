package asr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyLifecycle(t *testing.T) *Lifecycle {
	t.Helper()
	l := NewLifecycle("test-model",
		func(ctx context.Context) (Recognizer, error) { return NewMockRecognizer(), nil },
		func(ctx context.Context) (string, error) { return "cpu", nil })
	l.Load(context.Background())
	require.True(t, l.Ready())
	return l
}

func TestInitialStatus(t *testing.T) {
	l := NewLifecycle("test-model", nil, nil)

	status := l.Status()
	assert.Equal(t, StateLoading, status.State)
	assert.Equal(t, PhaseStarting, status.Phase)
	assert.Equal(t, 0, status.PhaseIndex)
	assert.Equal(t, float64(0), status.Progress)
	assert.Equal(t, "test-model", status.Model)
	assert.Greater(t, status.StartedAt, float64(0))
	assert.Equal(t, float64(0), status.ReadyAt)
	assert.False(t, l.Ready())

	require.Len(t, status.Events, 1)
	assert.Equal(t, PhaseStarting, status.Events[0].Phase)
}

func TestLoadWalksPhasesInOrder(t *testing.T) {
	l := NewLifecycle("test-model",
		func(ctx context.Context) (Recognizer, error) {
			return NewMockRecognizer(), nil
		},
		func(ctx context.Context) (string, error) {
			return "cuda", nil
		})

	l.Load(context.Background())

	status := l.Status()
	assert.Equal(t, StateReady, status.State)
	assert.Equal(t, PhaseReady, status.Phase)
	assert.Equal(t, 3, status.PhaseIndex)
	assert.Equal(t, float64(1), status.Progress)
	assert.Equal(t, "cuda", status.Device)
	assert.Greater(t, status.ReadyAt, float64(0))
	assert.True(t, l.Ready())

	var phases []Phase
	for _, ev := range status.Events {
		phases = append(phases, ev.Phase)
	}
	assert.Equal(t, []Phase{PhaseStarting, PhaseRestoringModel, PhasePreparingDevice, PhaseReady}, phases)

	// Phase index never decreases across the recorded log.
	prev := -1
	for _, ev := range status.Events {
		assert.GreaterOrEqual(t, ev.Phase.Index(), prev)
		prev = ev.Phase.Index()
	}
}

func TestProgressPerPhase(t *testing.T) {
	want := map[Phase]float64{
		PhaseStarting:        0,
		PhaseRestoringModel:  1.0 / 3,
		PhasePreparingDevice: 2.0 / 3,
		PhaseReady:           1,
	}
	for phase, progress := range want {
		assert.InDelta(t, progress, float64(phase.Index())/float64(len(Phases)-1), 1e-9, "phase %s", phase)
	}
}

func TestRestoreFailureIsTerminal(t *testing.T) {
	l := NewLifecycle("test-model",
		func(ctx context.Context) (Recognizer, error) {
			return nil, errors.New("checkpoint corrupt")
		},
		func(ctx context.Context) (string, error) { return "cpu", nil })

	l.Load(context.Background())

	status := l.Status()
	assert.Equal(t, StateError, status.State)
	assert.Contains(t, status.Error, "checkpoint corrupt")
	assert.Equal(t, "Model load failed", status.Message)
	assert.False(t, l.Ready())

	_, err := l.Transcribe(context.Background(), []float32{0.1}, 16000)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestDeviceFailureIsTerminal(t *testing.T) {
	l := NewLifecycle("test-model",
		func(ctx context.Context) (Recognizer, error) { return NewMockRecognizer(), nil },
		func(ctx context.Context) (string, error) { return "", errors.New("no device") })

	l.Load(context.Background())
	assert.Equal(t, StateError, l.Status().State)
	assert.False(t, l.Ready())
}

func TestTranscribeBeforeReadyFails(t *testing.T) {
	l := NewLifecycle("test-model", nil, nil)
	_, err := l.Transcribe(context.Background(), []float32{0.1, 0.2}, 16000)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestTranscribeWhenReady(t *testing.T) {
	l := readyLifecycle(t)
	text, err := l.Transcribe(context.Background(), []float32{0.1, 0.2, 0.3}, 16000)
	require.NoError(t, err)
	assert.Equal(t, "[mock transcript, 3 samples]", text)
}

func TestEventLogDedupesConsecutivePhases(t *testing.T) {
	l := NewLifecycle("test-model", nil, nil)
	l.setPhase(PhaseRestoringModel, "first")
	l.setPhase(PhaseRestoringModel, "repeat")

	status := l.Status()
	require.Len(t, status.Events, 2)
	assert.Equal(t, "first", status.Events[1].Message)
}

func TestStatusSnapshotIsDetached(t *testing.T) {
	l := NewLifecycle("test-model", nil, nil)
	snapshot := l.Status()
	l.setPhase(PhaseRestoringModel, "later")

	assert.Len(t, snapshot.Events, 1)
	assert.Len(t, l.Status().Events, 2)
}

func TestDeviceSelectorPrefersConfiguredDevice(t *testing.T) {
	device, err := NewDeviceSelector("mps")(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mps", device)

	// Unconfigured selection picks some device without failing.
	device, err = NewDeviceSelector("")(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, device)
}

func TestRestorerMockMode(t *testing.T) {
	rec, err := NewRestorer("mock", "", "", "")(context.Background())
	require.NoError(t, err)
	result, err := rec.Transcribe(context.Background(), []float32{0}, 16000)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Text)
}

func TestRestorerExecModeMissingModelFile(t *testing.T) {
	_, err := NewRestorer("exec", "transcribe-cli", "", "/does/not/exist.nemo")(context.Background())
	assert.Error(t, err)
}
