package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlabs/voxd/audio"
)

type fakeStream struct {
	started bool
	stopped bool
	closed  bool
}

func (f *fakeStream) Start() error { f.started = true; return nil }
func (f *fakeStream) Stop() error  { f.stopped = true; return nil }
func (f *fakeStream) Close() error { f.closed = true; return nil }

type fakeSource struct {
	channels int
	openErr  error

	stream   *fakeStream
	onFrames func([]float32)
}

func (f *fakeSource) Open(onFrames func([]float32)) (Stream, Info, error) {
	if f.openErr != nil {
		return nil, Info{}, f.openErr
	}
	channels := f.channels
	if channels == 0 {
		channels = 1
	}
	f.stream = &fakeStream{}
	f.onFrames = onFrames
	return f.stream, Info{SampleRate: audio.SampleRate, Channels: channels, Device: "default"}, nil
}

func TestStartStopLifecycle(t *testing.T) {
	src := &fakeSource{}
	session := NewSession(src)

	assert.False(t, session.Recording())
	assert.Equal(t, float64(0), session.Elapsed())

	info, err := session.Start()
	require.NoError(t, err)
	assert.Equal(t, audio.SampleRate, info.SampleRate)
	assert.Equal(t, "default", info.Device)
	assert.True(t, session.Recording())
	assert.True(t, src.stream.started)

	src.onFrames([]float32{0.1, 0.2})
	src.onFrames([]float32{0.3})

	samples, err := session.Stop()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, samples)
	assert.False(t, session.Recording())
	assert.True(t, src.stream.stopped)
	assert.True(t, src.stream.closed)
	assert.Greater(t, session.Elapsed(), float64(0))
}

func TestStartWhileActiveFails(t *testing.T) {
	session := NewSession(&fakeSource{})
	_, err := session.Start()
	require.NoError(t, err)

	_, err = session.Start()
	assert.ErrorIs(t, err, ErrAlreadyRecording)

	// Still recording; the original session is untouched.
	assert.True(t, session.Recording())
}

func TestStopWhileIdleFails(t *testing.T) {
	session := NewSession(&fakeSource{})
	_, err := session.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)

	// A completed session cannot be stopped twice.
	_, err = session.Start()
	require.NoError(t, err)
	_, err = session.Stop()
	require.NoError(t, err)
	_, err = session.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestStopWithNothingCapturedReturnsEmptyBuffer(t *testing.T) {
	session := NewSession(&fakeSource{})
	_, err := session.Start()
	require.NoError(t, err)

	samples, err := session.Stop()
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestFramesAreCopiedNotReferenced(t *testing.T) {
	src := &fakeSource{}
	session := NewSession(src)
	_, err := session.Start()
	require.NoError(t, err)

	buf := []float32{0.5, 0.5}
	src.onFrames(buf)
	buf[0] = -1 // driver reuses its buffer

	samples, err := session.Stop()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, samples)
}

func TestFramesAfterStopAreDiscarded(t *testing.T) {
	src := &fakeSource{}
	session := NewSession(src)
	_, err := session.Start()
	require.NoError(t, err)

	src.onFrames([]float32{0.1})
	_, err = session.Stop()
	require.NoError(t, err)

	// Late callback from the driver during teardown.
	src.onFrames([]float32{0.9})

	_, err = session.Start()
	require.NoError(t, err)
	samples, err := session.Stop()
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestMultiChannelInputIsDownmixed(t *testing.T) {
	src := &fakeSource{channels: 2}
	session := NewSession(src)
	_, err := session.Start()
	require.NoError(t, err)

	src.onFrames([]float32{0.2, 0.4, 1.0, 0.0})

	samples, err := session.Stop()
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.InDelta(t, 0.3, samples[0], 1e-6)
	assert.InDelta(t, 0.5, samples[1], 1e-6)
}

func TestSourceOpenErrorSurfaced(t *testing.T) {
	src := &fakeSource{openErr: errors.New("no device")}
	session := NewSession(src)

	_, err := session.Start()
	require.Error(t, err)
	assert.False(t, session.Recording())

	// Session stays usable once the source recovers.
	src.openErr = nil
	_, err = session.Start()
	assert.NoError(t, err)
}

func TestRestartResetsBuffer(t *testing.T) {
	src := &fakeSource{}
	session := NewSession(src)

	_, err := session.Start()
	require.NoError(t, err)
	src.onFrames([]float32{0.1})
	first, err := session.Stop()
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = session.Start()
	require.NoError(t, err)
	src.onFrames([]float32{0.7})
	second, err := session.Stop()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.7}, second)
}
