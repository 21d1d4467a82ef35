// Package record owns the single in-process recording session.
package record

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/voxlabs/voxd/audio"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
)

// Stream is a started capture stream. *portaudio.Stream satisfies it.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Info describes an opened capture stream.
type Info struct {
	SampleRate int
	Channels   int
	Device     string
}

// Source opens capture streams. onFrames receives interleaved float32
// batches from the driver; the slice may be reused between calls.
type Source interface {
	Open(onFrames func([]float32)) (Stream, Info, error)
}

// Session accumulates audio between Start and Stop. At most one session is
// active process-wide; all state is guarded by one lock so a driver callback
// can never write into a buffer being swapped out.
type Session struct {
	source Source

	mu       sync.Mutex
	active   bool
	stream   Stream
	channels int
	chunks   [][]float32
	start    time.Time
}

func NewSession(source Source) *Session {
	return &Session{source: source}
}

// Start opens a fresh capture stream. Fails with ErrAlreadyRecording while a
// session is active.
func (s *Session) Start() (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return Info{}, ErrAlreadyRecording
	}

	stream, info, err := s.source.Open(s.push)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return Info{}, fmt.Errorf("failed to start capture stream: %w", err)
	}

	s.chunks = nil
	s.start = time.Now()
	s.stream = stream
	s.channels = info.Channels
	s.active = true
	return info, nil
}

// push appends one frame batch. The batch is copied since the driver may
// reuse its buffer. Frames arriving after Stop are discarded.
func (s *Session) push(frames []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	buf := make([]float32, len(frames))
	copy(buf, frames)
	s.chunks = append(s.chunks, buf)
}

// Stop closes the stream and returns the assembled mono buffer, empty if
// nothing was captured. Fails with ErrNotRecording when no session is
// active. The stream teardown happens outside the session lock: the driver
// waits for its in-flight callback, which may itself be blocked in push.
func (s *Session) Stop() ([]float32, error) {
	s.mu.Lock()
	if !s.active || s.stream == nil {
		s.mu.Unlock()
		return nil, ErrNotRecording
	}
	stream := s.stream
	chunks := s.chunks
	channels := s.channels
	s.stream = nil
	s.chunks = nil
	s.active = false
	s.mu.Unlock()

	if err := stream.Stop(); err != nil {
		return nil, fmt.Errorf("failed to stop capture stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return nil, fmt.Errorf("failed to close capture stream: %w", err)
	}

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	samples := make([]float32, 0, total)
	for _, c := range chunks {
		samples = append(samples, c...)
	}
	return audio.Downmix(samples, channels), nil
}

// Recording reports whether a session is active.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Elapsed returns wall-clock seconds since the last Start, 0 if the session
// never started.
func (s *Session) Elapsed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.start.IsZero() {
		return 0
	}
	return time.Since(s.start).Seconds()
}
