// Package asr wraps the speech recognizer behind a narrow interface and
// manages its load lifecycle.
package asr

import (
	"context"
	"fmt"
)

// Result captures recognizer output.
type Result struct {
	Text       string
	Confidence float64
}

// Recognizer abstracts the ASR backend. Input is mono float32 PCM.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (Result, error)
}

type mockRecognizer struct{}

// NewMockRecognizer returns a backend that echoes the input size. Used in
// tests and as the mode=mock configuration.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, samples []float32, _ int) (Result, error) {
	return Result{Text: fmt.Sprintf("[mock transcript, %d samples]", len(samples))}, nil
}
