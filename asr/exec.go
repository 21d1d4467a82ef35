package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/voxlabs/voxd/audio"
)

// execRecognizer shells out to an external recognizer command. The command
// receives a temp WAV file and prints either a JSON object with a "text"
// field or the bare transcript on stdout.
type execRecognizer struct {
	cmd       []string
	modelPath string
	modelName string

	// The external process is not assumed to handle concurrent invocations.
	mu sync.Mutex
}

type execResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// NewExecRecognizer parses the command line and returns an exec-backed
// recognizer. A local modelPath takes precedence over the pretrained
// modelName; both may be empty.
func NewExecRecognizer(command, modelPath, modelName string) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execRecognizer{cmd: args, modelPath: modelPath, modelName: modelName}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, samples []float32, sampleRate int) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.CreateTemp("", "voxd_stt_*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create temp wav: %w", err)
	}
	defer os.Remove(file.Name())

	if err := audio.EncodeWav(file, samples, sampleRate); err != nil {
		file.Close()
		return Result{}, err
	}
	if err := file.Close(); err != nil {
		return Result{}, fmt.Errorf("failed to close temp wav: %w", err)
	}

	args := append([]string{}, r.cmd[1:]...)
	args = append(args, "--audio", file.Name())
	if r.modelPath != "" {
		args = append(args, "--model", r.modelPath)
	} else if r.modelName != "" {
		args = append(args, "--model-name", r.modelName)
	}

	command := exec.CommandContext(ctx, r.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}

	return parseOutput(stdout.Bytes()), nil
}

// parseOutput extracts the transcript: the "text" field when the backend
// returned structured JSON, otherwise the trimmed raw output.
func parseOutput(out []byte) Result {
	var resp execResult
	if err := json.Unmarshal(out, &resp); err == nil {
		return Result{Text: resp.Text, Confidence: resp.Confidence}
	}
	return Result{Text: strings.TrimSpace(string(out))}
}
