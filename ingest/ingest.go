// Package ingest transcribes WAV files dropped into a watched directory and
// appends the results to history.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/voxlabs/voxd/audio"
	"github.com/voxlabs/voxd/history"
)

// Give the producer time to finish writing after the create event fires.
const settleDelay = 500 * time.Millisecond

// Transcriber is the slice of the model lifecycle the workers need.
// *asr.Lifecycle satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

type Config struct {
	Dir     string
	Workers int
}

type job struct {
	Path     string
	Detected time.Time
}

// Service watches a directory and feeds new WAV files through a worker pool.
type Service struct {
	cfg         Config
	transcriber Transcriber
	store       *history.Store

	watcher *fsnotify.Watcher
	queue   chan job
	workers sync.WaitGroup
}

func New(cfg Config, transcriber Transcriber, store *history.Store) (*Service, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ingest directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Service{
		cfg:         cfg,
		transcriber: transcriber,
		store:       store,
		watcher:     watcher,
		queue:       make(chan job, 100),
	}, nil
}

// Start launches the worker pool and the watch loop.
func (s *Service) Start(ctx context.Context) error {
	if err := s.watcher.Add(s.cfg.Dir); err != nil {
		return fmt.Errorf("failed to watch ingest directory: %w", err)
	}
	slog.Info("Watching ingest directory", "path", s.cfg.Dir, "workers", s.cfg.Workers)

	for i := 0; i < s.cfg.Workers; i++ {
		s.workers.Add(1)
		go s.worker(ctx)
	}
	go s.watch(ctx)
	return nil
}

// Stop drains the queue and releases the watcher.
func (s *Service) Stop(ctx context.Context) error {
	close(s.queue)

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("ingest shutdown timed out")
	}

	if err := s.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close ingest watcher: %w", err)
	}
	return nil
}

func (s *Service) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleFSEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Ingest watcher error", "error", err)
		}
	}
}

func (s *Service) handleFSEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}
	name := strings.ToLower(event.Name)
	if !strings.HasSuffix(name, ".wav") || strings.HasSuffix(name, ".tmp") {
		return
	}

	select {
	case s.queue <- job{Path: event.Name, Detected: time.Now()}:
		slog.Info("Queued audio file for transcription", "file", filepath.Base(event.Name))
	default:
		slog.Warn("Ingest queue full, skipping file", "file", filepath.Base(event.Name))
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.workers.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case j, ok := <-s.queue:
			if !ok {
				return
			}
			if wait := settleDelay - time.Since(j.Detected); wait > 0 {
				time.Sleep(wait)
			}
			if err := s.process(ctx, j.Path); err != nil {
				slog.Error("Failed to process audio file", "error", err, "file", j.Path)
			}
		}
	}
}

// process decodes one WAV file to 16 kHz mono, transcribes it and appends a
// history item. Empty or undecodable files are skipped.
func (s *Service) process(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	samples, err := audio.DecodeWav(file)
	if err != nil {
		return fmt.Errorf("failed to decode audio file: %w", err)
	}
	if len(samples) == 0 {
		slog.Info("Skipping empty audio file", "file", filepath.Base(path))
		return nil
	}

	seconds := float64(len(samples)) / float64(audio.SampleRate)
	text, err := s.transcriber.Transcribe(ctx, samples, audio.SampleRate)
	if err != nil {
		return fmt.Errorf("failed to transcribe audio file: %w", err)
	}

	item := history.NewItem(text, seconds)
	if err := s.store.Append(item); err != nil {
		return fmt.Errorf("failed to append history item: %w", err)
	}

	slog.Info("Transcribed ingested file",
		"file", filepath.Base(path),
		"seconds", seconds,
		"itemID", item.ID)
	return nil
}
