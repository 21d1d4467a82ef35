// Package history persists transcription records to a single JSON file.
package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Item is one persisted transcription record. Immutable once created.
type Item struct {
	ID        string  `json:"id"`
	CreatedAt string  `json:"createdAt"`
	Seconds   float64 `json:"seconds"`
	Text      string  `json:"text"`
}

// NewItem builds a record with a fresh id and a UTC second-precision
// creation timestamp.
func NewItem(text string, seconds float64) Item {
	return Item{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		Seconds:   seconds,
		Text:      text,
	}
}

// Publisher receives store change notifications. The events.Bus satisfies it.
type Publisher interface {
	Publish(name string, payload any)
}

// Store guards the history file behind a single lock. The on-disk format is
// the full ordered array of items, oldest first.
type Store struct {
	mu        sync.Mutex
	path      string
	publisher Publisher
}

// NewStore creates a store over the given file path. The file does not need
// to exist yet. publisher may be nil.
func NewStore(path string, publisher Publisher) *Store {
	return &Store{path: path, publisher: publisher}
}

// load reads the current file contents. A missing or malformed file reads as
// empty rather than failing.
func (s *Store) load() []Item {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read history file, treating as empty", "path", s.path, "error", err)
		}
		return nil
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		slog.Warn("Malformed history file, treating as empty", "path", s.path, "error", err)
		return nil
	}
	return items
}

// write replaces the file via temp-file-then-rename so a crash mid-write can
// never leave a partial file behind.
func (s *Store) write(items []Item) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp history file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

// Append adds one item at the end of the sequence and publishes
// history_added after releasing the store lock.
func (s *Store) Append(item Item) error {
	s.mu.Lock()
	items := append(s.load(), item)
	err := s.write(items)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if s.publisher != nil {
		s.publisher.Publish("history_added", map[string]any{"item": item})
	}
	return nil
}

// Delete removes the item with the given id. Returns false when no such item
// exists; the file is untouched in that case.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	items := s.load()
	next := items[:0:0]
	for _, item := range items {
		if item.ID != id {
			next = append(next, item)
		}
	}
	if len(next) == len(items) {
		s.mu.Unlock()
		return false, nil
	}
	err := s.write(next)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}

	if s.publisher != nil {
		s.publisher.Publish("history_deleted", map[string]any{"itemId": id})
	}
	return true, nil
}

// Page is one newest-first slice of history.
type Page struct {
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Items  []Item `json:"items"`
}

// List returns the most recent limit items starting offset back from the
// end, newest first. limit is clamped to [1, 50], offset to >= 0.
func (s *Store) List(limit, offset int) Page {
	if limit < 1 {
		limit = 1
	} else if limit > 50 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	items := s.load()
	s.mu.Unlock()

	total := len(items)
	end := total - offset
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	page := make([]Item, 0, end-start)
	for i := end - 1; i >= start; i-- {
		page = append(page, items[i])
	}
	return Page{Total: total, Limit: limit, Offset: offset, Items: page}
}

// ListAll returns every item, newest first.
func (s *Store) ListAll() []Item {
	s.mu.Lock()
	items := s.load()
	s.mu.Unlock()

	out := make([]Item, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, items[i])
	}
	return out
}
