// Package savestore keeps save slots and the high score in memory and
// mirrors them to a host directory.
package savestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/retroenv/retrogolib/log"
)

// DefaultQuota bounds the total size of all blobs. A snapshot of a 16 KiB
// machine compresses to a few KiB, so this holds plenty of slots.
const DefaultQuota = 4 << 20

const (
	HighScoreFile = "hiscore.bin"
	Slots         = 10
)

var validFilename = regexp.MustCompile(`^[a-zA-Z0-9_]{1,16}(\.[a-zA-Z0-9]{1,3})?$`)

var (
	ErrFileNotFound    = errors.New("file not found")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrQuotaExceeded   = errors.New("store quota exceeded")
	ErrInvalidSlot     = errors.New("invalid save slot")
)

type entry struct {
	data     []byte
	modified time.Time
}

// Store is a set of named blobs with dirty tracking.
type Store struct {
	mu    sync.RWMutex
	files map[string]*entry
	dirty map[string]bool
	used  int
	quota int
}

// New creates an empty store. A quota of zero or less means DefaultQuota.
func New(quota int) *Store {
	if quota <= 0 {
		quota = DefaultQuota
	}
	return &Store{
		files: make(map[string]*entry),
		dirty: make(map[string]bool),
		quota: quota,
	}
}

// SlotName returns the file name of save slot n.
func SlotName(n int) (string, error) {
	if n < 0 || n >= Slots {
		return "", fmt.Errorf("%w: %d", ErrInvalidSlot, n)
	}
	return fmt.Sprintf("slot%d.sav", n), nil
}

// Write stores a copy of data, replacing any previous content.
func (s *Store) Write(name string, data []byte) error {
	if !validFilename.MatchString(name) {
		return ErrInvalidFilename
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldSize := 0
	if existing, ok := s.files[name]; ok {
		oldSize = len(existing.data)
	}
	if s.used-oldSize+len(data) > s.quota {
		return ErrQuotaExceeded
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	s.files[name] = &entry{data: buf, modified: time.Now()}
	s.dirty[name] = true
	s.used += len(data) - oldSize
	return nil
}

// Read returns a copy of the named blob.
func (s *Store) Read(name string) ([]byte, error) {
	if !validFilename.MatchString(name) {
		return nil, ErrInvalidFilename
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.files[name]
	if !ok {
		return nil, ErrFileNotFound
	}
	buf := make([]byte, len(e.data))
	copy(buf, e.data)
	return buf, nil
}

func (s *Store) Delete(name string) error {
	if !validFilename.MatchString(name) {
		return ErrInvalidFilename
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.files[name]
	if !ok {
		return ErrFileNotFound
	}
	s.used -= len(e.data)
	delete(s.files, name)
	// persisted copies are removed on the next flush
	s.dirty[name] = true
	return nil
}

// List returns the stored names in order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Modified reports when a blob was last written.
func (s *Store) Modified(name string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.files[name]
	if !ok {
		return time.Time{}, ErrFileNotFound
	}
	return e.modified, nil
}

func (s *Store) Used() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// Dirty reports whether changes are waiting to be persisted.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dirty) > 0
}

// HighScore returns the stored BCD high score, or 0 when none is saved.
func (s *Store) HighScore() uint16 {
	data, err := s.Read(HighScoreFile)
	if err != nil || len(data) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(data)
}

// SetHighScore stores score if it beats the saved one.
func (s *Store) SetHighScore(score uint16) error {
	if score <= s.HighScore() {
		return nil
	}
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], score)
	return s.Write(HighScoreFile, buf[:])
}

// LoadFrom reads every valid file in dir. A missing directory is not an
// error.
func (s *Store) LoadFrom(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !validFilename.MatchString(name) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if s.used+len(raw) > s.quota {
			return fmt.Errorf("loading %s: %w", name, ErrQuotaExceeded)
		}

		e := &entry{data: raw, modified: time.Now()}
		if info, err := de.Info(); err == nil {
			e.modified = info.ModTime()
		}
		if old, ok := s.files[name]; ok {
			s.used -= len(old.data)
		}
		s.files[name] = e
		s.used += len(raw)
	}
	return nil
}

// PersistTo writes dirty blobs to dir and removes deleted ones. Failed
// writes stay dirty for the next attempt; the first error is returned.
func (s *Store) PersistTo(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	s.mu.Lock()
	writes := make(map[string]*entry)
	var deletes []string
	for name := range s.dirty {
		if e, ok := s.files[name]; ok {
			writes[name] = &entry{data: append([]byte(nil), e.data...), modified: e.modified}
		} else {
			deletes = append(deletes, name)
		}
		delete(s.dirty, name)
	}
	s.mu.Unlock()

	var firstErr error
	for _, name := range deletes {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	for name, e := range writes {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, e.data, 0o644); err != nil {
			s.mu.Lock()
			s.dirty[name] = true
			s.mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		_ = os.Chtimes(path, time.Now(), e.modified)
	}
	return firstErr
}

// Sync flushes the store to dir every interval until ctx is done, then
// flushes once more.
func (s *Store) Sync(ctx context.Context, dir string, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	flush := func() {
		if !s.Dirty() {
			return
		}
		if err := s.PersistTo(dir); err != nil && logger != nil {
			logger.Warn("persisting save store failed", log.String("dir", dir), log.Err(err))
		}
	}

	for {
		select {
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}
