// Package jsonfile implements repository.DocumentStore on top of a single
// JSON file.
//
// WHY ONE FILE?
// The whole data set of this app is small (two people's journal) and is
// read on every page. Keeping it as one JSON document held in memory means
// reads never touch the disk, and the on-disk format stays trivially
// inspectable and backup-friendly.
//
// CRASH SAFETY:
// The file is never edited in place. Every write goes to a temporary file
// in the same directory, is fsynced, then renamed over store.json. rename(2)
// is atomic within a filesystem, so anyone opening store.json sees either
// the complete old document or the complete new one, never a mix. The
// directory is fsynced afterwards so the rename itself survives a power cut.
//
// CONCURRENCY:
// HTTP handlers run on many goroutines. A read-modify-write cycle
// (allocate an id, append a record, persist) must not interleave with
// another one, or the second write clobbers the first. Store.Update holds
// one writer lock across the WHOLE cycle, not just the final write.
// Readers never take that lock: committed documents are published through
// an atomic pointer and never modified afterwards.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/renameio"

	"github.com/sakif/ourworld/internal/apperror"
	"github.com/sakif/ourworld/internal/metrics"
	"github.com/sakif/ourworld/internal/model"
	"github.com/sakif/ourworld/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// Fails the build if *Store stops satisfying repository.DocumentStore.
var _ repository.DocumentStore = (*Store)(nil)

// ErrClosed is the cause of writes attempted after Close.
var ErrClosed = errors.New("jsonfile: store is closed")

const (
	defaultAttempts = 3
	defaultBackoff  = 25 * time.Millisecond
)

// Store holds the committed document and the path it is persisted to.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex // writer lock, held across read-modify-write
	current atomic.Pointer[model.Document]
	closed  bool // guarded by mu

	attempts int
	backoff  time.Duration

	// write persists one serialized document. Replaced in tests to
	// simulate a failing disk.
	write func(data []byte) error
}

// Option configures a Store.
type Option func(*Store)

// WithRetry sets how many times a failed write is attempted and the initial
// delay between attempts (doubled after each failure).
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Store) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if backoff > 0 {
			s.backoff = backoff
		}
	}
}

// Open loads the store document at path, creating it if needed.
//
// LOAD RULES:
//   - no file: a seeded default document is written
//   - unparseable file (not JSON, or not a JSON object): the file is moved
//     aside to store.json.corrupt-<time> and a seeded default takes its
//     place (logged, not fatal)
//   - otherwise: legacy record shapes and mistyped fields are upgraded; if
//     that changed anything the upgraded document is written back
//
// The directory must exist and be writable; config.ResolveDataDir checks
// that before the server starts.
func Open(path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		path:     path,
		logger:   logger,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
	s.write = s.writeFile
	for _, opt := range opts {
		opt(s)
	}

	raw, err := os.ReadFile(path)
	var doc *model.Document
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("store file not found, seeding a new one", slog.String("path", path))
		doc = model.NewDocument()
	case err != nil:
		return nil, fmt.Errorf("jsonfile: reading %s: %w", path, err)
	default:
		doc, err = decodeDocument(raw)
		if err != nil {
			backup := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102T150405Z"))
			logger.Error("store file is corrupt, resetting to defaults",
				slog.String("path", path),
				slog.String("backup", backup),
				slog.String("error", err.Error()),
			)
			if err := os.Rename(path, backup); err != nil {
				return nil, fmt.Errorf("jsonfile: moving corrupt store aside: %w", err)
			}
			doc = model.NewDocument()
			raw = nil
		}
	}

	data, err := encode(doc)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(data, raw) {
		if err := s.persist(context.Background(), data); err != nil {
			return nil, fmt.Errorf("jsonfile: writing initial document: %w", err)
		}
	}
	s.current.Store(doc)

	logger.Info("store loaded",
		slog.String("path", path),
		slog.Int("events", len(doc.Events)),
		slog.Int("memories", len(doc.Memories)),
		slog.Int("favorites", len(doc.Favorites)),
	)
	return s, nil
}

// Path returns the canonical file path of the store.
func (s *Store) Path() string {
	return s.path
}

// Close waits for a write in progress and refuses all later ones. Every
// successful write is already durable, so there is nothing to flush.
// Snapshot keeps working after Close.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Snapshot returns the committed document. Do not modify it.
func (s *Store) Snapshot() *model.Document {
	return s.current.Load()
}

// Update runs fn on a private copy of the committed document and persists
// the result, all under the writer lock.
//
// Typical use:
//
//	err := store.Update(ctx, func(doc *model.Document) error {
//	    ev.ID = doc.AllocateID(model.CollectionEvents)
//	    doc.Events = append(doc.Events, ev)
//	    return nil
//	})
//
// If fn returns an error nothing is written and the error is returned as is.
// If the write fails, an apperror.ErrUnavailable error is returned and the
// committed document is unchanged.
func (s *Store) Update(ctx context.Context, fn func(doc *model.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.current.Load().Clone()
	if err != nil {
		return err
	}
	if err := fn(next); err != nil {
		return err
	}
	return s.replaceLocked(ctx, next)
}

// Replace persists doc as the new committed document. The caller gives up
// ownership of doc.
func (s *Store) Replace(ctx context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(ctx, doc)
}

func (s *Store) replaceLocked(ctx context.Context, doc *model.Document) error {
	if s.closed {
		return apperror.Unavailable("the server is shutting down, please try again", ErrClosed)
	}
	data, err := encode(doc)
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.persist(ctx, data)
	metrics.ObserveStoreWrite(err, time.Since(start))
	if err != nil {
		s.logger.Error("store write failed",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return apperror.Unavailable("could not save changes, please try again", err)
	}

	s.current.Store(doc)
	return nil
}

// persist writes data with bounded retries. A disk that is momentarily
// unwritable gets a few chances before the caller sees an error.
func (s *Store) persist(ctx context.Context, data []byte) error {
	delay := s.backoff
	for attempt := 1; ; attempt++ {
		err := s.write(data)
		if err == nil {
			return nil
		}
		if attempt >= s.attempts {
			return err
		}
		s.logger.Warn("store write failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
		delay *= 2
	}
}

// writeFile is the atomic replace: temp file in the same directory, fsync,
// rename over the canonical path, then a best-effort directory fsync.
func (s *Store) writeFile(data []byte) error {
	dir := filepath.Dir(s.path)

	t, err := renameio.TempFile(dir, s.path)
	if err != nil {
		return fmt.Errorf("jsonfile: creating temp file: %w", err)
	}
	// Cleanup removes the temp file unless CloseAtomicallyReplace succeeded.
	defer t.Cleanup()

	if _, err := t.Write(data); err != nil {
		return fmt.Errorf("jsonfile: writing temp file: %w", err)
	}
	// CloseAtomicallyReplace fsyncs, closes and renames.
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("jsonfile: replacing %s: %w", s.path, err)
	}

	if err := syncDir(dir); err != nil {
		s.logger.Warn("could not fsync data directory",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// encode serializes the document the way it has always been stored:
// two-space indented JSON.
func encode(doc *model.Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("jsonfile: encoding document: %w", err)
	}
	return data, nil
}
