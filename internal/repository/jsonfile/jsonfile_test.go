package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ourworld/internal/apperror"
	"github.com/sakif/ourworld/internal/model"
)

// =========================================================================
// HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore opens a store in a fresh temp dir. t.TempDir is removed
// automatically when the test ends.
func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path, discardLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func readDocFile(t *testing.T, path string) *model.Document {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc model.Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	return &doc
}

func createEvent(t *testing.T, s *Store, title string) model.Event {
	t.Helper()
	var ev model.Event
	err := s.Update(context.Background(), func(doc *model.Document) error {
		ev = model.Event{ID: doc.AllocateID(model.CollectionEvents), Title: title}
		doc.Events = append(doc.Events, ev)
		return nil
	})
	require.NoError(t, err)
	return ev
}

// =========================================================================
// LOAD TESTS
// =========================================================================

func TestOpen_SeedsMissingFile(t *testing.T) {
	s := newTestStore(t)

	onDisk := readDocFile(t, s.Path())
	for _, c := range model.Collections {
		assert.Equal(t, 1, onDisk.NextIDs[c], "counter %s", c)
	}
	assert.Equal(t, "Us", onDisk.Profile.Name)
	assert.Len(t, onDisk.Fun.Wheel, 5)
	assert.Equal(t, onDisk.Fun, s.Snapshot().Fun)
}

func TestOpen_CorruptFileIsReseeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"events": [ {"id": 1,`), 0o600))

	s, err := Open(path, discardLogger())
	require.NoError(t, err, "a corrupt store must not stop the process")

	assert.Empty(t, s.Snapshot().Events)
	onDisk := readDocFile(t, path)
	assert.Equal(t, 1, onDisk.NextIDs[model.CollectionEvents])
	assert.Len(t, onDisk.Fun.Polls, 1)

	// The unreadable bytes are kept next to the new store.
	backups, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	kept, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, `{"events": [ {"id": 1,`, string(kept))
}

func TestOpen_MistypedFieldsKeepData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	stored := `{
		"events": [{"id": 1, "title": "Trip", "event_date": "2024-05-01"}],
		"blogPosts": [{"id": "3", "title": "Hello", "body": "First post"}],
		"bucketItems": [{"id": 2, "title": "Paris", "completed": 1}, {"id": 5, "title": "Rome", "completed": "false"}],
		"fun": {"polls": [{"id": 1, "prompt": "Tonight?", "options": [{"id": 1, "option_text": "Walk", "votes": "2"}]}]},
		"nextIds": {"events": "2", "blogPosts": 4, "bucketItems": 6}
	}`
	require.NoError(t, os.WriteFile(path, []byte(stored), 0o600))

	s, err := Open(path, discardLogger())
	require.NoError(t, err)

	doc := s.Snapshot()
	require.Len(t, doc.Events, 1)
	assert.Equal(t, "Trip", doc.Events[0].Title)
	require.Len(t, doc.BlogPosts, 1)
	assert.Equal(t, model.BlogPost{ID: 3, Title: "Hello", Body: "First post"}, doc.BlogPosts[0])
	assert.Equal(t, []model.BucketItem{{ID: 2, Title: "Paris", Completed: true}, {ID: 5, Title: "Rome"}}, doc.BucketItems)
	assert.Equal(t, []model.PollOption{{ID: 1, OptionText: "Walk", Votes: 2}}, doc.Fun.Polls[0].Options)
	assert.Equal(t, 2, doc.NextIDs[model.CollectionEvents])
	assert.Equal(t, 4, doc.NextIDs[model.CollectionBlogPosts])
	assert.Equal(t, 6, doc.NextIDs[model.CollectionBucketItems])

	// The file is rewritten in canonical form, with nothing lost.
	onDisk := readDocFile(t, path)
	assert.Equal(t, doc.Events, onDisk.Events)
	assert.Equal(t, doc.BucketItems, onDisk.BucketItems)
	backups, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Empty(t, backups, "a readable file is not treated as corrupt")
}

func TestOpen_NonObjectDocumentIsReseeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1, 2, 3]`), 0o600))

	s, err := Open(path, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "Us", s.Snapshot().Profile.Name)
	backups, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestOpen_KeepsExistingData(t *testing.T) {
	s := newTestStore(t)
	createEvent(t, s, "Trip")

	reopened, err := Open(s.Path(), discardLogger())
	require.NoError(t, err)

	require.Len(t, reopened.Snapshot().Events, 1)
	assert.Equal(t, "Trip", reopened.Snapshot().Events[0].Title)
	assert.Equal(t, 2, reopened.Snapshot().NextIDs[model.CollectionEvents])
}

func TestOpen_UpgradesLegacyFileOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	legacy := `{"fun": {"polls": [{"id": 1, "prompt": "Tonight?", "options": ["Cozy movie"]}]}}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	_, err := Open(path, discardLogger())
	require.NoError(t, err)

	onDisk := readDocFile(t, path)
	require.Len(t, onDisk.Fun.Polls, 1)
	assert.Equal(t, []model.PollOption{{ID: 1, OptionText: "Cozy movie", Votes: 0}}, onDisk.Fun.Polls[0].Options)
}

func TestOpen_UnreadablePathFails(t *testing.T) {
	// A directory where the file should be cannot be read as a store.
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	require.NoError(t, os.Mkdir(path, 0o700))

	_, err := Open(path, discardLogger())
	assert.Error(t, err)
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdate_AllocatesSequentialIDs(t *testing.T) {
	s := newTestStore(t)

	a := createEvent(t, s, "Trip")
	b := createEvent(t, s, "Dinner")

	assert.Equal(t, 1, a.ID)
	assert.Equal(t, 2, b.ID)
	assert.Equal(t, 3, s.Snapshot().NextIDs[model.CollectionEvents])
	assert.Len(t, readDocFile(t, s.Path()).Events, 2)
}

func TestUpdate_ConcurrentCreates(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for _, title := range []string{"Trip", "Dinner"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			createEvent(t, s, title)
		}()
	}
	wg.Wait()

	doc := s.Snapshot()
	require.Len(t, doc.Events, 2)
	assert.NotEqual(t, doc.Events[0].ID, doc.Events[1].ID)
	assert.ElementsMatch(t, []int{1, 2}, []int{doc.Events[0].ID, doc.Events[1].ID})
	assert.ElementsMatch(t, []string{"Trip", "Dinner"}, []string{doc.Events[0].Title, doc.Events[1].Title})
	assert.Equal(t, 3, doc.NextIDs[model.CollectionEvents])
}

func TestUpdate_ManyConcurrentWritersNeverLoseOrDuplicate(t *testing.T) {
	s := newTestStore(t, WithRetry(1, time.Millisecond))

	const n = 40
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Alternate collections to show that writers to different
			// collections are serialized too.
			err := s.Update(context.Background(), func(doc *model.Document) error {
				if i%2 == 0 {
					doc.Events = append(doc.Events, model.Event{ID: doc.AllocateID(model.CollectionEvents)})
				} else {
					doc.BlogPosts = append(doc.BlogPosts, model.BlogPost{ID: doc.AllocateID(model.CollectionBlogPosts)})
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc := readDocFile(t, s.Path())
	assert.Len(t, doc.Events, n/2)
	assert.Len(t, doc.BlogPosts, n/2)
	assertUniqueBelowCounter(t, doc.Events, doc.NextIDs[model.CollectionEvents])
	assertUniqueBelowCounter(t, doc.BlogPosts, doc.NextIDs[model.CollectionBlogPosts])
}

func assertUniqueBelowCounter[T model.Record](t *testing.T, records []T, next int) {
	t.Helper()
	seen := map[int]bool{}
	for _, r := range records {
		id := r.RecordID()
		assert.False(t, seen[id], "duplicate id %d", id)
		assert.Less(t, id, next)
		seen[id] = true
	}
}

func TestUpdate_CallbackErrorWritesNothing(t *testing.T) {
	s := newTestStore(t)
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Update(context.Background(), func(doc *model.Document) error {
		doc.AllocateID(model.CollectionEvents)
		doc.Events = append(doc.Events, model.Event{ID: 1})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, s.Snapshot().Events)
	assert.Equal(t, 1, s.Snapshot().NextIDs[model.CollectionEvents])
}

func TestUpdate_SnapshotIsNotMutatedInPlace(t *testing.T) {
	s := newTestStore(t)
	old := s.Snapshot()

	createEvent(t, s, "Trip")

	assert.Empty(t, old.Events, "a published snapshot must never change")
	assert.Len(t, s.Snapshot().Events, 1)
}

// =========================================================================
// WRITE FAILURE TESTS
// =========================================================================

func TestUpdate_WriteFailureLeavesStoreUntouched(t *testing.T) {
	s := newTestStore(t, WithRetry(2, time.Millisecond))
	createEvent(t, s, "Trip")
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	calls := 0
	s.write = func([]byte) error {
		calls++
		return errors.New("disk full")
	}

	err = s.Update(context.Background(), func(doc *model.Document) error {
		doc.Events = append(doc.Events, model.Event{ID: doc.AllocateID(model.CollectionEvents), Title: "Dinner"})
		return nil
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrUnavailable), "write failures must be retryable, got %v", err)
	assert.Equal(t, 2, calls, "bounded retries")

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	require.Len(t, s.Snapshot().Events, 1, "in-memory document must not advance")
	assert.Equal(t, 2, s.Snapshot().NextIDs[model.CollectionEvents])
}

func TestClose_RefusesLaterWrites(t *testing.T) {
	s := newTestStore(t)
	createEvent(t, s, "Trip")
	require.NoError(t, s.Close())

	err := s.Update(context.Background(), func(doc *model.Document) error {
		doc.Events = append(doc.Events, model.Event{ID: doc.AllocateID(model.CollectionEvents)})
		return nil
	})

	assert.ErrorIs(t, err, apperror.ErrUnavailable)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Len(t, s.Snapshot().Events, 1, "reads still work")
	assert.Len(t, readDocFile(t, s.Path()).Events, 1)
}

func TestUpdate_TransientFailureIsRetried(t *testing.T) {
	s := newTestStore(t, WithRetry(3, time.Millisecond))

	real := s.write
	calls := 0
	s.write = func(data []byte) error {
		calls++
		if calls < 3 {
			return errors.New("EAGAIN")
		}
		return real(data)
	}

	createEvent(t, s, "Trip")

	assert.Equal(t, 3, calls)
	assert.Len(t, readDocFile(t, s.Path()).Events, 1)
}

func TestUpdate_RetryStopsOnContextCancel(t *testing.T) {
	s := newTestStore(t, WithRetry(5, time.Hour))
	s.write = func([]byte) error { return errors.New("read-only filesystem") }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Update(ctx, func(doc *model.Document) error { return nil })
	assert.ErrorIs(t, err, apperror.ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

// =========================================================================
// ATOMICITY TESTS
// =========================================================================

func TestReplace_ReadersNeverSeePartialFile(t *testing.T) {
	s := newTestStore(t)

	done := make(chan struct{})
	var readerErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			raw, err := os.ReadFile(s.Path())
			if err != nil {
				readerErr = err
				return
			}
			var doc model.Document
			if err := json.Unmarshal(raw, &doc); err != nil {
				readerErr = fmt.Errorf("partial document observed: %w", err)
				return
			}
		}
	}()

	for i := range 50 {
		createEvent(t, s, fmt.Sprintf("event %d with a longer title to grow the file", i))
	}
	close(done)
	wg.Wait()

	assert.NoError(t, readerErr)
}

func TestReplace_LeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	for range 5 {
		createEvent(t, s, "Trip")
	}

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "store.json", entries[0].Name())
}

func TestReplace_WholeDocument(t *testing.T) {
	s := newTestStore(t)

	doc := model.NewDocument()
	doc.Profile.Name = "Sam & Alex"
	require.NoError(t, s.Replace(context.Background(), doc))

	assert.Equal(t, "Sam & Alex", s.Snapshot().Profile.Name)
	assert.Equal(t, "Sam & Alex", readDocFile(t, s.Path()).Profile.Name)
}
