// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, applies defaults, orchestrates
//	Repository (Data layer)  → owns the store document and its file
//
// ONE CRITICAL SECTION PER OPERATION:
// Every mutating method makes exactly one DocumentStore.Update call. Id
// allocation, the collection change and the durable write all happen in
// that one callback, under the store's writer lock, so two concurrent
// creates can never receive the same id or overwrite each other.
//
// Work that does not need the lock stays outside of it: decoding and
// writing upload blobs happens BEFORE Update (and the blob is removed
// again if Update fails), deleting blobs of removed records happens AFTER
// Update succeeded.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/sakif/ourworld/internal/apperror"
	"github.com/sakif/ourworld/internal/model"
	"github.com/sakif/ourworld/internal/repository"
	"github.com/sakif/ourworld/internal/upload"
)

// Field limits. Longer input is cut, not rejected, so a long paste still
// saves.
const (
	MaxCaptionLength     = 240
	MaxProfileNameLength = 120
	MaxBioLength         = 500
)

// Defaults for records created with empty fields.
const (
	DefaultTitle           = "Untitled"
	DefaultAuthor          = "Us"
	DefaultIdeaTitle       = "New idea"
	DefaultIdeaStatus      = "Planned"
	DefaultBucketTitle     = "New item"
	DefaultSpecialDayTitle = "Milestone"
)

// Uploads is the part of the upload store the journal needs.
//
// It is an interface (implemented by *upload.Store) so tests can swap in a
// store that fails on demand.
type Uploads interface {
	Save(p upload.FilePayload) (model.Asset, error)
	SaveImage(p upload.FilePayload) (model.Asset, error)
	RemoveAll(assets ...*model.Asset)
	DataURL(asset *model.Asset) (string, bool)
}

// JournalService implements every read and write on the shared journal.
//
// Reads return slices of the committed snapshot. They are shared with
// other readers and must not be modified.
type JournalService struct {
	store   repository.DocumentStore
	uploads Uploads
	logger  *slog.Logger
	now     func() time.Time
}

func NewJournalService(store repository.DocumentStore, uploads Uploads, logger *slog.Logger) *JournalService {
	return &JournalService{
		store:   store,
		uploads: uploads,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the clock used for created_at and default dates.
func (s *JournalService) WithClock(now func() time.Time) *JournalService {
	s.now = now
	return s
}

// timestamp renders t the way stored documents always have: UTC,
// millisecond precision, trailing Z.
func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// =========================================================================
// EVENTS
// =========================================================================

func (s *JournalService) ListEvents() []model.Event {
	return s.store.Snapshot().Events
}

// CreateEvent appends an event. An empty title becomes "Untitled" and an
// empty date becomes now.
func (s *JournalService) CreateEvent(ctx context.Context, title, eventDate, description string) (model.Event, error) {
	var rec model.Event
	err := s.store.Update(ctx, func(doc *model.Document) error {
		rec = model.Event{
			ID:          doc.AllocateID(model.CollectionEvents),
			Title:       orDefault(title, DefaultTitle),
			EventDate:   orDefault(eventDate, timestamp(s.now())),
			Description: description,
		}
		doc.Events = append(doc.Events, rec)
		return nil
	})
	if err != nil {
		return model.Event{}, fmt.Errorf("creating event: %w", err)
	}
	s.logger.Info("event created", slog.Int("id", rec.ID))
	return rec, nil
}

func (s *JournalService) DeleteEvent(ctx context.Context, id int) error {
	err := s.store.Update(ctx, func(doc *model.Document) error {
		var err error
		doc.Events, _, err = removeByID(doc.Events, id, "event")
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}
	s.logger.Info("event deleted", slog.Int("id", id))
	return nil
}

// =========================================================================
// BLOG
// =========================================================================

func (s *JournalService) ListBlogPosts() []model.BlogPost {
	return s.store.Snapshot().BlogPosts
}

// CreateBlogPost puts the new post first: the blog is kept newest first.
func (s *JournalService) CreateBlogPost(ctx context.Context, title, body, author string) (model.BlogPost, error) {
	var rec model.BlogPost
	err := s.store.Update(ctx, func(doc *model.Document) error {
		rec = model.BlogPost{
			ID:        doc.AllocateID(model.CollectionBlogPosts),
			Title:     orDefault(title, DefaultTitle),
			Body:      body,
			Author:    orDefault(author, DefaultAuthor),
			CreatedAt: timestamp(s.now()),
		}
		doc.BlogPosts = slices.Insert(doc.BlogPosts, 0, rec)
		return nil
	})
	if err != nil {
		return model.BlogPost{}, fmt.Errorf("creating blog post: %w", err)
	}
	s.logger.Info("blog post created", slog.Int("id", rec.ID))
	return rec, nil
}

func (s *JournalService) DeleteBlogPost(ctx context.Context, id int) error {
	err := s.store.Update(ctx, func(doc *model.Document) error {
		var err error
		doc.BlogPosts, _, err = removeByID(doc.BlogPosts, id, "blog post")
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting blog post: %w", err)
	}
	s.logger.Info("blog post deleted", slog.Int("id", id))
	return nil
}

// =========================================================================
// SPECIAL DAYS
// =========================================================================

func (s *JournalService) ListSpecialDays() []model.SpecialDay {
	return s.store.Snapshot().SpecialDays
}

func (s *JournalService) CreateSpecialDay(ctx context.Context, title, eventDate, description string) (model.SpecialDay, error) {
	var rec model.SpecialDay
	err := s.store.Update(ctx, func(doc *model.Document) error {
		rec = model.SpecialDay{
			ID:          doc.AllocateID(model.CollectionSpecialDays),
			Title:       orDefault(title, DefaultSpecialDayTitle),
			EventDate:   orDefault(eventDate, timestamp(s.now())),
			Description: description,
		}
		doc.SpecialDays = append(doc.SpecialDays, rec)
		return nil
	})
	if err != nil {
		return model.SpecialDay{}, fmt.Errorf("creating special day: %w", err)
	}
	s.logger.Info("special day created", slog.Int("id", rec.ID))
	return rec, nil
}

func (s *JournalService) DeleteSpecialDay(ctx context.Context, id int) error {
	err := s.store.Update(ctx, func(doc *model.Document) error {
		var err error
		doc.SpecialDays, _, err = removeByID(doc.SpecialDays, id, "special day")
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting special day: %w", err)
	}
	s.logger.Info("special day deleted", slog.Int("id", id))
	return nil
}

// =========================================================================
// HELPERS
// =========================================================================

// indexByID returns the position of the record with id, or NotFound.
func indexByID[T model.Record](list []T, id int, resource string) (int, error) {
	i := slices.IndexFunc(list, func(r T) bool { return r.RecordID() == id })
	if i < 0 {
		return -1, apperror.NotFound(resource, id)
	}
	return i, nil
}

// removeByID returns list without the record with id, and that record.
// Only ever called on the private copy inside Update.
func removeByID[T model.Record](list []T, id int, resource string) ([]T, T, error) {
	var zero T
	i, err := indexByID(list, id, resource)
	if err != nil {
		return list, zero, err
	}
	removed := list[i]
	return slices.Delete(list, i, i+1), removed, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
