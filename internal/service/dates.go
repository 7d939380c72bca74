package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/ourworld/internal/model"
)

// Dates is the combined view of the date planner page.
type Dates struct {
	Ideas  []model.DateIdea   `json:"ideas"`
	Bucket []model.BucketItem `json:"bucket"`
}

// Dates returns ideas and bucket list from the same snapshot.
func (s *JournalService) Dates() Dates {
	doc := s.store.Snapshot()
	return Dates{Ideas: doc.DateIdeas, Bucket: doc.BucketItems}
}

// =========================================================================
// DATE IDEAS
// =========================================================================

func (s *JournalService) ListDateIdeas() []model.DateIdea {
	return s.store.Snapshot().DateIdeas
}

func (s *JournalService) CreateDateIdea(ctx context.Context, title, status, notes string) (model.DateIdea, error) {
	var rec model.DateIdea
	err := s.store.Update(ctx, func(doc *model.Document) error {
		rec = model.DateIdea{
			ID:        doc.AllocateID(model.CollectionDateIdeas),
			Title:     orDefault(title, DefaultIdeaTitle),
			Status:    orDefault(status, DefaultIdeaStatus),
			Notes:     notes,
			CreatedAt: timestamp(s.now()),
		}
		doc.DateIdeas = append(doc.DateIdeas, rec)
		return nil
	})
	if err != nil {
		return model.DateIdea{}, fmt.Errorf("creating date idea: %w", err)
	}
	s.logger.Info("date idea created", slog.Int("id", rec.ID))
	return rec, nil
}

// UpdateDateIdea changes status and/or notes. A nil or empty status is left
// alone; a non-nil notes replaces the notes, even with "".
func (s *JournalService) UpdateDateIdea(ctx context.Context, id int, status, notes *string) (model.DateIdea, error) {
	var rec model.DateIdea
	err := s.store.Update(ctx, func(doc *model.Document) error {
		i, err := indexByID(doc.DateIdeas, id, "date idea")
		if err != nil {
			return err
		}
		idea := &doc.DateIdeas[i]
		if status != nil && *status != "" {
			idea.Status = *status
		}
		if notes != nil {
			idea.Notes = *notes
		}
		rec = *idea
		return nil
	})
	if err != nil {
		return model.DateIdea{}, fmt.Errorf("updating date idea: %w", err)
	}
	return rec, nil
}

func (s *JournalService) DeleteDateIdea(ctx context.Context, id int) error {
	err := s.store.Update(ctx, func(doc *model.Document) error {
		var err error
		doc.DateIdeas, _, err = removeByID(doc.DateIdeas, id, "date idea")
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting date idea: %w", err)
	}
	s.logger.Info("date idea deleted", slog.Int("id", id))
	return nil
}

// =========================================================================
// BUCKET LIST
// =========================================================================

func (s *JournalService) ListBucketItems() []model.BucketItem {
	return s.store.Snapshot().BucketItems
}

// CreateBucketItem appends an item that is not completed yet.
func (s *JournalService) CreateBucketItem(ctx context.Context, title string) (model.BucketItem, error) {
	var rec model.BucketItem
	err := s.store.Update(ctx, func(doc *model.Document) error {
		rec = model.BucketItem{
			ID:    doc.AllocateID(model.CollectionBucketItems),
			Title: orDefault(title, DefaultBucketTitle),
		}
		doc.BucketItems = append(doc.BucketItems, rec)
		return nil
	})
	if err != nil {
		return model.BucketItem{}, fmt.Errorf("creating bucket item: %w", err)
	}
	s.logger.Info("bucket item created", slog.Int("id", rec.ID))
	return rec, nil
}

// ToggleBucketItem flips the completed flag. Reading the old value and
// writing the new one happen in the same critical section, so two toggles
// never cancel into one.
func (s *JournalService) ToggleBucketItem(ctx context.Context, id int) (model.BucketItem, error) {
	var rec model.BucketItem
	err := s.store.Update(ctx, func(doc *model.Document) error {
		i, err := indexByID(doc.BucketItems, id, "bucket item")
		if err != nil {
			return err
		}
		doc.BucketItems[i].Completed = !doc.BucketItems[i].Completed
		rec = doc.BucketItems[i]
		return nil
	})
	if err != nil {
		return model.BucketItem{}, fmt.Errorf("toggling bucket item: %w", err)
	}
	return rec, nil
}

func (s *JournalService) DeleteBucketItem(ctx context.Context, id int) error {
	err := s.store.Update(ctx, func(doc *model.Document) error {
		var err error
		doc.BucketItems, _, err = removeByID(doc.BucketItems, id, "bucket item")
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting bucket item: %w", err)
	}
	s.logger.Info("bucket item deleted", slog.Int("id", id))
	return nil
}
