// Package repository defines the persistence contract consumed by the
// service layer. The only implementation lives in repository/jsonfile.
package repository

import (
	"context"

	"github.com/sakif/ourworld/internal/model"
)

// DocumentStore owns the single application document.
//
// READS: Snapshot returns the last committed document. It is shared and
// must not be modified.
//
// WRITES: every mutation goes through Update (or Replace), which serializes
// writers. The callback receives a private copy of the committed document,
// may allocate ids and edit any collection, and the copy is published only
// after it is durably on disk. If the callback returns an error, or the
// write fails, nothing changes.
type DocumentStore interface {
	Snapshot() *model.Document
	Update(ctx context.Context, fn func(doc *model.Document) error) error
	Replace(ctx context.Context, doc *model.Document) error
	Path() string
	Close() error
}
