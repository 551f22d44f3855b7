// Package docstore defines the collection/document store interface backing
// backups, restores, and user profile lookups.
package docstore

import (
	"context"

	"github.com/empire-compass/compass-server/internal/model"
)

// Write is a single pending upsert inside a batch.
type Write struct {
	Collection string
	ID         string
	Body       model.Document
}

// Store provides keyed access to collections of JSON documents.
// Nested sub-collections are addressed by path, e.g. "Templates/T1/Questions".
type Store interface {
	// Get loads a single document; errs.ErrNotFound when absent.
	Get(ctx context.Context, collection, id string) (model.Document, error)

	// Set upserts one document, overwriting the whole body.
	Set(ctx context.Context, collection, id string, body model.Document) error

	// SetBatch upserts all writes in a single atomic commit.
	// Callers bound the batch size.
	SetBatch(ctx context.Context, writes []Write) error

	// ListCollections returns the names of all top-level collections.
	ListCollections(ctx context.Context) ([]string, error)

	// ListDocuments returns all documents of a collection keyed by id.
	ListDocuments(ctx context.Context, collection string) (map[string]model.Document, error)
}
