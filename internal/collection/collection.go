package collection

import (
	"context"
	"errors"

	"github.com/studyrag/studyrag/internal/search"
	"github.com/studyrag/studyrag/internal/store"
)

// Collection is one open collection: a retrieval engine bound to its
// directory and cross-process lock. Handles are created and closed by the
// Manager; methods delegate to the engine.
type Collection struct {
	Key Key
	Dir string

	engine *search.Engine
	lock   *store.DirLock
}

// Ingest adds or replaces one document.
func (c *Collection) Ingest(ctx context.Context, req search.IngestRequest) (search.IngestStats, error) {
	return c.engine.IngestDocument(ctx, req)
}

// Retrieve answers one query against this collection.
func (c *Collection) Retrieve(ctx context.Context, query string, opts search.RetrieveOptions) (*search.RetrievalResult, error) {
	return c.engine.Retrieve(ctx, query, opts)
}

// Documents lists the collection's documents, oldest ingest first.
func (c *Collection) Documents(ctx context.Context) ([]*store.Document, error) {
	return c.engine.Documents(ctx)
}

// Stats summarizes the collection's contents.
func (c *Collection) Stats(ctx context.Context) (store.CollectionStats, error) {
	return c.engine.Stats(ctx)
}

// DeleteDocument removes one document. An unknown id returns
// store.ErrDocumentNotFound.
func (c *Collection) DeleteDocument(ctx context.Context, documentID string) error {
	return c.engine.DeleteDocument(ctx, documentID)
}

// close shuts the engine down and releases the directory lock.
func (c *Collection) close() error {
	return errors.Join(c.engine.Close(), c.lock.Release())
}
