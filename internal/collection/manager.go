package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/studyrag/studyrag/internal/config"
	"github.com/studyrag/studyrag/internal/embed"
	"github.com/studyrag/studyrag/internal/search"
	"github.com/studyrag/studyrag/internal/store"
)

// CollectionsDirName is the subdirectory of the data directory that holds
// all collection directories.
const CollectionsDirName = "collections"

var errManagerClosed = errors.New("collection manager is closed")

// Manager opens and caches collection handles. It owns the shared embedder
// and closes it along with every open collection on Close.
type Manager struct {
	dataDir  string
	cfg      *config.Config
	embedder embed.Embedder

	mu      sync.Mutex
	open    map[Key]*Collection
	opening map[Key]*openCall
	closed  bool
}

// openCall tracks one in-flight open so concurrent opens of the same
// collection share a single engine construction.
type openCall struct {
	done chan struct{}
	c    *Collection
	err  error
}

// NewManager creates a manager rooted at dataDir. The manager takes
// ownership of the embedder and closes it on Close.
func NewManager(dataDir string, cfg *config.Config, embedder embed.Embedder) (*Manager, error) {
	if dataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if err := os.MkdirAll(filepath.Join(dataDir, CollectionsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create collections directory: %w", err)
	}

	return &Manager{
		dataDir:  dataDir,
		cfg:      cfg,
		embedder: embedder,
		open:     make(map[Key]*Collection),
		opening:  make(map[Key]*openCall),
	}, nil
}

// Dir returns the directory path for a collection key.
func (m *Manager) Dir(key Key) string {
	return filepath.Join(m.dataDir, CollectionsDirName, key.Name())
}

// Open returns the live handle for a collection, opening it on first use.
// Opening acquires the collection's directory lock; a collection held by
// another process yields store.ErrCollectionLocked. The manager lock covers
// only the handle maps, so a first open of one collection, which may rebuild
// indexes, never stalls opens of other collections. Concurrent opens of the
// same collection share one construction and its result.
func (m *Manager) Open(ctx context.Context, key Key) (*Collection, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("invalid collection key: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errManagerClosed
	}
	if c, ok := m.open[key]; ok {
		m.mu.Unlock()
		return c, nil
	}
	if call, ok := m.opening[key]; ok {
		m.mu.Unlock()
		select {
		case <-call.done:
			return call.c, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &openCall{done: make(chan struct{})}
	m.opening[key] = call
	m.mu.Unlock()

	c, err := m.openCollection(ctx, key)

	m.mu.Lock()
	delete(m.opening, key)
	registered := err == nil && !m.closed
	if registered {
		m.open[key] = c
	}
	m.mu.Unlock()

	if err == nil && !registered {
		// The manager shut down while this open was in flight.
		_ = c.close()
		c, err = nil, errManagerClosed
	}
	call.c, call.err = c, err
	close(call.done)
	return c, err
}

// openCollection builds a collection handle outside the manager lock:
// directory, flock, engine.
func (m *Manager) openCollection(ctx context.Context, key Key) (*Collection, error) {
	dir := m.Dir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create collection directory: %w", err)
	}

	lock := store.NewDirLock(dir)
	if err := lock.Acquire(); err != nil {
		return nil, fmt.Errorf("open collection %s: %w", key, err)
	}

	engine, err := m.openEngine(ctx, dir)
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("open collection %s: %w", key, err)
	}

	slog.Info("collection_opened",
		slog.String("collection", key.Name()),
		slog.String("key", key.String()))
	return &Collection{Key: key, Dir: dir, engine: engine, lock: lock}, nil
}

// openEngine wires a search engine over the collection directory using the
// configured backends. Partially constructed dependencies are closed on
// failure.
func (m *Manager) openEngine(ctx context.Context, dir string) (*search.Engine, error) {
	chunks, err := store.OpenChunkStore(store.ChunkStorePath(dir))
	if err != nil {
		return nil, err
	}

	lexCfg := store.LexicalConfig{K1: m.cfg.Search.BM25K1, B: m.cfg.Search.BM25B}
	lexical, err := store.NewLexicalIndex(m.cfg.Search.LexicalBackend, dir, lexCfg)
	if err != nil {
		_ = chunks.Close()
		return nil, err
	}

	vecCfg := store.DefaultVectorConfig(m.cfg.Embeddings.Dimensions)
	vector, err := store.NewVectorIndex(m.cfg.Search.VectorBackend, vecCfg)
	if err != nil {
		_ = lexical.Close()
		_ = chunks.Close()
		return nil, err
	}

	engine, err := search.NewEngine(ctx, lexical, vector, chunks, m.embedder, m.engineConfig())
	if err != nil {
		_ = vector.Close()
		_ = lexical.Close()
		_ = chunks.Close()
		return nil, err
	}
	return engine, nil
}

// engineConfig maps the application configuration onto engine parameters.
func (m *Manager) engineConfig() search.EngineConfig {
	return search.EngineConfig{
		ChunkSize:      m.cfg.Segment.ChunkSize,
		ChunkOverlap:   m.cfg.Segment.ChunkOverlap,
		Alpha:          m.cfg.Search.Alpha,
		Lambda:         m.cfg.Search.MMRLambda,
		CandidatePool:  m.cfg.Search.CandidatePool,
		DefaultK:       m.cfg.Search.DefaultK,
		SnippetLength:  m.cfg.Search.SnippetLength,
		IngestWorkers:  m.cfg.Ingest.Workers,
		EmbedBatchSize: m.cfg.Embeddings.BatchSize,
		Quality: search.Assessor{
			HighScore:   m.cfg.Search.Quality.HighScore,
			MediumScore: m.cfg.Search.Quality.MediumScore,
			HighCount:   m.cfg.Search.Quality.HighCount,
			MediumCount: m.cfg.Search.Quality.MediumCount,
			MinScore:    m.cfg.Search.MinScore,
		},
	}
}

// Ingest adds or replaces one document in the keyed collection.
func (m *Manager) Ingest(ctx context.Context, key Key, req search.IngestRequest) (search.IngestStats, error) {
	c, err := m.Open(ctx, key)
	if err != nil {
		return search.IngestStats{}, err
	}
	return c.Ingest(ctx, req)
}

// Retrieve answers one query against the keyed collection.
func (m *Manager) Retrieve(ctx context.Context, key Key, query string, opts search.RetrieveOptions) (*search.RetrievalResult, error) {
	c, err := m.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	return c.Retrieve(ctx, query, opts)
}

// Documents lists the keyed collection's documents, oldest ingest first.
// When the collection is not already open this reads the chunk store
// directly; listing never builds indexes or touches the embedder.
func (m *Manager) Documents(ctx context.Context, key Key) ([]*store.Document, error) {
	if c := m.openHandle(key); c != nil {
		return c.Documents(ctx)
	}

	chunks, err := m.peekChunks(key)
	if err != nil || chunks == nil {
		return nil, err
	}
	defer func() { _ = chunks.Close() }()
	return chunks.Documents(ctx)
}

// Stats summarizes the keyed collection's contents. A collection that was
// never created reports zero counts.
func (m *Manager) Stats(ctx context.Context, key Key) (store.CollectionStats, error) {
	if c := m.openHandle(key); c != nil {
		return c.Stats(ctx)
	}

	chunks, err := m.peekChunks(key)
	if err != nil || chunks == nil {
		return store.CollectionStats{}, err
	}
	defer func() { _ = chunks.Close() }()
	return chunks.Stats(ctx)
}

// DeleteDocument removes one document from the keyed collection. With the
// collection open it goes through the engine so the in-memory indexes drop
// the chunks too; otherwise it deletes from the store under the directory
// lock and lets the next open resync the indexes from the count drift.
func (m *Manager) DeleteDocument(ctx context.Context, key Key, documentID string) error {
	if c := m.openHandle(key); c != nil {
		return c.DeleteDocument(ctx, documentID)
	}

	if err := key.Validate(); err != nil {
		return fmt.Errorf("invalid collection key: %w", err)
	}
	dir := m.Dir(key)
	if _, err := os.Stat(store.ChunkStorePath(dir)); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", store.ErrDocumentNotFound, documentID)
	}

	lock := store.NewDirLock(dir)
	if err := lock.Acquire(); err != nil {
		return fmt.Errorf("delete from collection %s: %w", key, err)
	}
	defer func() { _ = lock.Release() }()

	chunks, err := store.OpenChunkStore(store.ChunkStorePath(dir))
	if err != nil {
		return err
	}
	defer func() { _ = chunks.Close() }()

	if err := chunks.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	slog.Info("document_deleted",
		slog.String("collection", key.Name()),
		slog.String("document", documentID))
	return nil
}

// openHandle returns the cached handle for key, nil when not open.
func (m *Manager) openHandle(key Key) *Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open[key]
}

// peekChunks opens just the chunk store for key, bypassing the engine. A
// collection that was never created returns (nil, nil); callers treat that
// as empty. The caller closes the store.
func (m *Manager) peekChunks(key Key) (*store.ChunkStore, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("invalid collection key: %w", err)
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, errManagerClosed
	}

	path := store.ChunkStorePath(m.Dir(key))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return store.OpenChunkStore(path)
}

// DeleteCollection closes the collection's handle if open and removes its
// directory. Deleting a collection that was never created is a no-op; a
// later Open starts it empty.
func (m *Manager) DeleteCollection(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return fmt.Errorf("invalid collection key: %w", err)
	}

	m.mu.Lock()
	for {
		if m.closed {
			m.mu.Unlock()
			return errManagerClosed
		}
		call, inFlight := m.opening[key]
		if !inFlight {
			break
		}
		// An in-flight open owns the directory; wait for it to settle
		// before removing the files under it.
		m.mu.Unlock()
		select {
		case <-call.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.Lock()
	}
	defer m.mu.Unlock()

	if c, ok := m.open[key]; ok {
		delete(m.open, key)
		// Release the lock before removing the directory; the files are
		// going away regardless.
		if err := c.close(); err != nil {
			slog.Warn("collection_close_failed",
				slog.String("collection", key.Name()),
				slog.String("error", err.Error()))
		}
	}

	dir := m.Dir(key)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete collection %s: %w", key, err)
	}

	slog.Info("collection_deleted", slog.String("collection", key.Name()))
	return nil
}

// Close closes every open collection and the shared embedder. Safe to call
// more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	calls := make([]*openCall, 0, len(m.opening))
	for _, call := range m.opening {
		calls = append(calls, call)
	}
	m.mu.Unlock()

	// In-flight opens observe the closed flag and release what they built;
	// wait them out so the embedder is not closed under a live open.
	for _, call := range calls {
		<-call.done
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for key, c := range m.open {
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("close collection %s: %w", key.Name(), err))
		}
	}
	m.open = nil

	errs = append(errs, m.embedder.Close())
	return errors.Join(errs...)
}
