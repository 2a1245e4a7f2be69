package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/studyrag/studyrag/internal/embed"
	"github.com/studyrag/studyrag/internal/segment"
	"github.com/studyrag/studyrag/internal/store"
)

// Engine is the hybrid retrieval engine for one collection. It owns the
// lexical and vector indexes plus the chunk store, and borrows a shared
// embedder it never closes.
//
// A per-collection RWMutex orders writers against readers: document
// add/replace/delete holds the write lock across the whole store and index
// mutation, so a retrieval never observes a chunk indexed in only one
// signal or a mix of old and new chunks for a re-ingested document.
type Engine struct {
	lexical   store.LexicalIndex
	vector    store.VectorIndex
	chunks    *store.ChunkStore
	embedder  embed.Embedder
	segmenter *segment.Segmenter
	config    EngineConfig
	citations CitationBuilder
	pool      *ants.Pool

	mu     sync.RWMutex
	closed bool
}

var errEngineClosed = errors.New("search engine is closed")

// NewEngine creates the engine and syncs the in-memory index backends from
// the chunk store. Returns an error if any required dependency is nil.
func NewEngine(
	ctx context.Context,
	lexical store.LexicalIndex,
	vector store.VectorIndex,
	chunks *store.ChunkStore,
	embedder embed.Embedder,
	cfg EngineConfig,
) (*Engine, error) {
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if chunks == nil {
		return nil, fmt.Errorf("%w: chunk store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}

	cfg = cfg.withDefaults()
	seg, err := segment.NewSegmenter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	pool, err := ants.NewPool(cfg.IngestWorkers)
	if err != nil {
		return nil, fmt.Errorf("create ingest pool: %w", err)
	}

	e := &Engine{
		lexical:   lexical,
		vector:    vector,
		chunks:    chunks,
		embedder:  embedder,
		segmenter: seg,
		config:    cfg,
		citations: NewCitationBuilder(cfg.SnippetLength),
		pool:      pool,
	}

	if err := e.syncIndexes(ctx); err != nil {
		pool.Release()
		return nil, fmt.Errorf("rebuild indexes: %w", err)
	}
	e.warnOnModelChange(ctx)

	return e, nil
}

// syncIndexes rebuilds the index backends from the chunk store when their
// contents have drifted. The store is the durable source of truth; the
// indexes are derived state.
func (e *Engine) syncIndexes(ctx context.Context) error {
	stats, err := e.chunks.Stats(ctx)
	if err != nil {
		return err
	}
	if e.lexical.Count() == stats.TotalChunks && e.vector.Count() == stats.TotalChunks {
		return nil
	}

	rows, vectors, err := e.chunks.AllChunks(ctx)
	if err != nil {
		return err
	}
	if err := e.lexical.Reset(ctx); err != nil {
		return err
	}
	if err := e.vector.Reset(ctx); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	docs := make([]store.IndexDoc, len(rows))
	ids := make([]string, len(rows))
	for i, c := range rows {
		docs[i] = store.IndexDoc{ID: c.ID, Content: c.Content}
		ids[i] = c.ID
	}
	if err := e.lexical.Add(ctx, docs); err != nil {
		return err
	}
	if err := e.vector.Add(ctx, ids, vectors); err != nil {
		return err
	}

	slog.Info("indexes_rebuilt", slog.Int("chunks", len(rows)))
	return nil
}

// warnOnModelChange logs when the active embedder differs from the model
// the collection was indexed with. Equal dimensions keep retrieval running,
// but scores across models are not comparable.
func (e *Engine) warnOnModelChange(ctx context.Context) {
	stored, err := e.chunks.Model(ctx)
	if err != nil || stored == "" {
		return
	}
	if current := e.embedder.ModelName(); stored != current {
		slog.Warn("embedding_model_changed",
			slog.String("indexed_with", stored),
			slog.String("active", current),
			slog.String("hint", "re-ingest documents to embed them with the active model"))
	}
}

// IngestDocument segments, embeds, and indexes one document. An existing
// document id is atomically replaced: readers see the old chunk set or the
// new one, never a mix. A document yielding zero chunks is rejected with
// ErrEmptyDocument and nothing is stored.
func (e *Engine) IngestDocument(ctx context.Context, req IngestRequest) (IngestStats, error) {
	start := time.Now()

	if strings.TrimSpace(req.DocumentID) == "" {
		return IngestStats{}, errors.New("ingest: document id is required")
	}

	pages := e.segmenter.SplitPages(req.Pages)
	if len(pages) == 0 {
		return IngestStats{}, fmt.Errorf("ingest %s: %w", req.DocumentID, store.ErrEmptyDocument)
	}

	chunks := make([]*store.Chunk, len(pages))
	texts := make([]string, len(pages))
	for i, pc := range pages {
		chunks[i] = &store.Chunk{
			ID:         store.ChunkID(req.DocumentID, i),
			DocumentID: req.DocumentID,
			Index:      i,
			Page:       pc.Page,
			Content:    pc.Text,
			CharCount:  utf8.RuneCountInString(pc.Text),
		}
		texts[i] = pc.Text
	}

	// Embedding happens outside the write lock; only the mutation below
	// needs to exclude readers.
	vectors, err := e.embedChunks(ctx, texts)
	if err != nil {
		return IngestStats{}, fmt.Errorf("ingest %s: %w", req.DocumentID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return IngestStats{}, errEngineClosed
	}

	if err := e.checkDimensions(ctx, len(vectors[0])); err != nil {
		return IngestStats{}, fmt.Errorf("ingest %s: %w", req.DocumentID, err)
	}

	oldIDs, err := e.chunks.ChunkIDs(ctx, req.DocumentID)
	if err != nil {
		return IngestStats{}, fmt.Errorf("ingest %s: %w", req.DocumentID, err)
	}

	doc := &store.Document{
		ID:         req.DocumentID,
		Title:      req.Title,
		Pages:      len(req.Pages),
		ChunkCount: len(chunks),
		IngestedAt: time.Now().UTC(),
	}
	if err := e.chunks.SaveDocument(ctx, doc, chunks, vectors); err != nil {
		return IngestStats{}, fmt.Errorf("ingest %s: save: %w", req.DocumentID, err)
	}

	if err := e.applyToIndexes(ctx, oldIDs, chunks, vectors); err != nil {
		// The store transaction committed, so resync the derived state
		// from it instead of leaving the indexes behind.
		slog.Warn("index_apply_failed", slog.String("document", req.DocumentID), slog.String("error", err.Error()))
		if syncErr := e.syncIndexes(ctx); syncErr != nil {
			return IngestStats{}, fmt.Errorf("ingest %s: %w", req.DocumentID, errors.Join(err, syncErr))
		}
	}

	slog.Info("ingest_complete",
		slog.String("document", req.DocumentID),
		slog.Int("pages", len(req.Pages)),
		slog.Int("chunks", len(chunks)),
		slog.Duration("elapsed", time.Since(start)))

	return IngestStats{DocumentID: req.DocumentID, ChunkCount: len(chunks)}, nil
}

// checkDimensions pins the collection's embedding dimensionality on first
// write and rejects disagreeing vectors afterwards.
func (e *Engine) checkDimensions(ctx context.Context, got int) error {
	stored, err := e.chunks.Dimensions(ctx)
	if err != nil {
		return err
	}
	if stored == 0 {
		if err := e.chunks.SetDimensions(ctx, got); err != nil {
			return err
		}
		return e.chunks.SetModel(ctx, e.embedder.ModelName())
	}
	if stored != got {
		return store.ErrDimensionMismatch{Expected: stored, Got: got}
	}
	return nil
}

// applyToIndexes replaces a document's entries in both index backends.
func (e *Engine) applyToIndexes(ctx context.Context, oldIDs []string, chunks []*store.Chunk, vectors [][]float32) error {
	if len(oldIDs) > 0 {
		if err := e.lexical.Remove(ctx, oldIDs); err != nil {
			return fmt.Errorf("remove stale lexical entries: %w", err)
		}
		if err := e.vector.Remove(ctx, oldIDs); err != nil {
			return fmt.Errorf("remove stale vectors: %w", err)
		}
	}

	docs := make([]store.IndexDoc, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		docs[i] = store.IndexDoc{ID: c.ID, Content: c.Content}
		ids[i] = c.ID
	}
	if err := e.lexical.Add(ctx, docs); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	if err := e.vector.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	return nil
}

// embedChunks embeds chunk texts in batches spread across the worker pool.
// Vectors are placed by batch offset, so vector/chunk alignment stays
// positional no matter which batch finishes first. The first failure
// cancels the remaining batches and aborts the ingest.
func (e *Engine) embedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	batch := e.config.EmbedBatchSize
	vectors := make([][]float32, len(texts))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for s := 0; s < len(texts); s += batch {
		ss, end := s, min(s+batch, len(texts))
		wg.Add(1)
		submitErr := e.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vecs, err := e.embedder.EmbedBatch(ctx, texts[ss:end])
			if err != nil {
				fail(err)
				return
			}
			if len(vecs) != end-ss {
				fail(fmt.Errorf("embedding batch returned %d vectors for %d texts", len(vecs), end-ss))
				return
			}
			copy(vectors[ss:end], vecs)
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding batch: %w", submitErr))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, fmt.Errorf("embed chunks: %w", firstErr)
	}
	return vectors, nil
}

// Retrieve answers one query: fan out both signals, fuse, diversify with
// MMR, and label the result quality. An empty or unindexed collection is a
// soft state, not an error: it returns an insufficient-quality empty set.
// Every other failure aborts the query with a typed error; results are
// complete or absent, never silently partial.
func (e *Engine) Retrieve(ctx context.Context, query string, opts RetrieveOptions) (*RetrievalResult, error) {
	start := time.Now()

	params, err := e.retrieveParams(opts)
	if err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, errEngineClosed
	}

	result := &RetrievalResult{Query: query, Results: []Result{}, Quality: QualityInsufficient}
	if query == "" || e.lexical.Count() == 0 {
		return result, nil
	}

	lex, sem, err := e.searchSignals(ctx, query, params.pool)
	if err != nil {
		return nil, err
	}

	fused := NewFuser(params.alpha).Fuse(lex, sem)
	if len(fused) == 0 {
		return result, nil
	}

	chunkByID, titles, err := e.loadCandidates(ctx, fused)
	if err != nil {
		return nil, err
	}
	fused = dropOrphans(fused, chunkByID)

	selected := NewSelector(params.lambda).Select(fused, params.k, e.similarityFunc(chunkByID))

	assessor := e.config.Quality
	assessor.MinScore = params.minScore
	result.Quality = assessor.Assess(selected)

	result.Results = make([]Result, len(selected))
	for i, f := range selected {
		chunk := chunkByID[f.ChunkID]
		result.Results[i] = Result{
			ChunkID:    f.ChunkID,
			DocumentID: chunk.DocumentID,
			Page:       chunk.Page,
			Text:       chunk.Content,
			Score:      roundScore(f.Score),
			LexScore:   roundScore(f.LexScore),
			SemScore:   roundScore(f.SemScore),
			Source:     f.Source,
			Citation:   e.citations.Build(chunk, titles[chunk.DocumentID], f.Score),
		}
	}

	slog.Debug("retrieve_complete",
		slog.Int("candidates", len(fused)),
		slog.Int("results", len(result.Results)),
		slog.String("quality", string(result.Quality)),
		slog.Duration("elapsed", time.Since(start)))

	return result, nil
}

type retrieveParams struct {
	k        int
	alpha    float64
	lambda   float64
	minScore float64
	pool     int
}

// retrieveParams resolves per-query overrides against the engine defaults.
func (e *Engine) retrieveParams(opts RetrieveOptions) (retrieveParams, error) {
	p := retrieveParams{
		k:        e.config.DefaultK,
		alpha:    e.config.Alpha,
		lambda:   e.config.Lambda,
		minScore: e.config.Quality.MinScore,
		pool:     e.config.CandidatePool,
	}
	if opts.K != 0 {
		if opts.K < 0 {
			return p, fmt.Errorf("k must be positive, got %d", opts.K)
		}
		p.k = opts.K
	}
	if opts.Alpha != 0 {
		if opts.Alpha < 0 || opts.Alpha > 1 {
			return p, fmt.Errorf("alpha must be within [0, 1], got %g", opts.Alpha)
		}
		p.alpha = opts.Alpha
	}
	if opts.Lambda != 0 {
		if opts.Lambda < 0 || opts.Lambda > 1 {
			return p, fmt.Errorf("lambda must be within [0, 1], got %g", opts.Lambda)
		}
		p.lambda = opts.Lambda
	}
	if opts.MinScore != 0 {
		if opts.MinScore < 0 || opts.MinScore > 1 {
			return p, fmt.Errorf("min score must be within [0, 1], got %g", opts.MinScore)
		}
		p.minScore = opts.MinScore
	}
	if opts.PoolSize != 0 {
		if opts.PoolSize < 0 {
			return p, fmt.Errorf("candidate pool must be positive, got %d", opts.PoolSize)
		}
		p.pool = opts.PoolSize
	}
	return p, nil
}

// searchSignals runs the lexical and semantic searches concurrently. A
// failure in either signal aborts the query; a single-signal ranking is
// never served in place of the full one.
func (e *Engine) searchSignals(ctx context.Context, query string, limit int) ([]store.LexicalResult, []store.VectorResult, error) {
	// The active provider must match the dimensionality the collection
	// was embedded with; anything else is a configuration error.
	if dims := e.vector.Dimensions(); dims != 0 && dims != e.embedder.Dimensions() {
		return nil, nil, fmt.Errorf("semantic search: %w",
			store.ErrDimensionMismatch{Expected: dims, Got: e.embedder.Dimensions()})
	}

	var (
		lex []store.LexicalResult
		sem []store.VectorResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := e.lexical.Search(gctx, query, limit)
		if err != nil {
			return fmt.Errorf("lexical search: %w", err)
		}
		lex = res
		return nil
	})
	g.Go(func() error {
		qvec, err := e.embedder.Embed(gctx, query)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		res, err := e.vector.Search(gctx, qvec, limit)
		if err != nil {
			return fmt.Errorf("semantic search: %w", err)
		}
		sem = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return lex, sem, nil
}

// loadCandidates fetches the chunk rows and document titles behind the
// fused candidates. A missing row means the index holds an orphan (a
// best-effort delete left it behind); the candidate is skipped here and
// dropped by the caller.
func (e *Engine) loadCandidates(ctx context.Context, fused []FusedResult) (map[string]*store.Chunk, map[string]string, error) {
	chunkByID := make(map[string]*store.Chunk, len(fused))
	for _, f := range fused {
		chunk, err := e.chunks.Chunk(ctx, f.ChunkID)
		if err != nil {
			if errors.Is(err, store.ErrChunkNotFound) {
				continue
			}
			return nil, nil, fmt.Errorf("load candidate %s: %w", f.ChunkID, err)
		}
		chunkByID[f.ChunkID] = chunk
	}

	docs, err := e.chunks.Documents(ctx)
	if err != nil {
		return nil, nil, err
	}
	titles := make(map[string]string, len(docs))
	for _, d := range docs {
		titles[d.ID] = d.Title
	}
	return chunkByID, titles, nil
}

// dropOrphans filters fused candidates down to those with a live chunk row.
func dropOrphans(fused []FusedResult, chunkByID map[string]*store.Chunk) []FusedResult {
	if len(chunkByID) == len(fused) {
		return fused
	}
	kept := make([]FusedResult, 0, len(chunkByID))
	for _, f := range fused {
		if _, ok := chunkByID[f.ChunkID]; ok {
			kept = append(kept, f)
		}
	}
	return kept
}

// similarityFunc builds the MMR similarity measure: cosine over the stored
// embeddings when both vectors are present, token-set Jaccard overlap as
// the fallback. Values are clamped to [0,1].
func (e *Engine) similarityFunc(chunkByID map[string]*store.Chunk) SimilarityFunc {
	tokenSets := make(map[string]map[string]struct{}, len(chunkByID))
	tokensOf := func(id string) map[string]struct{} {
		if s, ok := tokenSets[id]; ok {
			return s
		}
		var s map[string]struct{}
		if chunk, ok := chunkByID[id]; ok {
			s = store.TokenSet(chunk.Content)
		}
		tokenSets[id] = s
		return s
	}

	return func(a, b string) float64 {
		va, okA := e.vector.Vector(a)
		vb, okB := e.vector.Vector(b)
		if okA && okB {
			if c := store.Cosine(va, vb); c > 0 {
				return c
			}
			return 0
		}
		return jaccard(tokensOf(a), tokensOf(b))
	}
}

// jaccard is the token intersection size over the union size.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if _, ok := large[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// DeleteDocument removes a document's chunks from the store and both
// indexes. An unknown id returns ErrDocumentNotFound.
func (e *Engine) DeleteDocument(ctx context.Context, documentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errEngineClosed
	}

	ids, err := e.chunks.ChunkIDs(ctx, documentID)
	if err != nil {
		return err
	}
	if err := e.chunks.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	// The store row is gone, so index removal is best effort: orphans
	// never reach results (their chunk rows no longer load) and the next
	// open resyncs the indexes.
	if err := e.lexical.Remove(ctx, ids); err != nil {
		slog.Warn("lexical_remove_failed",
			slog.String("document", documentID), slog.String("error", err.Error()))
	}
	if err := e.vector.Remove(ctx, ids); err != nil {
		slog.Warn("vector_remove_failed",
			slog.String("document", documentID), slog.String("error", err.Error()))
	}

	slog.Info("document_deleted",
		slog.String("document", documentID),
		slog.Int("chunks", len(ids)))
	return nil
}

// Documents lists the collection's documents, oldest ingest first.
func (e *Engine) Documents(ctx context.Context) ([]*store.Document, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, errEngineClosed
	}
	return e.chunks.Documents(ctx)
}

// Stats summarizes the collection's contents.
func (e *Engine) Stats(ctx context.Context) (store.CollectionStats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return store.CollectionStats{}, errEngineClosed
	}
	return e.chunks.Stats(ctx)
}

// Close releases the worker pool and closes the indexes and chunk store.
// The embedder is shared across collections; its owner closes it.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.pool.Release()

	return errors.Join(
		e.lexical.Close(),
		e.vector.Close(),
		e.chunks.Close(),
	)
}
