package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Meta table keys.
const (
	metaKeyDimensions    = "embedding_dimensions"
	metaKeyModel         = "embedding_model"
	metaKeySchemaVersion = "schema_version"
)

// chunkSchemaVersion is the current chunks.db schema version.
const chunkSchemaVersion = 1

// ChunkStoreFilename is the chunk database file inside a collection
// directory.
const ChunkStoreFilename = "chunks.db"

// ChunkStorePath returns the chunk database path for a collection
// directory.
func ChunkStorePath(dir string) string {
	return filepath.Join(dir, ChunkStoreFilename)
}

// ChunkStore persists a collection's documents, chunks, and embeddings in
// SQLite. It is the durable source of truth; the lexical and vector
// indexes are derived from it. Unlike the indexes, a corrupted chunks.db
// is never auto-cleared: it holds the only copy of the ingested text.
type ChunkStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// OpenChunkStore opens (or creates) the chunk database at path.
// If path is empty, an in-memory database is used.
func OpenChunkStore(path string) (*ChunkStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := validateChunkStoreIntegrity(path); err != nil {
			return nil, fmt.Errorf("chunk store at %s is damaged: %w", path, err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: writes are serialized by the engine, and SQLite
	// lock contention between pooled connections would only add noise.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite; DSN params
	// alone are not honored.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &ChunkStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// validateChunkStoreIntegrity checks an existing database before opening.
// Returns nil when the file does not exist yet.
func validateChunkStoreIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check reported: %s", result)
	}
	return nil
}

func (s *ChunkStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		pages INTEGER NOT NULL,
		chunk_count INTEGER NOT NULL,
		ingested_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		page INTEGER NOT NULL,
		content TEXT NOT NULL,
		char_count INTEGER NOT NULL,
		embedding BLOB
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)`,
		metaKeySchemaVersion, strconv.Itoa(chunkSchemaVersion),
	)
	return err
}

// SaveDocument stores a document with its chunks and embeddings in one
// transaction, replacing any previous rows for the same document id. A
// reader never sees a mix of old and new chunks.
func (s *ChunkStore) SaveDocument(ctx context.Context, doc *Document, chunks []*Chunk, vectors [][]float32) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("cannot save document with empty id")
	}
	if len(chunks) == 0 {
		return ErrEmptyDocument
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear old chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear old document: %w", err)
	}

	ingestedAt := doc.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, title, pages, chunk_count, ingested_at) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Pages, len(chunks), ingestedAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, idx, page, content, char_count, embedding) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		if chunk.DocumentID != doc.ID {
			return fmt.Errorf("chunk %s belongs to document %s, not %s", chunk.ID, chunk.DocumentID, doc.ID)
		}
		_, err := stmt.ExecContext(ctx,
			chunk.ID, chunk.DocumentID, chunk.Index, chunk.Page,
			chunk.Content, chunk.CharCount, encodeVector(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	doc.ChunkCount = len(chunks)
	doc.IngestedAt = ingestedAt
	return nil
}

// DeleteDocument removes a document and its chunks.
func (s *ChunkStore) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE id = ?`, documentID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up document: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	return tx.Commit()
}

// Document returns a document's metadata.
func (s *ChunkStore) Document(ctx context.Context, documentID string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, pages, chunk_count, ingested_at FROM documents WHERE id = ?`, documentID)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return doc, nil
}

// Documents lists all documents, oldest ingest first.
func (s *ChunkStore) Documents(ctx context.Context) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, pages, chunk_count, ingested_at FROM documents ORDER BY ingested_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Chunk returns a single chunk by id, without its embedding.
func (s *ChunkStore) Chunk(ctx context.Context, chunkID string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, idx, page, content, char_count FROM chunks WHERE id = ?`, chunkID)

	var c Chunk
	err := row.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Page, &c.Content, &c.CharCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, chunkID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk: %w", err)
	}
	return &c, nil
}

// Chunks returns a document's chunks in position order, without embeddings.
func (s *ChunkStore) Chunks(ctx context.Context, documentID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, idx, page, content, char_count FROM chunks WHERE document_id = ? ORDER BY idx`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Page, &c.Content, &c.CharCount); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// ChunkIDs returns a document's chunk ids in position order.
func (s *ChunkStore) ChunkIDs(ctx context.Context, documentID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE document_id = ? ORDER BY idx`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllChunks returns every chunk with its embedding, ordered by document id
// and position. Index rebuilds iterate this, so the order also fixes the
// insertion-order tie break of the exact vector backend.
func (s *ChunkStore) AllChunks(ctx context.Context) ([]*Chunk, [][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, idx, page, content, char_count, embedding FROM chunks ORDER BY document_id, idx`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	var vectors [][]float32
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Page, &c.Content, &c.CharCount, &blob); err != nil {
			return nil, nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode embedding for chunk %s: %w", c.ID, err)
		}
		chunks = append(chunks, &c)
		vectors = append(vectors, vec)
	}
	return chunks, vectors, rows.Err()
}

// Stats summarizes the collection's contents.
func (s *ChunkStore) Stats(ctx context.Context) (CollectionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats CollectionStats
	if s.closed {
		return stats, fmt.Errorf("store is closed")
	}

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.TotalDocuments)
	if err != nil {
		return stats, fmt.Errorf("failed to count documents: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&stats.TotalChunks)
	if err != nil {
		return stats, fmt.Errorf("failed to count chunks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents ORDER BY ingested_at, id`)
	if err != nil {
		return stats, fmt.Errorf("failed to list document ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return stats, fmt.Errorf("failed to scan document id: %w", err)
		}
		stats.DocumentIDs = append(stats.DocumentIDs, id)
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if value, ok, err := s.metaLocked(ctx, metaKeyModel); err != nil {
		return stats, err
	} else if ok {
		stats.EmbeddingModel = value
	}
	if value, ok, err := s.metaLocked(ctx, metaKeyDimensions); err != nil {
		return stats, err
	} else if ok {
		dims, err := strconv.Atoi(value)
		if err != nil {
			return stats, fmt.Errorf("invalid stored dimensions %q: %w", value, err)
		}
		stats.Dimensions = dims
	}
	return stats, nil
}

// Dimensions returns the pinned embedding dimensionality, 0 when nothing
// was ingested yet.
func (s *ChunkStore) Dimensions(ctx context.Context) (int, error) {
	value, ok, err := s.getMeta(ctx, metaKeyDimensions)
	if err != nil || !ok {
		return 0, err
	}
	dims, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid stored dimensions %q: %w", value, err)
	}
	return dims, nil
}

// SetDimensions pins the embedding dimensionality. The first writer wins;
// later disagreement is ErrDimensionMismatch.
func (s *ChunkStore) SetDimensions(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("dimensions must be positive, got %d", dims)
	}
	existing, err := s.Dimensions(ctx)
	if err != nil {
		return err
	}
	if existing != 0 && existing != dims {
		return ErrDimensionMismatch{Expected: existing, Got: dims}
	}
	return s.setMeta(ctx, metaKeyDimensions, strconv.Itoa(dims))
}

// Model returns the embedding model the collection was indexed with.
func (s *ChunkStore) Model(ctx context.Context) (string, error) {
	value, _, err := s.getMeta(ctx, metaKeyModel)
	return value, err
}

// SetModel records the embedding model name.
func (s *ChunkStore) SetModel(ctx context.Context, model string) error {
	return s.setMeta(ctx, metaKeyModel, model)
}

func (s *ChunkStore) getMeta(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, fmt.Errorf("store is closed")
	}
	return s.metaLocked(ctx, key)
}

// metaLocked reads a meta row. Callers hold s.mu.
func (s *ChunkStore) metaLocked(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read meta %s: %w", key, err)
	}
	return value, true, nil
}

func (s *ChunkStore) setMeta(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write meta %s: %w", key, err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *ChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var doc Document
	var ingestedAt int64
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Pages, &doc.ChunkCount, &ingestedAt); err != nil {
		return nil, err
	}
	doc.IngestedAt = time.Unix(ingestedAt, 0).UTC()
	return &doc, nil
}

// encodeVector packs a vector as little-endian float32s.
func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks a little-endian float32 blob. A nil or empty blob
// decodes to a nil vector.
func decodeVector(buf []byte) ([]float32, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
