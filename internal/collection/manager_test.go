package collection

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyrag/studyrag/internal/config"
	"github.com/studyrag/studyrag/internal/embed"
	"github.com/studyrag/studyrag/internal/search"
	"github.com/studyrag/studyrag/internal/store"
)

const (
	enzymeText  = "Enzymes lower the activation energy of biochemical reactions. The active site binds substrates with high specificity. Temperature and pH shift the reaction rate."
	osmosisText = "Osmosis moves water across a semipermeable membrane toward higher solute concentration. Cells regulate osmotic pressure to avoid lysis."
)

func staticConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "static"
	return cfg
}

func newTestManager(t *testing.T, dataDir string) *Manager {
	t.Helper()
	m, err := NewManager(dataDir, staticConfig(), embed.NewStaticEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func ingestDoc(t *testing.T, m *Manager, key Key, id, title, text string) {
	t.Helper()
	_, err := m.Ingest(context.Background(), key, search.IngestRequest{
		DocumentID: id,
		Title:      title,
		Pages:      []string{text},
	})
	require.NoError(t, err)
}

// gateEmbedder wraps the static embedder and parks the first ModelName
// call until released, standing in for a slow engine construction.
type gateEmbedder struct {
	embed.Embedder
	entered  chan struct{}
	released chan struct{}
	once     sync.Once
}

func newGateEmbedder() *gateEmbedder {
	return &gateEmbedder{
		Embedder: embed.NewStaticEmbedder(),
		entered:  make(chan struct{}),
		released: make(chan struct{}),
	}
}

func (g *gateEmbedder) ModelName() string {
	g.once.Do(func() {
		close(g.entered)
		<-g.released
	})
	return g.Embedder.ModelName()
}

func TestNewManager_Validation(t *testing.T) {
	cfg := staticConfig()
	embedder := embed.NewStaticEmbedder()

	_, err := NewManager("", cfg, embedder)
	assert.ErrorContains(t, err, "data directory")
	_, err = NewManager(t.TempDir(), nil, embedder)
	assert.ErrorContains(t, err, "configuration")
	_, err = NewManager(t.TempDir(), cfg, nil)
	assert.ErrorContains(t, err, "embedder")
}

func TestManager_OpenCachesHandle(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, t.TempDir())
	key := Key{UserID: "alice", CourseID: "bio101"}

	first, err := m.Open(ctx, key)
	require.NoError(t, err)
	second, err := m.Open(ctx, key)
	require.NoError(t, err)
	assert.Same(t, first, second)

	assert.DirExists(t, m.Dir(key))
	assert.Equal(t, key, first.Key)
}

func TestManager_ConcurrentOpensShareOneHandle(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, t.TempDir())
	key := Key{UserID: "alice", CourseID: "bio101"}

	const openers = 8
	var (
		wg      sync.WaitGroup
		handles [openers]*Collection
		errs    [openers]error
	)
	for i := 0; i < openers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = m.Open(ctx, key)
		}(i)
	}
	wg.Wait()

	for i := 0; i < openers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, handles[0], handles[i])
	}
}

func TestManager_SlowOpenDoesNotBlockOtherCollections(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	slow := Key{UserID: "alice", CourseID: "bio101"}
	fast := Key{UserID: "alice", CourseID: "chem201"}

	m1 := newTestManager(t, dataDir)
	ingestDoc(t, m1, slow, "enzymes", "Enzyme Kinetics", enzymeText)
	require.NoError(t, m1.Close())

	// Reopening the ingested collection reads the stored model name; the
	// gate parks that open mid-construction.
	gate := newGateEmbedder()
	m2, err := NewManager(dataDir, staticConfig(), gate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m2.Close() })

	opened := make(chan error, 1)
	go func() {
		_, openErr := m2.Open(ctx, slow)
		opened <- openErr
	}()
	<-gate.entered

	// A different collection opens while the first is still in flight.
	_, err = m2.Open(ctx, fast)
	require.NoError(t, err)

	close(gate.released)
	require.NoError(t, <-opened)
}

func TestManager_RejectsInvalidKey(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, t.TempDir())

	_, err := m.Open(ctx, Key{CourseID: "bio101"})
	assert.ErrorContains(t, err, "user id")
	_, err = m.Retrieve(ctx, Key{UserID: "alice"}, "query", search.RetrieveOptions{})
	assert.ErrorContains(t, err, "course id")
}

func TestManager_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, t.TempDir())

	bio := Key{UserID: "alice", CourseID: "bio101"}
	chem := Key{UserID: "alice", CourseID: "chem201"}
	bobBio := Key{UserID: "bob", CourseID: "bio101"}

	ingestDoc(t, m, bio, "enzymes", "Enzyme Kinetics", enzymeText)

	// The ingesting collection finds the document.
	result, err := m.Retrieve(ctx, bio, "enzyme activation energy", search.RetrieveOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Results)
	assert.Equal(t, "enzymes", result.Results[0].DocumentID)

	// Same user, different course: nothing.
	result, err = m.Retrieve(ctx, chem, "enzyme activation energy", search.RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.Equal(t, search.QualityInsufficient, result.Quality)

	// Different user, same course id: nothing.
	result, err = m.Retrieve(ctx, bobBio, "enzyme activation energy", search.RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Results)
}

func TestManager_DocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, t.TempDir())
	key := Key{UserID: "alice", CourseID: "bio101"}

	ingestDoc(t, m, key, "enzymes", "Enzyme Kinetics", enzymeText)
	ingestDoc(t, m, key, "osmosis", "Osmosis Notes", osmosisText)

	docs, err := m.Documents(ctx, key)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	stats, err := m.Stats(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.ElementsMatch(t, []string{"enzymes", "osmosis"}, stats.DocumentIDs)

	require.NoError(t, m.DeleteDocument(ctx, key, "enzymes"))
	docs, err = m.Documents(ctx, key)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "osmosis", docs[0].ID)

	assert.ErrorIs(t, m.DeleteDocument(ctx, key, "enzymes"), store.ErrDocumentNotFound)
}

func TestManager_DeleteCollection(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, t.TempDir())
	key := Key{UserID: "alice", CourseID: "bio101"}

	ingestDoc(t, m, key, "enzymes", "Enzyme Kinetics", enzymeText)
	dir := m.Dir(key)
	require.DirExists(t, dir)

	require.NoError(t, m.DeleteCollection(ctx, key))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	// A later query sees an empty collection, not an error.
	result, err := m.Retrieve(ctx, key, "enzyme activation energy", search.RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.Equal(t, search.QualityInsufficient, result.Quality)

	// Deleting a collection that does not exist is a no-op.
	require.NoError(t, m.DeleteCollection(ctx, Key{UserID: "ghost", CourseID: "none"}))
}

func TestManager_MetadataWithoutOpenHandle(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	key := Key{UserID: "alice", CourseID: "bio101"}

	m1 := newTestManager(t, dataDir)
	ingestDoc(t, m1, key, "enzymes", "Enzyme Kinetics", enzymeText)
	ingestDoc(t, m1, key, "osmosis", "Osmosis Notes", osmosisText)
	require.NoError(t, m1.Close())

	// A fresh manager reads metadata straight from the chunk store, without
	// opening the engine.
	m2 := newTestManager(t, dataDir)
	docs, err := m2.Documents(ctx, key)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	stats, err := m2.Stats(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.NotZero(t, stats.Dimensions)
	assert.NotEmpty(t, stats.EmbeddingModel)

	require.NoError(t, m2.DeleteDocument(ctx, key, "enzymes"))

	// The next open resyncs the indexes from the store, so the deleted
	// document stays gone.
	result, err := m2.Retrieve(ctx, key, "enzyme activation energy", search.RetrieveOptions{})
	require.NoError(t, err)
	for _, r := range result.Results {
		assert.NotEqual(t, "enzymes", r.DocumentID)
	}
}

func TestManager_MetadataOnMissingCollection(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, t.TempDir())
	key := Key{UserID: "ghost", CourseID: "none"}

	docs, err := m.Documents(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, docs)

	stats, err := m.Stats(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalDocuments)

	assert.ErrorIs(t, m.DeleteDocument(ctx, key, "nope"), store.ErrDocumentNotFound)

	// Metadata reads never create the collection directory.
	assert.NoDirExists(t, m.Dir(key))
}

func TestManager_SecondProcessIsLockedOut(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	key := Key{UserID: "alice", CourseID: "bio101"}

	m1 := newTestManager(t, dataDir)
	_, err := m1.Open(ctx, key)
	require.NoError(t, err)

	// A second manager over the same data directory stands in for a second
	// process; flock conflicts are per file handle, not per process.
	m2 := newTestManager(t, dataDir)
	_, err = m2.Open(ctx, key)
	assert.ErrorIs(t, err, store.ErrCollectionLocked)

	// Read-only metadata stays reachable while the lock is held.
	_, err = m2.Documents(ctx, key)
	assert.NoError(t, err)

	// Other collections stay reachable.
	other := Key{UserID: "alice", CourseID: "chem201"}
	_, err = m2.Open(ctx, other)
	assert.NoError(t, err)

	// Closing the first manager frees the collection.
	require.NoError(t, m1.Close())
	_, err = m2.Open(ctx, key)
	assert.NoError(t, err)
}

func TestManager_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	key := Key{UserID: "alice", CourseID: "bio101"}

	m1 := newTestManager(t, dataDir)
	ingestDoc(t, m1, key, "enzymes", "Enzyme Kinetics", enzymeText)
	before, err := m1.Retrieve(ctx, key, "activation energy", search.RetrieveOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, before.Results)
	require.NoError(t, m1.Close())

	m2 := newTestManager(t, dataDir)
	after, err := m2.Retrieve(ctx, key, "activation energy", search.RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestManager_ClosedRejectsOperations(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, t.TempDir())
	key := Key{UserID: "alice", CourseID: "bio101"}

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Open(ctx, key)
	assert.ErrorContains(t, err, "closed")
	_, err = m.Retrieve(ctx, key, "query", search.RetrieveOptions{})
	assert.ErrorContains(t, err, "closed")
	assert.ErrorContains(t, m.DeleteCollection(ctx, key), "closed")
}
