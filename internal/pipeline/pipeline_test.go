package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/chunkstore"
	"ragpipe/internal/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/embedding"
	"ragpipe/internal/extract"
	"ragpipe/internal/splitter"
	"ragpipe/internal/synthesis"
	"ragpipe/internal/vectorstore/memory"
)

// fakeEmbedder makes deterministic vectors from trigger words so retrieval
// order in tests is predictable.
type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) Model() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int  { return 3 }
func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("connection refused")
	}
	vec := []float32{0.1, 0.1, 0.1}
	if strings.Contains(text, "gopher") {
		vec = []float32{1, 0, 0}
	}
	if strings.Contains(text, "ferret") {
		vec = []float32{0, 1, 0}
	}
	return vec, nil
}

type fakeGenerator struct {
	lastSystem string
	err        error
}

func (f *fakeGenerator) Generate(ctx context.Context, systemPrompt, userQuery string) (string, error) {
	f.lastSystem = systemPrompt
	if f.err != nil {
		return "", f.err
	}
	return "generated answer", nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, mediaPath string) (string, error) {
	return f.text, f.err
}

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{}
	cfg.Paths.PDFPattern = filepath.Join(dir, "sources", "*.pdf")
	cfg.Paths.VideoPattern = filepath.Join(dir, "sources", "*.mp4")
	cfg.Paths.TranscriptDir = filepath.Join(dir, "video_transcripts")
	cfg.Paths.ChunkedDir = filepath.Join(dir, "chunked")
	cfg.Paths.ChunksPattern = filepath.Join(dir, "chunked", "chunked_*.json")
	cfg.Paths.PersistDir = filepath.Join(dir, "embed_db")
	overlap := 20
	lambda := 0.7
	cfg.Chunking.Size = 100
	cfg.Chunking.Overlap = &overlap
	cfg.Retrieval.Strategy = "similarity"
	cfg.Retrieval.K = 2
	cfg.Retrieval.FetchK = 4
	cfg.Retrieval.LambdaMult = &lambda
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.AppConfig, emb *fakeEmbedder, gen *fakeGenerator) (*Pipeline, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	chunks := chunkstore.New(nil)
	split := splitter.NewRecursiveSplitter(cfg.Chunking.Size, *cfg.Chunking.Overlap, nil, nil)
	synth := synthesis.New(gen, config.DefaultSystemPrompt, nil)
	p := New(cfg, split, chunks, extract.NewPDFExtractor(chunks, nil),
		&fakeTranscriber{text: "unused"}, emb, store, synth, nil)
	return p, store
}

func writeTranscript(t *testing.T, cfg *config.AppConfig, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(cfg.Paths.TranscriptDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.TranscriptDir, name), []byte(content), 0o644))
}

func TestFirstRunBeforeAnyBuild(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, &fakeEmbedder{}, &fakeGenerator{})
	assert.True(t, p.FirstRun())
}

func TestFirstRunFalseWhenArtifactsExist(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, &fakeEmbedder{}, &fakeGenerator{})

	require.NoError(t, os.MkdirAll(cfg.Paths.PersistDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.PersistDir, "col"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(cfg.Paths.ChunkedDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.ChunkedDir, "chunked_a.json"), []byte("[]"), 0o644))

	assert.False(t, p.FirstRun())
}

func TestFirstRunTrueWhenOnlyIndexExists(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, &fakeEmbedder{}, &fakeGenerator{})

	require.NoError(t, os.MkdirAll(cfg.Paths.PersistDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.PersistDir, "col"), []byte("x"), 0o644))

	assert.True(t, p.FirstRun())
}

func TestChunkTranscriptsWritesChunkFile(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, &fakeEmbedder{}, &fakeGenerator{})

	writeTranscript(t, cfg, "lecture_transcript.txt",
		strings.Repeat("the gopher digs tunnels all day long. ", 10))

	require.NoError(t, p.ChunkTranscripts())

	matches, err := filepath.Glob(cfg.Paths.ChunksPattern)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	segments, err := chunkstore.New(nil).Load(cfg.Paths.ChunksPattern)
	require.NoError(t, err)
	assert.NotEmpty(t, segments)
	for _, seg := range segments {
		assert.Equal(t, "lecture_transcript.txt", seg.Source)
		assert.Equal(t, domain.CategoryVideoTranscript, seg.Metadata[domain.MetaCategory])
	}
}

func TestChunkTranscriptsSkipsEmptyFiles(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, &fakeEmbedder{}, &fakeGenerator{})

	writeTranscript(t, cfg, "empty_transcript.txt", "   \n  ")
	writeTranscript(t, cfg, "real_transcript.txt", "the ferret sleeps in a hammock.")

	require.NoError(t, p.ChunkTranscripts())

	segments, err := chunkstore.New(nil).Load(cfg.Paths.ChunksPattern)
	require.NoError(t, err)
	for _, seg := range segments {
		assert.Equal(t, "real_transcript.txt", seg.Source)
	}
}

func TestBuildIndexEmbedsAllSegments(t *testing.T) {
	cfg := testConfig(t)
	p, store := newTestPipeline(t, cfg, &fakeEmbedder{}, &fakeGenerator{})

	writeTranscript(t, cfg, "animals_transcript.txt",
		"the gopher digs tunnels.\n\nthe ferret sleeps in a hammock.")
	require.NoError(t, p.ChunkTranscripts())

	require.NoError(t, p.BuildIndex(context.Background()))
	assert.Equal(t, 2, store.Count())
}

func TestBuildIndexFailsFastOnCanary(t *testing.T) {
	cfg := testConfig(t)
	p, store := newTestPipeline(t, cfg, &fakeEmbedder{fail: true}, &fakeGenerator{})

	writeTranscript(t, cfg, "animals_transcript.txt", "the gopher digs tunnels.")
	require.NoError(t, p.ChunkTranscripts())

	err := p.BuildIndex(context.Background())
	require.ErrorIs(t, err, embedding.ErrServiceUnavailable)
	assert.Equal(t, 0, store.Count())
}

func TestBuildIndexWithoutChunks(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, &fakeEmbedder{}, &fakeGenerator{})

	err := p.BuildIndex(context.Background())
	require.ErrorIs(t, err, chunkstore.ErrNoChunkFiles)
}

func TestQueryEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGenerator{}
	p, _ := newTestPipeline(t, cfg, &fakeEmbedder{}, gen)

	writeTranscript(t, cfg, "animals_transcript.txt",
		"the gopher digs tunnels.\n\nthe ferret sleeps in a hammock.")
	require.NoError(t, p.ChunkTranscripts())
	require.NoError(t, p.BuildIndex(context.Background()))

	resp, err := p.Query(context.Background(), "what does the gopher do")
	require.NoError(t, err)
	assert.Equal(t, "generated answer", resp.Answer)
	require.NotEmpty(t, resp.Evidence)
	assert.Contains(t, resp.Evidence[0].Segment.Text, "gopher")
	assert.Contains(t, gen.lastSystem, "gopher")
}

func TestQueryBeforeBuildReportsMissingIndex(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, &fakeEmbedder{}, &fakeGenerator{})

	_, err := p.Query(context.Background(), "anything")
	require.Error(t, err)
}
