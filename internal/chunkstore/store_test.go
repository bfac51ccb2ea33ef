package chunkstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ragpipe/internal/domain"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := New(nil)

	segments := []domain.Segment{
		{
			Text:        "First chunk of transcript text.",
			StartOffset: 0,
			Source:      "lecture.txt",
			Metadata: map[string]any{
				domain.MetaSource:     "lecture.txt",
				domain.MetaCategory:   domain.CategoryVideoTranscript,
				domain.MetaStartIndex: 0,
			},
		},
		{
			Text:        "Second chunk of transcript text.",
			StartOffset: 25,
			Source:      "lecture.txt",
			Metadata: map[string]any{
				domain.MetaSource:     "lecture.txt",
				domain.MetaCategory:   domain.CategoryVideoTranscript,
				domain.MetaStartIndex: 25,
			},
		},
	}

	path := filepath.Join(dir, "chunked_transcripts.json")
	require.NoError(t, store.SaveSegments(path, segments))

	loaded, err := store.Load(filepath.Join(dir, "chunked_*.json"))
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	for i, seg := range loaded {
		assert.Equal(t, segments[i].Text, seg.Text)
		assert.Equal(t, segments[i].StartOffset, seg.StartOffset)
		assert.Equal(t, "lecture.txt", seg.Source)
		assert.Equal(t, domain.CategoryVideoTranscript, seg.Metadata[domain.MetaCategory])
	}
}

func TestLoad_EnrichesMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunked_x.json")
	content := `[{"page_content": "hello world", "metadata": {"source": "x.txt"}}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loaded, err := New(nil).Load(filepath.Join(dir, "chunked_*.json"))
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	md := loaded[0].Metadata
	assert.Equal(t, "chunked_x.json", md[domain.MetaSourceFile])
	assert.Equal(t, path, md[domain.MetaSourcePath])
	assert.Equal(t, len("hello world"), md[domain.MetaOriginalLength])
}

func TestLoad_NoMatchesReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := New(nil).Load(filepath.Join(dir, "chunked_*.json"))
	require.ErrorIs(t, err, ErrNoChunkFiles)
}

func TestLoad_MissingMetadataKeySkipsRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunked_a.json")
	content := `[{"page_content": "hi"}, {"page_content": "ok", "metadata": {}}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loaded, err := New(nil).Load(filepath.Join(dir, "chunked_*.json"))
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "ok", loaded[0].Text)
}

func TestLoad_AllInvalidReturnsEmptyCorpus(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunked_a.json"),
		[]byte(`[{"page_content": "hi"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunked_b.json"),
		[]byte(`[]`), 0o644))

	_, err := New(nil).Load(filepath.Join(dir, "chunked_*.json"))
	require.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestLoad_MalformedFileSkippedNotFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunked_bad.json"),
		[]byte(`{not json`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunked_good.json"),
		[]byte(`[{"page_content": "good", "metadata": {}}]`), 0o644))

	loaded, err := New(nil).Load(filepath.Join(dir, "chunked_*.json"))
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "good", loaded[0].Text)
}

func TestLoad_EmptyArrayFileCountedAsSkipped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunked_empty.json"),
		[]byte(`[]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunked_good.json"),
		[]byte(`[{"page_content": "good", "metadata": {}}]`), 0o644))

	core, logs := observer.New(zap.InfoLevel)
	loaded, err := New(zap.New(core)).Load(filepath.Join(dir, "chunked_*.json"))
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	entries := logs.FilterMessage("chunk corpus loaded").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(1), fields["skipped_files"])
	assert.Equal(t, int64(0), fields["skipped_records"])
}

func TestSaveRecords_AtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunked_t.json")
	records := []Record{{PageContent: "text", Metadata: map[string]any{"source": "t"}}}
	require.NoError(t, New(nil).SaveRecords(path, records))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "chunked_t.json", entries[0].Name())
	assert.False(t, strings.Contains(entries[0].Name(), ".tmp-"))
}
