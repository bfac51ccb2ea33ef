package chromem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/domain"
	"ragpipe/internal/vectorstore"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Path: t.TempDir(), Collection: "embed_chunks"}, nil)
	require.NoError(t, err)
	return s
}

func entries() []vectorstore.Entry {
	return []vectorstore.Entry{
		{
			Segment: domain.Segment{
				Text:        "Retrieval augmented generation grounds answers in evidence.",
				StartOffset: 0,
				Source:      "lecture.txt",
				Metadata: map[string]any{
					domain.MetaSource:     "lecture.txt",
					domain.MetaCategory:   domain.CategoryVideoTranscript,
					domain.MetaStartIndex: 0,
				},
			},
			Vector: []float32{1, 0, 0},
		},
		{
			Segment: domain.Segment{
				Text:        "Vector databases index embeddings for similarity search.",
				StartOffset: 50,
				Source:      "lecture.txt",
				Metadata: map[string]any{
					domain.MetaSource:     "lecture.txt",
					domain.MetaCategory:   domain.CategoryVideoTranscript,
					domain.MetaStartIndex: 50,
				},
			},
			Vector: []float32{0, 1, 0},
		},
	}
}

func TestQuery_MissingCollection(t *testing.T) {
	s := testStore(t)
	_, err := s.Query(context.Background(), []float32{1, 0, 0}, 3)
	require.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}

func TestReplaceAndQuery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, entries()))
	require.Equal(t, 2, s.Count())

	res, err := s.Query(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Segment.Text, "Retrieval augmented")
	assert.Equal(t, "lecture.txt", res[0].Segment.Source)
	assert.Equal(t, 0, res[0].Segment.StartOffset)
	assert.NotEmpty(t, res[0].Vector)
}

func TestReplace_IsRebuildNotAppend(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, entries()))
	require.NoError(t, s.Replace(ctx, entries()))

	// A second run with the same corpus must not double the collection.
	assert.Equal(t, 2, s.Count())
}

func TestQuery_CapsKAtCollectionSize(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, entries()))

	res, err := s.Query(ctx, []float32{0, 1, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestReplace_EmptyEntriesRejected(t *testing.T) {
	s := testStore(t)
	require.ErrorIs(t, s.Replace(context.Background(), nil), vectorstore.ErrEmptyEntries)
}

func TestPersistence_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(Config{Path: dir, Collection: "embed_chunks"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Replace(ctx, entries()))

	reopened, err := New(Config{Path: dir, Collection: "embed_chunks"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count())

	res, err := reopened.Query(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Segment.Text, "Vector databases")
}
