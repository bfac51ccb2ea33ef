package chromem

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"

	chromemgo "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"ragpipe/internal/domain"
	"ragpipe/internal/vectorstore"
)

// Config locates one persistent collection on disk.
type Config struct {
	Path       string
	Collection string
	Compress   bool
}

// Store is a persistent vector store backed by chromem-go: an embeddable
// pure-Go vector database that persists each collection under a directory.
// Embeddings are computed upstream, so the store never calls a model itself.
type Store struct {
	db     *chromemgo.DB
	cfg    Config
	logger *zap.Logger
}

// New opens (or creates) the persistent database under cfg.Path. The
// collection itself is created lazily by Replace; Query against a collection
// that was never built returns ErrCollectionNotFound.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("persist path required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("collection name required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating persist dir %s: %w", cfg.Path, err)
	}
	db, err := chromemgo.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening vector db at %s: %w", cfg.Path, err)
	}
	logger.Info("vector store opened",
		zap.String("path", cfg.Path),
		zap.String("collection", cfg.Collection))
	return &Store{db: db, cfg: cfg, logger: logger}, nil
}

// noEmbed guards against accidental in-store embedding: vectors always come
// from the pipeline's embedder.
func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embeddings are computed by the pipeline, not the store")
}

// Replace rebuilds the collection from scratch: an existing collection with
// the same name is deleted first so repeated runs cannot accumulate
// duplicate entries.
func (s *Store) Replace(ctx context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return vectorstore.ErrEmptyEntries
	}
	if err := s.db.DeleteCollection(s.cfg.Collection); err != nil {
		return fmt.Errorf("dropping collection %s: %w", s.cfg.Collection, err)
	}
	col, err := s.db.GetOrCreateCollection(s.cfg.Collection, nil, noEmbed)
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.cfg.Collection, err)
	}

	docs := make([]chromemgo.Document, len(entries))
	for i, e := range entries {
		id := e.ID
		if id == "" {
			id = entryID(e.Segment, i)
		}
		md := vectorstore.MetadataToString(e.Segment.Metadata)
		md[domain.MetaSource] = e.Segment.Source
		md[domain.MetaStartIndex] = strconv.Itoa(e.Segment.StartOffset)
		docs[i] = chromemgo.Document{
			ID:        id,
			Content:   e.Segment.Text,
			Metadata:  md,
			Embedding: e.Vector,
		}
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents to %s: %w", s.cfg.Collection, err)
	}

	s.logger.Info("collection rebuilt",
		zap.String("collection", s.cfg.Collection),
		zap.Int("entries", len(entries)))
	return nil
}

// Query returns the k entries nearest to the given vector, highest cosine
// similarity first.
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]vectorstore.Result, error) {
	col := s.db.GetCollection(s.cfg.Collection, noEmbed)
	if col == nil {
		return nil, fmt.Errorf("%w: %s under %s (run the build pipeline first)",
			vectorstore.ErrCollectionNotFound, s.cfg.Collection, s.cfg.Path)
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 5
	}
	if k > count {
		k = count
	}

	results, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.cfg.Collection, err)
	}

	out := make([]vectorstore.Result, len(results))
	for i, r := range results {
		out[i] = vectorstore.Result{
			Segment: segmentFromResult(r),
			Vector:  r.Embedding,
			Score:   float64(r.Similarity),
		}
	}
	return out, nil
}

// Count reports the number of entries in the collection, zero if it does
// not exist yet.
func (s *Store) Count() int {
	col := s.db.GetCollection(s.cfg.Collection, noEmbed)
	if col == nil {
		return 0
	}
	return col.Count()
}

func segmentFromResult(r chromemgo.Result) domain.Segment {
	md := vectorstore.MetadataFromString(r.Metadata)
	seg := domain.Segment{
		Text:     r.Content,
		Metadata: md,
	}
	if src, ok := md[domain.MetaSource].(string); ok {
		seg.Source = src
	}
	if start, ok := md[domain.MetaStartIndex].(int); ok {
		seg.StartOffset = start
	}
	return seg
}

func entryID(seg domain.Segment, i int) string {
	h := sha1.Sum([]byte(fmt.Sprintf("%s:%d:%d", seg.Source, seg.StartOffset, i)))
	return hex.EncodeToString(h[:8])
}
