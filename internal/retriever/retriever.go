package retriever

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"ragpipe/internal/domain"
	"ragpipe/internal/embedding"
	"ragpipe/internal/vectorstore"
)

// Strategy selects how query results are picked from the index.
type Strategy string

const (
	// StrategySimilarity returns the k nearest entries by cosine similarity.
	StrategySimilarity Strategy = "similarity"
	// StrategyMMR applies maximal marginal relevance: candidates are fetched
	// by similarity, then selected one at a time balancing relevance against
	// redundancy with what is already picked.
	StrategyMMR Strategy = "mmr"
)

// Options tunes retrieval breadth and diversity.
type Options struct {
	Strategy Strategy
	// K is the number of results returned.
	K int
	// FetchK is the candidate pool size for MMR; ignored for similarity.
	FetchK int
	// LambdaMult balances relevance (near 1) against diversity (near 0).
	LambdaMult float64
}

func (o *Options) applyDefaults() {
	if o.Strategy == "" {
		o.Strategy = StrategyMMR
	}
	if o.K <= 0 {
		o.K = 5
	}
	if o.FetchK < o.K {
		o.FetchK = 2 * o.K
	}
	// 0 is a valid setting: pure diversity.
	if o.LambdaMult < 0 || o.LambdaMult > 1 {
		o.LambdaMult = 0.7
	}
}

// Retriever embeds a query and selects a bounded, optionally
// diversity-aware subset of index entries.
type Retriever struct {
	store    vectorstore.Storage
	embedder embedding.Embedder
	opts     Options
	logger   *zap.Logger
}

func New(store vectorstore.Storage, embedder embedding.Embedder, opts Options, logger *zap.Logger) *Retriever {
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{store: store, embedder: embedder, opts: opts, logger: logger}
}

// Retrieve runs the configured selection strategy for one query.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embedding.ErrServiceUnavailable, err)
	}

	switch r.opts.Strategy {
	case StrategySimilarity:
		return r.similarity(ctx, vec)
	case StrategyMMR:
		return r.mmr(ctx, vec)
	default:
		return nil, fmt.Errorf("unknown retrieval strategy %q", r.opts.Strategy)
	}
}

func (r *Retriever) similarity(ctx context.Context, vec []float32) ([]domain.SearchResult, error) {
	candidates, err := r.store.Query(ctx, vec, r.opts.K)
	if err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = domain.SearchResult{Segment: c.Segment, Score: c.Score}
	}
	return results, nil
}

func (r *Retriever) mmr(ctx context.Context, vec []float32) ([]domain.SearchResult, error) {
	candidates, err := r.store.Query(ctx, vec, r.opts.FetchK)
	if err != nil {
		return nil, err
	}
	picked := maximalMarginalRelevance(vec, candidates, r.opts.K, r.opts.LambdaMult)

	r.logger.Debug("mmr selection",
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(picked)))

	results := make([]domain.SearchResult, len(picked))
	for i, c := range picked {
		results[i] = domain.SearchResult{Segment: c.Segment, Score: c.Score}
	}
	return results, nil
}

// maximalMarginalRelevance picks k candidates, at each step maximizing
//
//	lambda * relevance(query, c) - (1 - lambda) * maxSim(c, selected)
//
// Candidates arrive ranked by similarity; ties break toward the earlier
// rank, so lambda = 1 degenerates to the pure similarity order. Each
// candidate can be selected at most once.
func maximalMarginalRelevance(query []float32, candidates []vectorstore.Result, k int, lambda float64) []vectorstore.Result {
	if k > len(candidates) {
		k = len(candidates)
	}
	selected := make([]vectorstore.Result, 0, k)
	chosen := make([]bool, len(candidates))

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i, c := range candidates {
			if chosen[i] {
				continue
			}
			relevance := cosine(query, c.Vector)
			redundancy := 0.0
			for _, s := range selected {
				if sim := cosine(c.Vector, s.Vector); sim > redundancy {
					redundancy = sim
				}
			}
			score := lambda*relevance - (1-lambda)*redundancy
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best < 0 {
			break
		}
		chosen[best] = true
		selected = append(selected, candidates[best])
	}
	return selected
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
