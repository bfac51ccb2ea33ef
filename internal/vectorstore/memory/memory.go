package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"ragpipe/internal/vectorstore"
)

// Store is a non-persistent vector store using brute-force cosine
// similarity. It backs tests and dry runs where the embedded database on
// disk is unwanted.
type Store struct {
	mu      sync.RWMutex
	entries []vectorstore.Entry
	built   bool
}

func NewStore() *Store { return &Store{} }

// Replace swaps the whole collection for the given entries.
func (s *Store) Replace(ctx context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return vectorstore.ErrEmptyEntries
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]vectorstore.Entry(nil), entries...)
	s.built = true
	return nil
}

// Query returns the k entries with highest cosine similarity to the vector.
// Ties keep insertion order.
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]vectorstore.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.built {
		return nil, vectorstore.ErrCollectionNotFound
	}
	if k <= 0 {
		k = 5
	}

	results := make([]vectorstore.Result, len(s.entries))
	for i, e := range s.entries {
		results[i] = vectorstore.Result{
			Segment: e.Segment,
			Vector:  e.Vector,
			Score:   cosine(vector, e.Vector),
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
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
