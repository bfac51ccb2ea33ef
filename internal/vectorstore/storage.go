package vectorstore

import (
	"context"
	"errors"
	"strconv"

	"ragpipe/internal/domain"
)

var (
	// ErrCollectionNotFound is returned when querying a collection that does
	// not exist; the build pipeline has to run first.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrEmptyEntries indicates a rebuild with nothing to store.
	ErrEmptyEntries = errors.New("no entries to store")
)

// Entry pairs a segment with its embedding vector for insertion.
type Entry struct {
	ID      string
	Segment domain.Segment
	Vector  []float32
}

// Result is one nearest-neighbour match. The stored vector is included so
// diversity-aware selection can compare candidates against each other.
type Result struct {
	Segment domain.Segment
	Vector  []float32
	Score   float64
}

// Storage persists embedding records in a named collection and answers
// nearest-neighbour queries. Implementations are bound to one collection.
//
// Replace drops any existing collection contents before inserting, so
// repeated pipeline runs never accumulate ghost entries. Callers running
// concurrent rebuilds must serialize them externally per collection.
type Storage interface {
	Replace(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, vector []float32, k int) ([]Result, error)
	Count() int
}

// MetadataToString flattens segment metadata to the string-valued mapping
// persisted alongside each vector.
func MetadataToString(md map[string]any) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		switch t := v.(type) {
		case string:
			out[k] = t
		case int:
			out[k] = strconv.Itoa(t)
		case int64:
			out[k] = strconv.FormatInt(t, 10)
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		default:
			// Unknown scalar kinds are dropped rather than stringified blindly.
		}
	}
	return out
}

// MetadataFromString restores numeric-looking values so round-tripped
// metadata compares equal at the chunk store boundary.
func MetadataFromString(md map[string]string) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		if n, err := strconv.Atoi(v); err == nil {
			out[k] = n
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
			continue
		}
		if b, err := strconv.ParseBool(v); err == nil {
			out[k] = b
			continue
		}
		out[k] = v
	}
	return out
}
