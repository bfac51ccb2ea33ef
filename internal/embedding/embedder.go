package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrServiceUnavailable indicates the backing embedding service cannot be
// reached. Batch work must not begin once this is returned.
var ErrServiceUnavailable = errors.New("embedding service unavailable")

// Embedder converts free text into a fixed-length numeric vector by calling
// an external model service.
type Embedder interface {
	Model() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Verify performs a single canary embedding call so bulk work can fail fast
// with a descriptive error instead of dying mid-batch.
func Verify(ctx context.Context, e Embedder) error {
	if _, err := e.Embed(ctx, "connection test"); err != nil {
		return fmt.Errorf("%w (model %s): %v", ErrServiceUnavailable, e.Model(), err)
	}
	return nil
}
