package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ragpipe/internal/domain"
)

// ErrServiceUnavailable indicates the generative model cannot be reached.
// The retrieved evidence is still returned so a retry can skip the index.
var ErrServiceUnavailable = errors.New("generation service unavailable")

// contextPlaceholder marks where the retrieved evidence goes inside the
// system prompt template.
const contextPlaceholder = "{context}"

// Generator produces a completion from a system prompt and a user query.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userQuery string) (string, error)
}

// Response carries the synthesized answer together with the segments used
// as evidence.
type Response struct {
	Answer   string
	Evidence []domain.SearchResult
}

// Synthesizer assembles retrieved segments into a bounded context block and
// drives a generative model to produce a grounded answer.
type Synthesizer struct {
	gen      Generator
	template string
	logger   *zap.Logger
}

func New(gen Generator, promptTemplate string, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{gen: gen, template: promptTemplate, logger: logger}
}

// Answer joins the retrieved segments in retrieval order, substitutes them
// into the system prompt template and invokes the model. On model failure
// the evidence is preserved in the returned Response.
func (s *Synthesizer) Answer(ctx context.Context, query string, evidence []domain.SearchResult) (Response, error) {
	resp := Response{Evidence: evidence}

	texts := make([]string, len(evidence))
	for i, e := range evidence {
		texts[i] = e.Segment.Text
	}
	system := strings.ReplaceAll(s.template, contextPlaceholder, strings.Join(texts, "\n\n"))

	answer, err := s.gen.Generate(ctx, system, query)
	if err != nil {
		return resp, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	resp.Answer = answer

	s.logger.Info("answer synthesized",
		zap.Int("evidence_segments", len(evidence)),
		zap.Int("answer_chars", len(answer)))
	return resp, nil
}
