package splitter

import (
	"strings"

	"go.uber.org/zap"

	"ragpipe/internal/domain"
)

// DefaultSeparators is the separator hierarchy tried coarsest-first:
// paragraph break, line break, sentence boundary, word boundary, and
// finally individual characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// RecursiveSplitter splits document text into bounded, overlapping segments.
// It prefers the coarsest separator that yields pieces within the size
// target and recurses with finer separators on oversized pieces. The size
// bound is soft: a single piece with no finer separator left may exceed it.
type RecursiveSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
	logger       *zap.Logger
}

func NewRecursiveSplitter(chunkSize, chunkOverlap int, separators []string, logger *zap.Logger) *RecursiveSplitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecursiveSplitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   separators,
		logger:       logger,
	}
}

// Split chunks every document in order. Empty documents produce no segments
// and are logged as skipped.
func (s *RecursiveSplitter) Split(documents []domain.Document) []domain.Segment {
	var segments []domain.Segment
	for _, doc := range documents {
		segs := s.SplitDocument(doc)
		if len(segs) == 0 {
			s.logger.Warn("document produced no segments, skipping",
				zap.String("source", doc.Source))
			continue
		}
		segments = append(segments, segs...)
	}
	return segments
}

// SplitDocument chunks a single document and resolves each chunk's start
// offset by scanning the original content. Offsets are found by search
// rather than length arithmetic because separators may be stripped from
// chunk boundaries. The search begins at the earliest position the chunk's
// window can occupy, prevStart+prevLen-chunkOverlap: an overlap head keeps
// at most chunkOverlap characters of the previous window, so the true match
// is at or after that point. Searching any earlier would snap to a spurious
// first occurrence in repetitive text and report a wrong offset.
func (s *RecursiveSplitter) SplitDocument(doc domain.Document) []domain.Segment {
	if strings.TrimSpace(doc.Content) == "" {
		return nil
	}
	chunks := s.splitText(doc.Content, s.separators)

	segments := make([]domain.Segment, 0, len(chunks))
	prevStart, prevLen := 0, 0
	for i, chunk := range chunks {
		searchFrom := 0
		if i > 0 {
			searchFrom = prevStart + prevLen - s.chunkOverlap
			if searchFrom <= prevStart {
				searchFrom = prevStart + 1
			}
		}
		idx := strings.Index(doc.Content[searchFrom:], chunk)
		if idx < 0 {
			// Should not happen: every chunk is a contiguous substring.
			s.logger.Error("chunk not found in source document",
				zap.String("source", doc.Source))
			continue
		}
		start := searchFrom + idx
		segments = append(segments, domain.Segment{
			Text:        chunk,
			StartOffset: start,
			Source:      doc.Source,
			Metadata:    s.segmentMetadata(doc, start),
		})
		prevStart, prevLen = start, len(chunk)
	}
	return segments
}

func (s *RecursiveSplitter) segmentMetadata(doc domain.Document, start int) map[string]any {
	md := make(map[string]any, len(doc.Metadata)+4)
	for k, v := range doc.Metadata {
		md[k] = v
	}
	md[domain.MetaSource] = doc.Source
	if doc.Category != "" {
		md[domain.MetaCategory] = doc.Category
	}
	md[domain.MetaOriginalLength] = len(doc.Content)
	md[domain.MetaStartIndex] = start
	return md
}

// splitText is the recursive core: pick the coarsest separator present in
// the text, split on it keeping the separator attached to the following
// piece, merge small pieces into overlapping windows, and recurse with the
// remaining finer separators on any piece still over the size target.
func (s *RecursiveSplitter) splitText(text string, separators []string) []string {
	var final []string

	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	splits := splitKeepingSeparator(text, separator)

	var good []string
	for _, piece := range splits {
		if len(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.mergeSplits(good)...)
			good = nil
		}
		if len(next) == 0 {
			// No finer separator left; the soft bound is exceeded here.
			final = append(final, piece)
		} else {
			final = append(final, s.splitText(piece, next)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.mergeSplits(good)...)
	}
	return final
}

// splitKeepingSeparator splits text on sep, prepending the separator to the
// piece that follows it so chunks stay contiguous substrings of the source.
// An empty separator splits into individual characters.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		return strings.Split(text, "")
	}
	raw := strings.Split(text, sep)
	out := make([]string, 0, len(raw))
	for i, piece := range raw {
		if i > 0 {
			piece = sep + piece
		}
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

// mergeSplits packs consecutive pieces into windows of at most chunkSize
// characters. When a window is emitted, pieces are dropped from its front
// until at most chunkOverlap characters remain; those survivors become the
// head of the next window, producing the configured tail/head overlap.
func (s *RecursiveSplitter) mergeSplits(splits []string) []string {
	var docs []string
	var current []string
	total := 0
	for _, piece := range splits {
		if total+len(piece) > s.chunkSize && len(current) > 0 {
			if doc := joinPieces(current); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.chunkOverlap || (total+len(piece) > s.chunkSize && total > 0) {
				total -= len(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += len(piece)
	}
	if doc := joinPieces(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func joinPieces(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}
