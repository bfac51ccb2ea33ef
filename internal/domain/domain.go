package domain

// Well-known metadata keys. Metadata is an open string-to-scalar mapping;
// these keys are the ones the pipeline itself reads and writes. The chunk
// store validates records at its boundary, everything else treats metadata
// as opaque.
const (
	MetaSource         = "source"
	MetaCategory       = "category"
	MetaFilePath       = "file_path"
	MetaPage           = "page"
	MetaOriginalLength = "original_length"
	MetaStartIndex     = "start_index"
	MetaSourceFile     = "source_file"
	MetaSourcePath     = "source_path"
)

// Provenance categories recorded under MetaCategory.
const (
	CategoryVideoTranscript = "video_transcript"
	CategoryPDFPage         = "pdf_page"
)

// Document is a logical unit of source text produced by an extraction step.
// Immutable once created.
type Document struct {
	Content  string
	Source   string // stable identifier, usually the originating filename
	Category string // provenance tag, e.g. "video_transcript" or "pdf_page"
	Metadata map[string]any
}

// Segment is a bounded, offset-tracked substring of a document produced by
// the splitter. StartOffset is a character index into the parent document's
// content; offsets are monotonically non-decreasing across successive
// segments of the same document.
type Segment struct {
	Text        string
	StartOffset int
	Source      string
	Metadata    map[string]any
}

// SearchResult pairs a segment with its relevance score for one query.
type SearchResult struct {
	Segment Segment
	Score   float64
}
