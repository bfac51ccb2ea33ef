package chunkstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"ragpipe/internal/domain"
)

var (
	// ErrNoChunkFiles is returned when a load pattern matches no files.
	ErrNoChunkFiles = errors.New("no chunk files matched pattern")

	// ErrEmptyCorpus is returned when files matched but no valid record survived.
	ErrEmptyCorpus = errors.New("no valid chunk records loaded")
)

// Record is the durable interchange shape shared by the extraction,
// chunking and embedding stages. The JSON field names are a wire format
// and must not change.
type Record struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

// Store reads and writes chunk files: JSON arrays of Records, one file per
// source document batch.
type Store struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger}
}

// SaveSegments serializes segments to a chunk file at path.
func (s *Store) SaveSegments(path string, segments []domain.Segment) error {
	records := make([]Record, len(segments))
	for i, seg := range segments {
		records[i] = Record{PageContent: seg.Text, Metadata: seg.Metadata}
	}
	return s.SaveRecords(path, records)
}

// SaveRecords writes records as an indented JSON array. The write is atomic:
// data goes to a temp file in the target directory and is renamed into place,
// so a crash never leaves a truncated chunk file behind.
func (s *Store) SaveRecords(path string, records []Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	s.logger.Info("saved chunk file",
		zap.String("path", path),
		zap.Int("records", len(records)))
	return nil
}

// Load expands the glob pattern and merges every matched chunk file into one
// corpus. Malformed files and records are skipped, counted and logged, never
// fatal; each loaded record's metadata is enriched with the originating
// filename, path and recomputed text length.
func (s *Store) Load(pattern string) ([]domain.Segment, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad chunk pattern %q: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoChunkFiles, pattern)
	}

	var segments []domain.Segment
	skippedRecords := 0
	skippedFiles := 0
	for _, file := range files {
		segs, skipped, err := s.loadFile(file)
		if err != nil {
			s.logger.Warn("skipping unreadable chunk file",
				zap.String("path", file), zap.Error(err))
			skippedFiles++
			continue
		}
		skippedRecords += skipped
		if len(segs) == 0 && skipped == 0 {
			// valid but empty array: nothing usable, count the whole file
			skippedFiles++
			continue
		}
		segments = append(segments, segs...)
	}

	s.logger.Info("chunk corpus loaded",
		zap.Int("files", len(files)),
		zap.Int("segments", len(segments)),
		zap.Int("skipped_records", skippedRecords),
		zap.Int("skipped_files", skippedFiles))

	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: pattern %s", ErrEmptyCorpus, pattern)
	}
	return segments, nil
}

// loadFile parses one chunk file and returns its segments plus the number of
// skipped records. Records are validated for the presence of both required
// keys before decoding.
func (s *Store) loadFile(path string) ([]domain.Segment, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(raw) == 0 {
		s.logger.Warn("chunk file is empty, skipping", zap.String("path", path))
		return nil, 0, nil
	}

	segments := make([]domain.Segment, 0, len(raw))
	skipped := 0
	for i, item := range raw {
		content, hasContent := item["page_content"]
		meta, hasMeta := item["metadata"]
		if !hasContent || !hasMeta {
			s.logger.Warn("chunk record missing required keys, skipping",
				zap.String("path", path), zap.Int("record", i))
			skipped++
			continue
		}
		var text string
		var metadata map[string]any
		if err := json.Unmarshal(content, &text); err != nil {
			s.logger.Warn("malformed page_content, skipping record",
				zap.String("path", path), zap.Int("record", i), zap.Error(err))
			skipped++
			continue
		}
		if err := json.Unmarshal(meta, &metadata); err != nil {
			s.logger.Warn("malformed metadata, skipping record",
				zap.String("path", path), zap.Int("record", i), zap.Error(err))
			skipped++
			continue
		}
		if metadata == nil {
			metadata = map[string]any{}
		}

		metadata[domain.MetaSourceFile] = filepath.Base(path)
		metadata[domain.MetaSourcePath] = path
		metadata[domain.MetaOriginalLength] = len(text)

		segments = append(segments, domain.Segment{
			Text:        text,
			StartOffset: startIndexFrom(metadata),
			Source:      sourceFrom(metadata, path),
			Metadata:    metadata,
		})
	}
	s.logger.Info("loaded chunk file",
		zap.String("path", path),
		zap.Int("records", len(segments)),
		zap.Int("skipped", skipped))
	return segments, skipped, nil
}

func startIndexFrom(metadata map[string]any) int {
	switch v := metadata[domain.MetaStartIndex].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func sourceFrom(metadata map[string]any, path string) string {
	if src, ok := metadata[domain.MetaSource].(string); ok && src != "" {
		return src
	}
	return filepath.Base(path)
}
