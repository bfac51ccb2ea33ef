package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"ragpipe/internal/chunkstore"
	"ragpipe/internal/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/embedding"
	"ragpipe/internal/extract"
	"ragpipe/internal/retriever"
	"ragpipe/internal/splitter"
	"ragpipe/internal/synthesis"
	"ragpipe/internal/transcribe"
	"ragpipe/internal/vectorstore"
)

// Pipeline wires the stages together: extract, transcribe, chunk, embed,
// retrieve, answer. Every collaborator is injected so tests can substitute
// fakes for the external model services.
type Pipeline struct {
	cfg         *config.AppConfig
	splitter    *splitter.RecursiveSplitter
	chunks      *chunkstore.Store
	extractor   *extract.PDFExtractor
	transcriber transcribe.Transcriber
	embedder    embedding.Embedder
	store       vectorstore.Storage
	synth       *synthesis.Synthesizer
	logger      *zap.Logger
}

func New(
	cfg *config.AppConfig,
	split *splitter.RecursiveSplitter,
	chunks *chunkstore.Store,
	extractor *extract.PDFExtractor,
	transcriber transcribe.Transcriber,
	embedder embedding.Embedder,
	store vectorstore.Storage,
	synth *synthesis.Synthesizer,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:         cfg,
		splitter:    split,
		chunks:      chunks,
		extractor:   extractor,
		transcriber: transcriber,
		embedder:    embedder,
		store:       store,
		synth:       synth,
		logger:      logger,
	}
}

// FirstRun reports whether the build pipeline has to run: true unless both
// the persisted index and chunk files already exist.
func (p *Pipeline) FirstRun() bool {
	return NeedsBuild(p.cfg)
}

// NeedsBuild checks the configured artifact locations without touching any
// service, so callers can decide the run mode before assembly.
func NeedsBuild(cfg *config.AppConfig) bool {
	persistEntries, err := os.ReadDir(cfg.Paths.PersistDir)
	indexExists := err == nil && len(persistEntries) > 0

	matches, _ := filepath.Glob(cfg.Paths.ChunksPattern)
	chunksExist := len(matches) > 0

	return !(indexExists && chunksExist)
}

// RunFull executes the complete build pipeline in order.
func (p *Pipeline) RunFull(ctx context.Context) error {
	p.ExtractPDFs()
	p.TranscribeVideos(ctx)
	if err := p.ChunkTranscripts(); err != nil {
		return err
	}
	return p.BuildIndex(ctx)
}

// ExtractPDFs converts source PDFs into page-level chunk files.
func (p *Pipeline) ExtractPDFs() {
	p.extractor.ExtractAll(p.cfg.Paths.PDFPattern, p.cfg.Paths.ChunkedDir)
}

// TranscribeVideos turns each matched video into a transcript text file.
// Per-file failures are logged and skipped, never fatal for the batch.
func (p *Pipeline) TranscribeVideos(ctx context.Context) {
	files, _ := filepath.Glob(p.cfg.Paths.VideoPattern)
	if len(files) == 0 {
		p.logger.Warn("no video files matched pattern",
			zap.String("pattern", p.cfg.Paths.VideoPattern))
		return
	}
	if err := os.MkdirAll(p.cfg.Paths.TranscriptDir, 0o755); err != nil {
		p.logger.Error("cannot create transcript dir", zap.Error(err))
		return
	}

	transcribed, failed := 0, 0
	for _, file := range files {
		text, err := p.transcriber.Transcribe(ctx, file)
		if err != nil {
			p.logger.Error("transcription failed, skipping",
				zap.String("path", file), zap.Error(err))
			failed++
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		outPath := filepath.Join(p.cfg.Paths.TranscriptDir, stem+"_transcript.txt")
		if err := os.WriteFile(outPath, []byte(text), 0o644); err != nil {
			p.logger.Error("cannot write transcript",
				zap.String("path", outPath), zap.Error(err))
			failed++
			continue
		}
		transcribed++
	}
	p.logger.Info("transcription summary",
		zap.Int("transcribed", transcribed),
		zap.Int("failed", failed))
}

// ChunkTranscripts loads transcript text files, splits them into segments
// and saves the combined chunk file.
func (p *Pipeline) ChunkTranscripts() error {
	documents := p.loadTranscripts()
	if len(documents) == 0 {
		p.logger.Warn("no transcript documents to chunk",
			zap.String("dir", p.cfg.Paths.TranscriptDir))
		return nil
	}

	segments := p.splitter.Split(documents)
	p.logChunkingSummary(segments, len(documents))

	outPath := filepath.Join(p.cfg.Paths.ChunkedDir, "chunked_transcripts.json")
	return p.chunks.SaveSegments(outPath, segments)
}

// loadTranscripts reads every .txt file in the transcript dir into a
// document. Unreadable or empty files are skipped with a log line.
func (p *Pipeline) loadTranscripts() []domain.Document {
	files, _ := filepath.Glob(filepath.Join(p.cfg.Paths.TranscriptDir, "*.txt"))
	var documents []domain.Document
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			p.logger.Error("cannot read transcript, skipping",
				zap.String("path", file), zap.Error(err))
			continue
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			p.logger.Warn("transcript is empty, skipping", zap.String("path", file))
			continue
		}
		documents = append(documents, domain.Document{
			Content:  content,
			Source:   filepath.Base(file),
			Category: domain.CategoryVideoTranscript,
			Metadata: map[string]any{domain.MetaFilePath: file},
		})
	}
	p.logger.Info("loaded transcripts", zap.Int("documents", len(documents)))
	return documents
}

// BuildIndex loads the whole chunk corpus, embeds every segment and
// replaces the persisted collection. One canary call verifies the embedding
// service before any bulk work starts.
func (p *Pipeline) BuildIndex(ctx context.Context) error {
	segments, err := p.chunks.Load(p.cfg.Paths.ChunksPattern)
	if err != nil {
		return err
	}

	if err := embedding.Verify(ctx, p.embedder); err != nil {
		return err
	}

	entries := make([]vectorstore.Entry, len(segments))
	for i, seg := range segments {
		vec, err := p.embedder.Embed(ctx, seg.Text)
		if err != nil {
			return fmt.Errorf("embedding segment %d of %d: %w", i+1, len(segments), err)
		}
		entries[i] = vectorstore.Entry{Segment: seg, Vector: vec}
	}

	if err := p.store.Replace(ctx, entries); err != nil {
		return err
	}
	p.logEmbeddingSummary(segments)
	return nil
}

// Query embeds the query, retrieves evidence with the configured strategy
// and synthesizes a grounded answer.
func (p *Pipeline) Query(ctx context.Context, query string) (synthesis.Response, error) {
	r := retriever.New(p.store, p.embedder, retriever.Options{
		Strategy:   retriever.Strategy(p.cfg.Retrieval.Strategy),
		K:          p.cfg.Retrieval.K,
		FetchK:     p.cfg.Retrieval.FetchK,
		LambdaMult: *p.cfg.Retrieval.LambdaMult,
	}, p.logger)

	evidence, err := r.Retrieve(ctx, query)
	if err != nil {
		return synthesis.Response{}, err
	}
	return p.synth.Answer(ctx, query, evidence)
}

func (p *Pipeline) logChunkingSummary(segments []domain.Segment, documents int) {
	perSource := map[string]int{}
	for _, seg := range segments {
		perSource[seg.Source]++
	}
	fields := []zap.Field{
		zap.Int("documents", documents),
		zap.Int("segments", len(segments)),
	}
	for source, count := range perSource {
		fields = append(fields, zap.Int("chunks:"+source, count))
	}
	p.logger.Info("chunking summary", fields...)
}

func (p *Pipeline) logEmbeddingSummary(segments []domain.Segment) {
	perFile := map[string]int{}
	for _, seg := range segments {
		file, _ := seg.Metadata[domain.MetaSourceFile].(string)
		if file == "" {
			file = "unknown"
		}
		perFile[file]++
	}
	fields := []zap.Field{zap.Int("segments", len(segments))}
	for file, count := range perFile {
		fields = append(fields, zap.Int("chunks:"+file, count))
	}
	p.logger.Info("embedding summary", fields...)
}
