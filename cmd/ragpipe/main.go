package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ragpipe/internal/chunkstore"
	"ragpipe/internal/config"
	"ragpipe/internal/embedding"
	ollamaembed "ragpipe/internal/embedding/ollama"
	"ragpipe/internal/extract"
	"ragpipe/internal/pipeline"
	"ragpipe/internal/splitter"
	"ragpipe/internal/synthesis"
	"ragpipe/internal/transcribe"
	"ragpipe/internal/tui"
	"ragpipe/internal/vectorstore/chromem"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var rebuild bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/ragpipe/config.yaml if not provided)")
	flag.BoolVar(&rebuild, "rebuild", false, "Force a full rebuild: extract, transcribe, chunk and embed even if an index exists")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: ragpipe [--config=config.yaml] [--rebuild] [question ...]\n\n"+
			"With no question, starts an interactive session. The first run (or --rebuild)\n"+
			"executes the full pipeline before answering; later runs reuse the stored index.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	interactive := query == ""

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// keep info logging while a build is pending even in interactive mode,
	// so first-run progress is visible before the TUI takes the screen
	quiet := interactive && !rebuild && !pipeline.NeedsBuild(cfg)
	logger := newLogger(quiet)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, store, err := assemble(cfg, logger)
	if err != nil {
		logger.Error("assembly failed", zap.Error(err))
		os.Exit(1)
	}

	if rebuild || p.FirstRun() {
		logger.Info("running full pipeline",
			zap.Bool("rebuild", rebuild),
			zap.String("persist_dir", cfg.Paths.PersistDir))
		if err := p.RunFull(ctx); err != nil {
			logger.Error("pipeline failed", zap.Error(err))
			os.Exit(1)
		}
	} else {
		logger.Info("reusing stored index", zap.String("persist_dir", cfg.Paths.PersistDir))
	}

	if !interactive {
		runSingleQuery(ctx, p, query)
		return
	}

	summary := fmt.Sprintf("%d segments indexed  strategy=%s k=%d  embed=%s chat=%s",
		store.Count(), cfg.Retrieval.Strategy, cfg.Retrieval.K,
		cfg.Models.EmbeddingModel, cfg.Models.ChatModel)
	m := tui.New(p, summary)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// assemble builds the pipeline from configuration. External services are not
// contacted here; the first embedding call verifies reachability.
func assemble(cfg *config.AppConfig, logger *zap.Logger) (*pipeline.Pipeline, *chromem.Store, error) {
	var emb embedding.Embedder
	emb, err := ollamaembed.NewClient(ollamaembed.Config{
		BaseURL: embedBaseURL(cfg.Models.BaseURL),
		APIKey:  os.Getenv("EMBEDDINGS_API_KEY"),
		Model:   cfg.Models.EmbeddingModel,
		Timeout: time.Duration(cfg.Models.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("embedding client: %w", err)
	}

	store, err := chromem.New(chromem.Config{
		Path:       cfg.Paths.PersistDir,
		Collection: cfg.Paths.Collection,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("vector store: %w", err)
	}

	gen, err := synthesis.NewOllamaGenerator(cfg.Models.BaseURL, cfg.Models.ChatModel, cfg.Models.Temperature)
	if err != nil {
		return nil, nil, fmt.Errorf("chat model: %w", err)
	}

	chunks := chunkstore.New(logger)
	split := splitter.NewRecursiveSplitter(cfg.Chunking.Size, *cfg.Chunking.Overlap, cfg.Chunking.Separators, logger)
	extractor := extract.NewPDFExtractor(chunks, logger)
	transcriber := transcribe.NewWhisperCLI(cfg.Transcribe.Binary, cfg.Transcribe.Model, cfg.Transcribe.Language, logger)
	synth := synthesis.New(gen, cfg.SystemPrompt, logger)

	p := pipeline.New(cfg, split, chunks, extractor, transcriber, emb, store, synth, logger)
	return p, store, nil
}

func runSingleQuery(ctx context.Context, p *pipeline.Pipeline, query string) {
	resp, err := p.Query(ctx, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		// retrieved evidence is still useful when only generation failed
		for _, e := range resp.Evidence {
			fmt.Fprintf(os.Stderr, "  evidence: %s (offset %d, score %.3f)\n",
				e.Segment.Source, e.Segment.StartOffset, e.Score)
		}
		os.Exit(1)
	}
	fmt.Println(resp.Answer)
	if len(resp.Evidence) > 0 {
		fmt.Println("\nSources:")
		for _, e := range resp.Evidence {
			fmt.Printf("  %s (offset %d, score %.3f)\n",
				e.Segment.Source, e.Segment.StartOffset, e.Score)
		}
	}
}

// embedBaseURL points the embeddings client at Ollama's native API path
// unless the configured URL already names an API root.
func embedBaseURL(base string) string {
	base = strings.TrimSuffix(base, "/")
	if strings.HasSuffix(base, "/api") || strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/api"
}

// newLogger writes console output to stderr. Quiet mode only logs errors so
// the TUI stays clean.
func newLogger(quiet bool) *zap.Logger {
	level := zapcore.InfoLevel
	if quiet {
		level = zapcore.ErrorLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
