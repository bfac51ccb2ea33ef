package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PathsConfig holds filesystem locations for every pipeline stage.
type PathsConfig struct {
	PDFPattern    string `yaml:"pdf_pattern"`
	VideoPattern  string `yaml:"video_pattern"`
	TranscriptDir string `yaml:"transcript_dir"`
	ChunkedDir    string `yaml:"chunked_dir"`
	ChunksPattern string `yaml:"chunks_pattern"`
	PersistDir    string `yaml:"persist_dir"`
	Collection    string `yaml:"collection"`
}

// ChunkingConfig configures how documents are split into segments.
// Separators is the ordered hierarchy the recursive splitter tries, coarsest
// first; an empty string means split on characters as a last resort.
// Overlap is a pointer so an explicit 0 survives defaulting; it is always
// non-nil after loading.
type ChunkingConfig struct {
	Size       int      `yaml:"size"`
	Overlap    *int     `yaml:"overlap"`
	Separators []string `yaml:"separators,omitempty"`
}

// RetrievalConfig selects and tunes the retrieval strategy. LambdaMult is a
// pointer so an explicit 0 (pure diversity) survives defaulting; it is
// always non-nil after loading.
type RetrievalConfig struct {
	Strategy   string   `yaml:"strategy"` // "similarity" or "mmr"
	K          int      `yaml:"k"`
	FetchK     int      `yaml:"fetch_k"`
	LambdaMult *float64 `yaml:"lambda_mult"`
}

// ModelsConfig identifies the external model services.
type ModelsConfig struct {
	BaseURL        string  `yaml:"base_url"`
	EmbeddingModel string  `yaml:"embedding_model"`
	ChatModel      string  `yaml:"chat_model"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSecs    int     `yaml:"timeout_secs"`
}

// TranscribeConfig configures the external transcription capability.
type TranscribeConfig struct {
	Binary   string `yaml:"binary"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Paths        PathsConfig      `yaml:"paths"`
	Chunking     ChunkingConfig   `yaml:"chunking"`
	Retrieval    RetrievalConfig  `yaml:"retrieval"`
	Models       ModelsConfig     `yaml:"models"`
	Transcribe   TranscribeConfig `yaml:"transcribe"`
	SystemPrompt string           `yaml:"system_prompt"`
}

// DefaultSystemPrompt is substituted with the retrieved context at query time.
const DefaultSystemPrompt = "You are an assistant for question-answering tasks. " +
	"Use the following pieces of retrieved context to answer the question. " +
	"RAG in provided context refers to Retrieval-Augmented Generation. " +
	"If you don't know the answer, just say that you don't know.\n\n{context}"

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragpipe/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragpipe/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragpipe", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Paths.PDFPattern == "" {
		cfg.Paths.PDFPattern = "./sources/*.pdf"
	}
	if cfg.Paths.VideoPattern == "" {
		cfg.Paths.VideoPattern = "./sources/*.mp4"
	}
	if cfg.Paths.TranscriptDir == "" {
		cfg.Paths.TranscriptDir = "./video_transcripts"
	}
	if cfg.Paths.ChunkedDir == "" {
		cfg.Paths.ChunkedDir = "./chunked"
	}
	if cfg.Paths.ChunksPattern == "" {
		cfg.Paths.ChunksPattern = "./chunked/chunked_*.json"
	}
	if cfg.Paths.PersistDir == "" {
		cfg.Paths.PersistDir = "./embed_db"
	}
	if cfg.Paths.Collection == "" {
		cfg.Paths.Collection = "embed_chunks"
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 1000
	}
	if cfg.Chunking.Overlap == nil {
		overlap := 200
		cfg.Chunking.Overlap = &overlap
	}
	if cfg.Retrieval.Strategy == "" {
		cfg.Retrieval.Strategy = "mmr"
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 5
	}
	if cfg.Retrieval.FetchK == 0 {
		cfg.Retrieval.FetchK = 10
	}
	if cfg.Retrieval.LambdaMult == nil {
		lambda := 0.7
		cfg.Retrieval.LambdaMult = &lambda
	}
	if cfg.Models.BaseURL == "" {
		cfg.Models.BaseURL = "http://localhost:11434"
	}
	if cfg.Models.EmbeddingModel == "" {
		cfg.Models.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.Models.ChatModel == "" {
		cfg.Models.ChatModel = "llama3"
	}
	if cfg.Models.TimeoutSecs == 0 {
		cfg.Models.TimeoutSecs = 120
	}
	if cfg.Transcribe.Binary == "" {
		cfg.Transcribe.Binary = "whisper"
	}
	if cfg.Transcribe.Model == "" {
		cfg.Transcribe.Model = "small"
	}
	if cfg.Transcribe.Language == "" {
		cfg.Transcribe.Language = "en"
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
}
