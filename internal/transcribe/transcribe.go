package transcribe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Transcriber converts one media file into plain text. It is an explicitly
// constructed capability so tests can substitute a fake instead of shelling
// out to a speech model.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) (string, error)
}

// WhisperCLI transcribes by invoking a whisper-compatible executable. The
// speech model itself stays outside the process; this wrapper only moves
// text.
type WhisperCLI struct {
	Binary   string
	Model    string
	Language string
	logger   *zap.Logger
}

func NewWhisperCLI(binary, model, language string, logger *zap.Logger) *WhisperCLI {
	if binary == "" {
		binary = "whisper"
	}
	if model == "" {
		model = "small"
	}
	if language == "" {
		language = "en"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhisperCLI{Binary: binary, Model: model, Language: language, logger: logger}
}

// Transcribe runs the CLI with txt output into a scratch directory and
// returns the transcript text.
func (w *WhisperCLI) Transcribe(ctx context.Context, mediaPath string) (string, error) {
	scratch, err := os.MkdirTemp("", "transcribe-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(scratch)

	cmd := exec.CommandContext(ctx, w.Binary,
		"--model", w.Model,
		"--language", w.Language,
		"--output_format", "txt",
		"--output_dir", scratch,
		mediaPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("running %s on %s: %w: %s", w.Binary, mediaPath, err, strings.TrimSpace(string(out)))
	}

	name := filepath.Base(mediaPath)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	data, err := os.ReadFile(filepath.Join(scratch, stem+".txt"))
	if err != nil {
		return "", fmt.Errorf("reading transcript for %s: %w", mediaPath, err)
	}
	text := strings.TrimSpace(string(data))
	w.logger.Debug("transcribed media file",
		zap.String("path", mediaPath),
		zap.Int("chars", len(text)))
	return text, nil
}
