package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"ragpipe/internal/chunkstore"
	"ragpipe/internal/domain"
)

// PDFExtractor pulls per-page text out of PDF files and writes it straight
// to chunk files, one file per PDF, in the shared Record shape.
type PDFExtractor struct {
	store  *chunkstore.Store
	logger *zap.Logger
}

func NewPDFExtractor(store *chunkstore.Store, logger *zap.Logger) *PDFExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFExtractor{store: store, logger: logger}
}

// ExtractAll converts every PDF matching the pattern. A file that cannot be
// read or parsed is reported and skipped; the batch continues. Returns the
// chunk file paths written and the source paths that failed.
func (e *PDFExtractor) ExtractAll(pattern, outputDir string) (written []string, failed []string) {
	files, err := filepath.Glob(pattern)
	if err != nil || len(files) == 0 {
		e.logger.Warn("no PDF files matched pattern", zap.String("pattern", pattern))
		return nil, nil
	}
	e.logger.Info("extracting PDFs", zap.Int("files", len(files)))

	totalPages := 0
	for _, file := range files {
		outPath, pages, err := e.extractOne(file, outputDir)
		if err != nil {
			e.logger.Error("PDF extraction failed, skipping",
				zap.String("path", file), zap.Error(err))
			failed = append(failed, file)
			continue
		}
		written = append(written, outPath)
		totalPages += pages
	}

	e.logger.Info("PDF extraction summary",
		zap.Int("succeeded", len(written)),
		zap.Int("failed", len(failed)),
		zap.Int("pages", totalPages),
		zap.String("output_dir", outputDir))
	return written, failed
}

// extractOne writes chunked_<stem>.json with one record per non-empty page.
func (e *PDFExtractor) extractOne(path, outputDir string) (string, int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	var records []chunkstore.Record
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Warn("unreadable page, skipping",
				zap.String("path", path), zap.Int("page", pageNum), zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		records = append(records, chunkstore.Record{
			PageContent: text,
			Metadata: map[string]any{
				domain.MetaSource:   name,
				domain.MetaCategory: domain.CategoryPDFPage,
				domain.MetaFilePath: path,
				domain.MetaPage:     pageNum,
			},
		})
	}
	if len(records) == 0 {
		return "", 0, fmt.Errorf("no extractable text in %s", path)
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	outPath := filepath.Join(outputDir, "chunked_"+stem+".json")
	if err := e.store.SaveRecords(outPath, records); err != nil {
		return "", 0, err
	}
	e.logger.Info("extracted PDF",
		zap.String("source", name),
		zap.String("output", outPath),
		zap.Int("pages", len(records)))
	return outPath, len(records), nil
}
