package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/lineage-engine/pkg/logger"
	"github.com/feichai0017/lineage-engine/pkg/storage"
)

// Extractor is the external text-extraction collaborator as the lineage
// engine sees it: storage path in, plain text out. The engine calls it only
// when a document's extracted text was never cached.
type Extractor interface {
	Extract(ctx context.Context, storagePath string) (string, error)
}

// StorageExtractor reads the raw blob from storage and extracts plain text:
// PDFs via their page text, everything else treated as UTF-8.
type StorageExtractor struct {
	storage storage.Storage
	logger  logger.Logger
}

func NewStorageExtractor(store storage.Storage, log logger.Logger) *StorageExtractor {
	return &StorageExtractor{
		storage: store,
		logger:  log,
	}
}

func (e *StorageExtractor) Extract(ctx context.Context, storagePath string) (string, error) {
	reader, err := e.storage.Get(ctx, storagePath)
	if err != nil {
		return "", fmt.Errorf("failed to fetch blob: %w", err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read blob: %w", err)
	}

	if strings.EqualFold(filepath.Ext(storagePath), ".pdf") {
		return e.extractPDF(ctx, content)
	}
	return string(content), nil
}

func (e *StorageExtractor) extractPDF(ctx context.Context, content []byte) (string, error) {
	// pdf.NewReader needs io.ReaderAt, so the blob sits in memory.
	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := pdfReader.NumPage()
	pages := make([]string, numPages)

	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, 4)

	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return ctx.Err()
			}

			page := pdfReader.Page(pageNum)
			if page.V.IsNull() {
				return nil
			}
			text, err := page.GetPlainText(nil)
			if err != nil {
				e.logger.Warn("Failed to extract pdf page",
					logger.Int("page", pageNum),
					logger.Error(err),
				)
				return nil
			}
			pages[pageNum-1] = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	return strings.Join(pages, "\n"), nil
}
