package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/memora-ai/memora/internal/models"
)

type LocalConfig struct {
	DataDir string
}

// Local reads documents from a directory tree on disk.
type Local struct {
	config LocalConfig
	logger *slog.Logger
}

// NewLocal fails when the directory does not exist; a missing data dir is a
// configuration mistake, not an empty knowledge base.
func NewLocal(config LocalConfig, logger *slog.Logger) (*Local, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data directory %q: %w", config.DataDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory %q is not a directory", config.DataDir)
	}

	return &Local{
		config: config,
		logger: logger,
	}, nil
}

func (l *Local) Name() string { return "local" }

// FetchAllDocuments walks the data directory and loads every supported file.
// Unreadable files are logged and skipped; one bad file must not sink an
// ingestion run.
func (l *Local) FetchAllDocuments(ctx context.Context) ([]models.Document, error) {
	var documents []models.Document

	err := filepath.WalkDir(l.config.DataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !supportedExtensions[ext] {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn("skipping unreadable file", "path", path, "error", err)
			return nil
		}

		rel, err := filepath.Rel(l.config.DataDir, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		content := convertContent(string(raw), ext)
		if strings.TrimSpace(content) == "" {
			return nil
		}

		documents = append(documents, models.Document{
			Content:   content,
			Source:    rel,
			Title:     strings.TrimSuffix(d.Name(), ext),
			Path:      rel,
			Extension: ext,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk data directory: %w", err)
	}

	l.logger.Info("loaded local documents", "count", len(documents), "dir", l.config.DataDir)
	return documents, nil
}
