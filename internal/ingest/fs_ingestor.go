package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
	"github.com/joseph-ayodele/review-orchestrator/internal/storage"
)

// FSIngestor reads from the local filesystem and uploads into an object
// store under content-addressed keys, so the same bytes are stored once.
type FSIngestor struct {
	store  storage.ObjectStore
	prefix string
	logger *slog.Logger
}

func NewFSIngestor(store storage.ObjectStore, prefix string, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "documents"
	}
	return &FSIngestor{store: store, prefix: strings.TrimSuffix(prefix, "/"), logger: logger}
}

// Key is the object key for a document with the given content hash.
func (i *FSIngestor) Key(hashHex, filename string) string {
	return path.Join(i.prefix, hashHex, filename)
}

func (i *FSIngestor) IngestPath(ctx context.Context, p string) (IngestionResult, error) {
	out := IngestionResult{SourcePath: p}
	start := time.Now()

	abs, err := filepath.Abs(p)
	if err != nil {
		return out, err
	}
	ext := constants.NormalizeExt(filepath.Ext(abs))
	fileType := constants.MapExtToFormat(ext)
	if ext == "" || !AllowedExt(ext) || fileType == "" {
		return out, fmt.Errorf("unsupported or missing extension %q", ext)
	}

	body, err := os.ReadFile(abs) //nolint:gosec // caller-chosen local path
	if err != nil {
		return out, err
	}
	sum := sha256.Sum256(body)
	out.HashHex = hex.EncodeToString(sum[:])

	filename := filepath.Base(abs)
	key := i.Key(out.HashHex, filename)
	if _, err := i.store.Stat(ctx, key); err == nil {
		out.Deduplicated = true
	} else if !errors.Is(err, storage.ErrObjectNotFound) {
		return out, fmt.Errorf("stat %s: %w", key, err)
	} else if err := i.store.Put(ctx, key, body, ContentType(ext)); err != nil {
		return out, fmt.Errorf("upload %s: %w", key, err)
	}

	out.Document = entity.Document{
		ID:       uuid.New(),
		Filename: filename,
		Path:     key,
		FileType: fileType,
	}
	i.logger.Info("ingest.file.ok",
		"path", abs,
		"key", key,
		"bytes", len(body),
		"deduplicated", out.Deduplicated,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// IngestDirectory walks root, skips hidden entries if requested, and calls
// IngestPath for each supported file. Per-file failures are recorded and the
// walk continues.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: p, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && p != root && IsHidden(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(p)) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, p)
		if err != nil {
			i.logger.Warn("ingest.file.failed", "path", p, "error", err)
			results = append(results, IngestionResult{SourcePath: p, Err: err.Error()})
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}
