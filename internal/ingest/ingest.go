package ingest

import (
	"context"

	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string
	Document     entity.Document
	Deduplicated bool
	HashHex      string
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor uploads local review documents into the object store.
type Ingestor interface {
	// IngestPath uploads a single file.
	IngestPath(ctx context.Context, path string) (IngestionResult, error)
	// IngestDirectory uploads all supported files under root.
	IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error)
}

// Documents returns the documents of the successful results, in walk order.
func Documents(results []IngestionResult) []entity.Document {
	out := make([]entity.Document, 0, len(results))
	for _, r := range results {
		if r.Err == "" {
			out = append(out, r.Document)
		}
	}
	return out
}
