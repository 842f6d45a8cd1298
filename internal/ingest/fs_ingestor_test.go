package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/internal/storage"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func newIngestor(t *testing.T) (*FSIngestor, *storage.FileStore) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewFSIngestor(store, "", nil), store
}

func TestIngestPath_UploadsAndDeduplicates(t *testing.T) {
	ing, store := newIngestor(t)
	src := filepath.Join(t.TempDir(), "contract.txt")
	writeFile(t, src, "signed by both parties")

	first, err := ing.IngestPath(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.Deduplicated)
	assert.Len(t, first.HashHex, 64)
	assert.Equal(t, "contract.txt", first.Document.Filename)
	assert.Equal(t, constants.TXT, first.Document.FileType)
	assert.Equal(t, ing.Key(first.HashHex, "contract.txt"), first.Document.Path)

	body, err := store.Get(context.Background(), first.Document.Path)
	require.NoError(t, err)
	assert.Equal(t, "signed by both parties", string(body))

	second, err := ing.IngestPath(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.Document.Path, second.Document.Path)
	assert.NotEqual(t, first.Document.ID, second.Document.ID)
}

func TestIngestPath_RejectsUnsupported(t *testing.T) {
	ing, _ := newIngestor(t)
	src := filepath.Join(t.TempDir(), "notes.docx")
	writeFile(t, src, "x")

	_, err := ing.IngestPath(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestIngestDirectory(t *testing.T) {
	ing, _ := newIngestor(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "%PDF-1.4")
	writeFile(t, filepath.Join(root, "scans", "b.png"), "png")
	writeFile(t, filepath.Join(root, "scans", "copy.png"), "png")
	writeFile(t, filepath.Join(root, "skip.docx"), "doc")
	writeFile(t, filepath.Join(root, ".hidden", "c.txt"), "hidden")
	writeFile(t, filepath.Join(root, ".d.txt"), "hidden")

	results, stats, err := ing.IngestDirectory(context.Background(), root, true)
	require.NoError(t, err)

	assert.Equal(t, uint32(3), stats.Matched)
	assert.Equal(t, uint32(3), stats.Succeeded)
	assert.Equal(t, uint32(0), stats.Failed)
	// Identical bytes under a different name get their own key.
	assert.Equal(t, uint32(0), stats.Deduplicated)

	docs := Documents(results)
	require.Len(t, docs, 3)
	names := []string{docs[0].Filename, docs[1].Filename, docs[2].Filename}
	assert.ElementsMatch(t, []string{"a.pdf", "b.png", "copy.png"}, names)

	_, stats, err = ing.IngestDirectory(context.Background(), root, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), stats.Matched)
	assert.Equal(t, uint32(3), stats.Deduplicated)
}

func TestIngestDirectory_RequiresRoot(t *testing.T) {
	ing, _ := newIngestor(t)
	_, _, err := ing.IngestDirectory(context.Background(), "  ", true)
	assert.Error(t, err)
}

func TestHelpers(t *testing.T) {
	assert.True(t, AllowedExt(".PDF"))
	assert.False(t, AllowedExt("exe"))
	assert.True(t, IsHidden("/tmp/.git"))
	assert.False(t, IsHidden("."))
	assert.Equal(t, "image/jpeg", ContentType("JPEG"))
	assert.Equal(t, "application/octet-stream", ContentType("bin"))
}
