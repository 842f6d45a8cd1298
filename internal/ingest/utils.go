package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/review-orchestrator/constants"
)

// AllowedExt checks if a file extension is in the allowed document set.
func AllowedExt(ext string) bool {
	ext = constants.NormalizeExt(ext)
	_, ok := constants.AllowedExtensions[ext]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return base != "." && strings.HasPrefix(base, ".")
}

// ContentType is the MIME type stored alongside an uploaded document.
func ContentType(ext string) string {
	switch constants.NormalizeExt(ext) {
	case "pdf":
		return "application/pdf"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tif", "tiff":
		return "image/tiff"
	case "webp":
		return "image/webp"
	case "md":
		return "text/markdown"
	case "txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
