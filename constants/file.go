package constants

import "strings"

// FileTypes holds the allowed document formats recorded on review documents.
var FileTypes = []string{"PDF", "IMAGE", "TXT"}

const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
	TXT   = "TXT"
)

// AllowedExtensions holds the document extensions accepted for review.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"bmp":  {},
	"tif":  {},
	"tiff": {},
	"webp": {},
	"txt":  {},
	"md":   {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns the document format for an extension, or "" if unsupported.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff", "webp":
		return IMAGE
	case "txt", "md":
		return TXT
	default:
		return ""
	}
}

// SessionIDMinLength is the shortest session id the agent runtime accepts.
const SessionIDMinLength = 33

// SessionIDMaxLength caps derived session ids.
const SessionIDMaxLength = 100
