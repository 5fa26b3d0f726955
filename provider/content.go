package provider

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType is used when nothing better can be detected.
const DefaultContentType = "application/octet-stream"

// DetectContentType sniffs the leading bytes of the file at path, falling
// back to its extension.
func DetectContentType(path string) string {
	if m, err := mimetype.DetectFile(path); err == nil && m.String() != DefaultContentType {
		return m.String()
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return DefaultContentType
}
