// Package document detects the kind of an uploaded exam file and loads it.
package document

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/mcq-extractor/internal/domain"
)

// DefaultMaxBytes bounds file size when the caller does not configure one.
const DefaultMaxBytes = 50 * 1024 * 1024

// DetectKind maps a declared media type to a document kind.
// It never inspects content; parameters and case are ignored.
func DetectKind(mediaType string) domain.DocumentKind {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}

	switch mt {
	case domain.MediaTypePDF:
		return domain.KindPDF
	case domain.MediaTypeDOCX:
		return domain.KindWord
	default:
		return domain.KindUnknown
	}
}

// MediaTypeForName returns the media type a browser would declare for the file name.
func MediaTypeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return domain.MediaTypePDF
	case ".docx":
		return domain.MediaTypeDOCX
	default:
		return "application/octet-stream"
	}
}

// NewDocument validates an in-memory upload and detects its kind.
func NewDocument(name, mediaType string, data []byte, maxBytes int64) (*domain.Document, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	kind := DetectKind(mediaType)
	if kind == domain.KindUnknown {
		return nil, domain.ValidationError(
			fmt.Sprintf("unsupported file type %q, please choose a PDF or Word document", mediaType), nil)
	}

	if len(data) == 0 {
		return nil, domain.ValidationError("file is empty", nil)
	}

	if int64(len(data)) > maxBytes {
		return nil, domain.ValidationError(
			fmt.Sprintf("file is too large (%d bytes, limit %d)", len(data), maxBytes), nil)
	}

	return &domain.Document{
		Name:      name,
		MediaType: mediaType,
		Kind:      kind,
		Data:      data,
	}, nil
}

// LoadFile reads a document from disk, deriving the declared media type from its extension.
func LoadFile(path string, maxBytes int64) (*domain.Document, error) {
	if strings.TrimSpace(path) == "" {
		return nil, domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return nil, domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return nil, domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	mediaType := MediaTypeForName(path)
	if DetectKind(mediaType) == domain.KindUnknown {
		return nil, domain.ValidationError(
			fmt.Sprintf("unsupported file extension %q, please choose a .pdf or .docx file", filepath.Ext(path)), nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("cannot read file: %s", path), err)
	}

	return NewDocument(filepath.Base(path), mediaType, data, maxBytes)
}
