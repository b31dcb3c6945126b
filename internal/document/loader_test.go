package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/mcq-extractor/internal/domain"
)

func TestDetectKind(t *testing.T) {
	tests := []struct {
		mediaType string
		want      domain.DocumentKind
	}{
		{"application/pdf", domain.KindPDF},
		{"APPLICATION/PDF", domain.KindPDF},
		{"application/pdf; name=exam.pdf", domain.KindPDF},
		{domain.MediaTypeDOCX, domain.KindWord},
		{"application/msword", domain.KindUnknown},
		{"image/png", domain.KindUnknown},
		{"", domain.KindUnknown},
		{"not a media type;;", domain.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.mediaType, func(t *testing.T) {
			got := DetectKind(tt.mediaType)
			assert.Equal(t, tt.want, got)
			// Idempotent
			assert.Equal(t, got, DetectKind(tt.mediaType))
		})
	}
}

func TestMediaTypeForName(t *testing.T) {
	assert.Equal(t, domain.MediaTypePDF, MediaTypeForName("exam.PDF"))
	assert.Equal(t, domain.MediaTypeDOCX, MediaTypeForName("/tmp/exam.docx"))
	assert.Equal(t, "application/octet-stream", MediaTypeForName("exam.doc"))
}

func TestNewDocument(t *testing.T) {
	doc, err := NewDocument("exam.pdf", domain.MediaTypePDF, []byte("%PDF-1.4"), 0)
	require.NoError(t, err)
	assert.Equal(t, domain.KindPDF, doc.Kind)

	_, err = NewDocument("exam.txt", "text/plain", []byte("x"), 0)
	assert.True(t, domain.IsValidation(err))

	_, err = NewDocument("exam.pdf", domain.MediaTypePDF, nil, 0)
	assert.True(t, domain.IsValidation(err))

	_, err = NewDocument("exam.pdf", domain.MediaTypePDF, []byte("123456"), 4)
	assert.True(t, domain.IsValidation(err))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	pdfPath := filepath.Join(dir, "exam.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4 test"), 0o600))

	doc, err := LoadFile(pdfPath, 0)
	require.NoError(t, err)
	assert.Equal(t, "exam.pdf", doc.Name)
	assert.Equal(t, domain.KindPDF, doc.Kind)

	txtPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("hello"), 0o600))

	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"missing", filepath.Join(dir, "missing.pdf")},
		{"directory", dir},
		{"unsupported", txtPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(tt.path, 0)
			assert.True(t, domain.IsValidation(err), "got %v", err)
		})
	}
}
