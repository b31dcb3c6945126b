package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/mcq-extractor/internal/domain"
)

const documentTemplate = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>%s</w:body>
</w:document>`

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = fmt.Fprintf(w, documentTemplate, body)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func para(text string) string {
	return `<w:p><w:r><w:t>` + text + `</w:t></w:r></w:p>`
}

func TestToHTML_Paragraphs(t *testing.T) {
	body := `<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Biology Exam</w:t></w:r></w:p>` +
		para("1. Which organelle produces energy") +
		`<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>A. Mitochondria</w:t></w:r></w:p>` +
		`<w:p><w:r><w:rPr><w:i/></w:rPr><w:t>B. Ribosome</w:t></w:r></w:p>` +
		`<w:p><w:r><w:rPr><w:b w:val="0"/></w:rPr><w:t>C. Nucleus</w:t></w:r></w:p>` +
		`<w:p></w:p>`

	html, err := NewConverter().ToHTML(buildDocx(t, body))
	require.NoError(t, err)

	assert.Contains(t, html, "<h1>Biology Exam</h1>")
	assert.Contains(t, html, "<p>1. Which organelle produces energy</p>")
	assert.Contains(t, html, "<p><strong>A. Mitochondria</strong></p>")
	assert.Contains(t, html, "<p><em>B. Ribosome</em></p>")
	assert.Contains(t, html, "<p>C. Nucleus</p>")
	assert.Equal(t, 4, strings.Count(html, "</p>"))
}

func TestToHTML_CharacterStyles(t *testing.T) {
	body := `<w:p><w:r><w:t xml:space="preserve">A) </w:t></w:r><w:r><w:rPr><w:b/></w:rPr><w:t>Paris</w:t></w:r></w:p>` +
		`<w:p><w:r><w:rPr><w:rStyle w:val="Strong"/></w:rPr><w:t>B) Lyon</w:t></w:r></w:p>` +
		`<w:p><w:r><w:rPr><w:rStyle w:val="Emphasis"/></w:rPr><w:t>C) Nice</w:t></w:r></w:p>` +
		`<w:p><w:r><w:rPr><w:rStyle w:val="Strong"/><w:b w:val="0"/></w:rPr><w:t>D) Lille</w:t></w:r></w:p>` +
		`<w:p><w:r><w:rPr><w:rStyle w:val="Hyperlink"/></w:rPr><w:t>E) Metz</w:t></w:r></w:p>`

	html, err := NewConverter().ToHTML(buildDocx(t, body))
	require.NoError(t, err)

	assert.Contains(t, html, "<p>A) <strong>Paris</strong></p>")
	assert.Contains(t, html, "<p><strong>B) Lyon</strong></p>")
	assert.Contains(t, html, "<p><em>C) Nice</em></p>")
	assert.Contains(t, html, "<p>D) Lille</p>")
	assert.Contains(t, html, "<p>E) Metz</p>")
}

func TestToHTML_Table(t *testing.T) {
	body := `<w:tbl><w:tr>` +
		`<w:tc>` + para("1") + `</w:tc>` +
		`<w:tc>` + para("B") + para("note") + `</w:tc>` +
		`</w:tr></w:tbl>`

	html, err := NewConverter().ToHTML(buildDocx(t, body))
	require.NoError(t, err)

	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<td>1</td>")
	assert.Contains(t, html, "B<br/>note")
	assert.NotContains(t, html, "</p>")
}

func TestToHTML_EscapesText(t *testing.T) {
	html, err := NewConverter().ToHTML(buildDocx(t, para("x &lt; y")))
	require.NoError(t, err)
	assert.Contains(t, html, "x &lt; y")
	assert.NotContains(t, html, "<y")
}

func TestToHTML_InvalidArchive(t *testing.T) {
	_, err := NewConverter().ToHTML([]byte("not a zip"))
	require.Error(t, err)
	typ, _ := domain.TypeOf(err)
	assert.Equal(t, domain.ErrorTypeConversion, typ)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err = zw.Create("word/other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = NewConverter().ToHTML(buf.Bytes())
	assert.Error(t, err)
}

func TestSplit_UnderLimitIsSingleChunk(t *testing.T) {
	html := "<p>one</p><p>two</p><p>three</p>"
	chunks := Split(html, 1000)
	require.Len(t, chunks, 1)
	assert.Equal(t, html, chunks[0].HTML)
}

func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, Split("", 100))
}

func TestSplit_ReconstructsAndBounds(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "<p>Question %d: %s</p>", i, strings.Repeat("é", i%7*5))
	}
	b.WriteString("<table><tr><td>trailing</td></tr></table>")
	html := b.String()

	const limit = 120
	chunks := Split(html, limit)
	require.Greater(t, len(chunks), 1)

	var rebuilt strings.Builder
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.HTML), limit)
		rebuilt.WriteString(c.HTML)
	}
	assert.Equal(t, html, rebuilt.String())
}

func TestSplit_OversizedParagraphKept(t *testing.T) {
	big := "<p>" + strings.Repeat("x", 200) + "</p>"
	html := "<p>a</p>" + big + "<p>b</p>"

	chunks := Split(html, 50)
	require.Len(t, chunks, 3)
	assert.Equal(t, "<p>a</p>", chunks[0].HTML)
	assert.Equal(t, big, chunks[1].HTML)
	assert.Equal(t, "<p>b</p>", chunks[2].HTML)
}

func TestConvert_EncodesChunks(t *testing.T) {
	data := buildDocx(t, para("alpha")+para("beta")+para("gamma"))

	chunks, err := NewConverter().Convert(context.Background(), data, 14)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	decoded, err := base64.StdEncoding.DecodeString(chunks[1].Encoded())
	require.NoError(t, err)
	assert.Equal(t, "<p>beta</p>", string(decoded))

	unit := domain.UnitFromChunk(chunks[1])
	assert.Equal(t, domain.MediaTypeHTML, unit.MediaType)
	assert.Equal(t, "chunk 2", unit.Label)
}
