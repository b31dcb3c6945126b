package docx

import (
	"strings"
	"unicode/utf8"

	"github.com/spherical/mcq-extractor/internal/domain"
)

// DefaultMaxChars is the default chunk budget in characters
const DefaultMaxChars = 30000

const paragraphEnd = "</p>"

// Split packs consecutive paragraphs into chunks of at most maxChars runes.
// Pieces end at a closing </p>; a piece that alone exceeds the budget is
// emitted as its own chunk rather than split. Concatenating the chunk HTML
// reproduces the input exactly.
func Split(html string, maxChars int) []domain.ContentChunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if html == "" {
		return nil
	}

	var (
		chunks  []domain.ContentChunk
		current strings.Builder
		size    int
	)

	emit := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, domain.ContentChunk{Index: len(chunks), HTML: current.String()})
		current.Reset()
		size = 0
	}

	for _, piece := range strings.SplitAfter(html, paragraphEnd) {
		if piece == "" {
			continue
		}
		n := utf8.RuneCountInString(piece)
		if size > 0 && size+n > maxChars {
			emit()
		}
		current.WriteString(piece)
		size += n
	}
	emit()

	return chunks
}
