package export

import (
	"io"
	"strings"

	"github.com/spherical/mcq-extractor/internal/domain"
)

const separator = "----------------------------------------"

// Text renders a plain-text transcript: the question, its lettered choices
// and the answer when known. Records are separated by a dashed line.
func Text(records []domain.MCQRecord) string {
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString("\n" + separator + "\n\n")
		}
		b.WriteString(r.Question + "\n")
		b.WriteString("A) " + r.ChoiceA + "\n")
		b.WriteString("B) " + r.ChoiceB + "\n")
		b.WriteString("C) " + r.ChoiceC + "\n")
		b.WriteString("D) " + r.ChoiceD + "\n")
		if r.ChoiceE != "" {
			b.WriteString("E) " + r.ChoiceE + "\n")
		}
		if r.CorrectAnswer != "" {
			b.WriteString("Answer: " + r.CorrectAnswer + "\n")
		}
	}
	return b.String()
}

// WriteText writes the transcript to w
func WriteText(w io.Writer, records []domain.MCQRecord) error {
	if _, err := io.WriteString(w, Text(records)); err != nil {
		return domain.IOError("Failed to write transcript", err)
	}
	return nil
}
