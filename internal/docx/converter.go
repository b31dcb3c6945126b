// Package docx converts Word documents to HTML and splits the HTML into
// bounded chunks for extraction.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"html"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/spherical/mcq-extractor/internal/domain"
)

const documentPart = "word/document.xml"

// Converter implements domain.Converter for .docx files
type Converter struct {
	policy *bluemonday.Policy
}

// NewConverter creates a converter with a UGC sanitizing policy
func NewConverter() *Converter {
	return &Converter{policy: bluemonday.UGCPolicy()}
}

// Convert turns a .docx into ordered HTML chunks of at most maxChars runes each
// (a single oversized paragraph becomes its own chunk).
func (c *Converter) Convert(ctx context.Context, data []byte, maxChars int) ([]domain.ContentChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := c.ToHTML(data)
	if err != nil {
		return nil, err
	}

	return Split(doc, maxChars), nil
}

// ToHTML converts the document body to a single HTML string. Bold and italic
// runs are kept; colors and other formatting are dropped.
func (c *Converter) ToHTML(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.ConversionError("Failed to open word document", err)
	}

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == documentPart {
			part = f
			break
		}
	}
	if part == nil {
		return "", domain.ConversionError(documentPart+" not found in archive", nil)
	}

	rc, err := part.Open()
	if err != nil {
		return "", domain.ConversionError("Failed to open "+documentPart, err)
	}
	defer rc.Close()

	raw, err := renderBody(rc)
	if err != nil {
		return "", domain.ConversionError("Failed to parse "+documentPart, err)
	}

	return c.policy.Sanitize(raw), nil
}

type segment struct {
	text   string
	bold   bool
	italic bool
	br     bool
}

// renderBody walks document.xml and writes paragraphs, headings and tables.
func renderBody(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var (
		out       strings.Builder
		segs      []segment
		style     string
		inRun     bool
		inText    bool
		bold      bool
		italic    bool
		cellFirst []bool
	)

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				out.WriteString("<table>")
			case "tr":
				out.WriteString("<tr>")
			case "tc":
				out.WriteString("<td>")
				cellFirst = append(cellFirst, true)
			case "p":
				segs = segs[:0]
				style = ""
			case "pStyle":
				style = attr(t, "val")
			case "r":
				inRun = true
				bold, italic = false, false
			case "rStyle":
				if inRun {
					switch strings.ToLower(attr(t, "val")) {
					case "strong":
						bold = true
					case "emphasis":
						italic = true
					}
				}
			case "b":
				if inRun {
					bold = toggleOn(t)
				}
			case "i":
				if inRun {
					italic = toggleOn(t)
				}
			case "t":
				inText = inRun
			case "tab":
				if inRun {
					segs = append(segs, segment{text: "\t", bold: bold, italic: italic})
				}
			case "br", "cr":
				if inRun {
					segs = append(segs, segment{br: true})
				}
			}

		case xml.CharData:
			if inText {
				segs = append(segs, segment{text: string(t), bold: bold, italic: italic})
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "r":
				inRun = false
			case "p":
				inner, empty := renderSegments(segs)
				if empty {
					continue
				}
				if n := len(cellFirst); n > 0 {
					if !cellFirst[n-1] {
						out.WriteString("<br/>")
					}
					out.WriteString(inner)
					cellFirst[n-1] = false
					continue
				}
				if level := headingLevel(style); level > 0 {
					tag := string(rune('0' + level))
					out.WriteString("<h" + tag + ">" + inner + "</h" + tag + ">")
				} else {
					out.WriteString("<p>" + inner + "</p>")
				}
			case "tc":
				out.WriteString("</td>")
				if n := len(cellFirst); n > 0 {
					cellFirst = cellFirst[:n-1]
				}
			case "tr":
				out.WriteString("</tr>")
			case "tbl":
				out.WriteString("</table>")
			}
		}
	}

	return out.String(), nil
}

// renderSegments merges adjacent runs with equal formatting and reports
// whether the paragraph carries no visible text.
func renderSegments(segs []segment) (string, bool) {
	var out strings.Builder
	var text strings.Builder
	empty := true

	flush := func(b, i bool) {
		if text.Len() == 0 {
			return
		}
		s := html.EscapeString(text.String())
		if i {
			s = "<em>" + s + "</em>"
		}
		if b {
			s = "<strong>" + s + "</strong>"
		}
		out.WriteString(s)
		text.Reset()
	}

	var curBold, curItalic bool
	for _, s := range segs {
		if s.br {
			flush(curBold, curItalic)
			out.WriteString("<br/>")
			continue
		}
		if s.bold != curBold || s.italic != curItalic {
			flush(curBold, curItalic)
			curBold, curItalic = s.bold, s.italic
		}
		if strings.TrimSpace(s.text) != "" {
			empty = false
		}
		text.WriteString(s.text)
	}
	flush(curBold, curItalic)

	return out.String(), empty
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// toggleOn reads an OOXML on/off property such as <w:b/> or <w:b w:val="0"/>.
func toggleOn(el xml.StartElement) bool {
	switch strings.ToLower(attr(el, "val")) {
	case "0", "false", "off", "none":
		return false
	default:
		return true
	}
}

// headingLevel extracts the heading level from a paragraph style name.
// e.g. "Heading1" → 1, "Title" → 1, "Subtitle" → 2.
func headingLevel(style string) int {
	lower := strings.ToLower(style)

	switch lower {
	case "title":
		return 1
	case "subtitle":
		return 2
	}

	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if strings.HasPrefix(lower, prefix) {
			rest := lower[len(prefix):]
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}
