package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Declared media types accepted for upload
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeJPEG = "image/jpeg"
	MediaTypeHTML = "text/html"
)

// DocumentKind is derived once from a file's declared media type
type DocumentKind string

const (
	KindPDF     DocumentKind = "pdf"
	KindWord    DocumentKind = "word"
	KindUnknown DocumentKind = "unknown"
)

// Document represents an uploaded exam file
type Document struct {
	Name      string
	MediaType string
	Kind      DocumentKind
	Data      []byte
}

// PageImage represents a single rendered PDF page
type PageImage struct {
	PageNumber int
	Data       []byte // JPEG bytes
	Width      int
	Height     int
}

// Base64 returns the page encoded for transport
func (p PageImage) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Data)
}

// DataURL returns the page as an inline image URL
func (p PageImage) DataURL() string {
	return "data:" + MediaTypeJPEG + ";base64," + p.Base64()
}

// ContentChunk is a bounded slice of the HTML converted from a word document
type ContentChunk struct {
	Index int
	HTML  string
}

// Encoded returns the chunk base64-encoded for transport
func (c ContentChunk) Encoded() string {
	return base64.StdEncoding.EncodeToString([]byte(c.HTML))
}

// ContentUnit is one page image or one HTML chunk submitted for extraction
type ContentUnit struct {
	MediaType string
	Label     string
	Data      string // base64 payload
}

// UnitFromPage wraps a rendered page as a content unit
func UnitFromPage(p PageImage) ContentUnit {
	return ContentUnit{
		MediaType: MediaTypeJPEG,
		Label:     fmt.Sprintf("page %d", p.PageNumber),
		Data:      p.Base64(),
	}
}

// UnitFromChunk wraps an HTML chunk as a content unit
func UnitFromChunk(c ContentChunk) ContentUnit {
	return ContentUnit{
		MediaType: MediaTypeHTML,
		Label:     fmt.Sprintf("chunk %d", c.Index+1),
		Data:      c.Encoded(),
	}
}

// MCQRecord is a single extracted multiple-choice question
type MCQRecord struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	ChoiceA       string `json:"choiceA"`
	ChoiceB       string `json:"choiceB"`
	ChoiceC       string `json:"choiceC"`
	ChoiceD       string `json:"choiceD"`
	ChoiceE       string `json:"choiceE"`
	CorrectAnswer string `json:"correctAnswer"` // "" or one of A-E
	Passage       string `json:"passage"`
}

// NormalizeAnswer upper-cases the answer, keeps only its letters, and
// returns it when exactly one letter in A-E remains. Anything else is "".
func NormalizeAnswer(s string) string {
	var letters []rune
	for _, r := range strings.ToUpper(s) {
		if r >= 'A' && r <= 'Z' {
			letters = append(letters, r)
		}
	}
	if len(letters) == 1 && letters[0] <= 'E' {
		return string(letters)
	}
	return ""
}

// RunState is the orchestrator state
type RunState string

const (
	StateIdle       RunState = "idle"
	StateAnalyzing  RunState = "analyzing"
	StateExtracting RunState = "extracting"
	StateComplete   RunState = "complete"
	StateError      RunState = "error"
)

// IsTerminal reports whether a run in this state can be restarted
func (s RunState) IsTerminal() bool {
	return s == StateIdle || s == StateComplete || s == StateError
}

// ProcessingStatus is a transient snapshot of a run's progress
type ProcessingStatus struct {
	State     RunState `json:"state"`
	Total     int      `json:"total"`
	Current   int      `json:"current"`
	Message   string   `json:"message"`
	Cancelled bool     `json:"cancelled,omitempty"`
	Records   int      `json:"records"`
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart      EventType = "start"
	EventStatus     EventType = "status"
	EventRecords    EventType = "records"
	EventUnitFailed EventType = "unit_failed"
	EventError      EventType = "error"
	EventComplete   EventType = "complete"
	EventCancelled  EventType = "cancelled"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type      EventType        `json:"type"`
	Status    ProcessingStatus `json:"status"`
	Payload   interface{}      `json:"payload,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// RunSummary is returned once a run settles
type RunSummary struct {
	Records     int
	Units       int
	Groups      int
	FailedUnits int
	CacheHits   int
	Cancelled   bool
	Duration    time.Duration
}
