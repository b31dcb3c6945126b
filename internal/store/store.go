// Package store holds the records of the current extraction run.
package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spherical/mcq-extractor/internal/domain"
)

// Editable record fields, named as in the record's JSON form.
const (
	FieldQuestion      = "question"
	FieldChoiceA       = "choiceA"
	FieldChoiceB       = "choiceB"
	FieldChoiceC       = "choiceC"
	FieldChoiceD       = "choiceD"
	FieldChoiceE       = "choiceE"
	FieldCorrectAnswer = "correctAnswer"
	FieldPassage       = "passage"
)

// RecordPatch carries a partial edit; nil fields are left unchanged.
type RecordPatch struct {
	Question      *string `json:"question,omitempty"`
	ChoiceA       *string `json:"choiceA,omitempty"`
	ChoiceB       *string `json:"choiceB,omitempty"`
	ChoiceC       *string `json:"choiceC,omitempty"`
	ChoiceD       *string `json:"choiceD,omitempty"`
	ChoiceE       *string `json:"choiceE,omitempty"`
	CorrectAnswer *string `json:"correctAnswer,omitempty"`
	Passage       *string `json:"passage,omitempty"`
}

// Store is an ordered, mutex-guarded collection of records.
type Store struct {
	mu      sync.RWMutex
	records []domain.MCQRecord
}

// New creates an empty store
func New() *Store {
	return &Store{}
}

// Append adds records in arrival order
func (s *Store) Append(records ...domain.MCQRecord) {
	if len(records) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

// Reset drops every record
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

// Len returns the record count
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// List returns a copy of all records in arrival order
func (s *Store) List() []domain.MCQRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.MCQRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Get returns the record with the given id
func (s *Store) Get(id string) (domain.MCQRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.MCQRecord{}, domain.NotFoundError("record " + id + " not found")
	}
	return s.records[i], nil
}

// Update sets one field of one record
func (s *Store) Update(id, field, value string) (domain.MCQRecord, error) {
	patch := RecordPatch{}
	switch field {
	case FieldQuestion:
		patch.Question = &value
	case FieldChoiceA:
		patch.ChoiceA = &value
	case FieldChoiceB:
		patch.ChoiceB = &value
	case FieldChoiceC:
		patch.ChoiceC = &value
	case FieldChoiceD:
		patch.ChoiceD = &value
	case FieldChoiceE:
		patch.ChoiceE = &value
	case FieldCorrectAnswer:
		patch.CorrectAnswer = &value
	case FieldPassage:
		patch.Passage = &value
	default:
		return domain.MCQRecord{}, domain.ValidationError(fmt.Sprintf("unknown field %q", field), nil)
	}
	return s.Patch(id, patch)
}

// Patch applies a partial edit atomically. The answer is normalized; a
// non-empty value that is not a single letter A-E is rejected.
func (s *Store) Patch(id string, patch RecordPatch) (domain.MCQRecord, error) {
	var answer string
	if patch.CorrectAnswer != nil {
		answer = domain.NormalizeAnswer(*patch.CorrectAnswer)
		if answer == "" && strings.TrimSpace(*patch.CorrectAnswer) != "" {
			return domain.MCQRecord{}, domain.ValidationError(
				fmt.Sprintf("correct answer must be one of A-E, got %q", *patch.CorrectAnswer), nil)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.MCQRecord{}, domain.NotFoundError("record " + id + " not found")
	}

	r := &s.records[i]
	set(&r.Question, patch.Question)
	set(&r.ChoiceA, patch.ChoiceA)
	set(&r.ChoiceB, patch.ChoiceB)
	set(&r.ChoiceC, patch.ChoiceC)
	set(&r.ChoiceD, patch.ChoiceD)
	set(&r.ChoiceE, patch.ChoiceE)
	set(&r.Passage, patch.Passage)
	if patch.CorrectAnswer != nil {
		r.CorrectAnswer = answer
	}

	return *r, nil
}

// Delete removes a record
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.NotFoundError("record " + id + " not found")
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	return nil
}

func (s *Store) indexOf(id string) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
