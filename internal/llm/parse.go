package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/spherical/mcq-extractor/internal/domain"
)

// looseString accepts a JSON string, number, bool or null. Models
// occasionally emit `"correctAnswer": 2` or `null` for optional fields.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}

	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		*s = looseString(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		*s = looseString(strconv.FormatBool(t))
	default:
		*s = ""
	}
	return nil
}

type rawRecord struct {
	Question      looseString `json:"question"`
	ChoiceA       looseString `json:"choiceA"`
	ChoiceB       looseString `json:"choiceB"`
	ChoiceC       looseString `json:"choiceC"`
	ChoiceD       looseString `json:"choiceD"`
	ChoiceE       looseString `json:"choiceE"`
	CorrectAnswer looseString `json:"correctAnswer"`
	Passage       looseString `json:"passage"`
}

// StripCodeFences removes a surrounding markdown code fence, with or
// without a language tag.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	s = strings.TrimLeftFunc(s, unicode.IsLetter)
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseRecords decodes a model response into records. The payload may be a
// bare array or an object with a "questions" array, optionally fenced.
// Elements that are not objects, or that miss the question or any of
// choices A-D, are dropped and counted. Every kept record receives a fresh ID.
func ParseRecords(raw string) ([]domain.MCQRecord, int, error) {
	body := StripCodeFences(raw)
	if body == "" {
		return []domain.MCQRecord{}, 0, nil
	}

	var elems []json.RawMessage
	switch body[0] {
	case '[':
		if err := json.Unmarshal([]byte(body), &elems); err != nil {
			return nil, 0, fmt.Errorf("decode question array: %w", err)
		}
	case '{':
		var wrapper struct {
			Questions []json.RawMessage `json:"questions"`
		}
		if err := json.Unmarshal([]byte(body), &wrapper); err != nil {
			return nil, 0, fmt.Errorf("decode question object: %w", err)
		}
		elems = wrapper.Questions
	default:
		return nil, 0, fmt.Errorf("response is not JSON: %.40q", body)
	}

	records := make([]domain.MCQRecord, 0, len(elems))
	dropped := 0
	for _, elem := range elems {
		var item rawRecord
		if err := json.Unmarshal(elem, &item); err != nil {
			dropped++
			continue
		}
		rec := domain.MCQRecord{
			Question:      clean(item.Question),
			ChoiceA:       clean(item.ChoiceA),
			ChoiceB:       clean(item.ChoiceB),
			ChoiceC:       clean(item.ChoiceC),
			ChoiceD:       clean(item.ChoiceD),
			ChoiceE:       clean(item.ChoiceE),
			CorrectAnswer: domain.NormalizeAnswer(string(item.CorrectAnswer)),
			Passage:       clean(item.Passage),
		}
		if !complete(rec) {
			dropped++
			continue
		}
		rec.ID = uuid.NewString()
		records = append(records, rec)
	}

	return records, dropped, nil
}

func clean(s looseString) string {
	return strings.TrimSpace(string(s))
}

func complete(r domain.MCQRecord) bool {
	for _, v := range []string{r.Question, r.ChoiceA, r.ChoiceB, r.ChoiceC, r.ChoiceD} {
		if v == "" {
			return false
		}
	}
	return true
}
