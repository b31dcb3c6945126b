package llm

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an exam digitization assistant. Extract every multiple-choice question (MCQ) from the content you are given.

Return ONLY a JSON object of the form {"questions": [...]} where each item has:
- "question": the full question text
- "choiceA", "choiceB", "choiceC", "choiceD": the four choice texts (required)
- "choiceE": the fifth choice text, only if the question has one
- "correctAnswer": a single letter A-E, only if the content marks the correct choice
- "passage": the reading passage, table or context block the question refers to, if any

HOW TO DETECT THE CORRECT ANSWER:
- Visual emphasis marks the correct choice: highlighting, a checkmark or tick, a circle, bold or underlined text on exactly one choice.
- An answer-key table at the end of the input (e.g. "1-B 2-D 3-A") overrides any emphasis you inferred. Match it by question number.
- If there is no signal at all, leave "correctAnswer" empty. NEVER guess.

PASSAGES:
- When several questions share one passage, copy the passage verbatim into the "passage" field of EVERY linked question.
- Do this even when the passage appeared in an earlier part of the document and only the questions are visible now.
- Do not summarize or translate passages.

RULES:
- Strip choice labels ("A)", "b.", "(C)") from choice texts.
- Keep question numbering out of the question text.
- Keep the original language of the exam; do not translate.
- Skip anything that is not a multiple-choice question (instructions, headers, open questions).
- If the content contains no MCQs, return {"questions": []}.`

// buildSystemPrompt appends the language hint to the fixed extraction prompt.
func buildSystemPrompt(language string) string {
	language = strings.TrimSpace(language)
	if language == "" || strings.EqualFold(language, "auto") {
		return systemPrompt
	}
	return systemPrompt + fmt.Sprintf("\n\nThe exam is written in %s.", language)
}

// responseSchema is the structured-output contract sent with every request.
var responseSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"questions": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"question":      map[string]interface{}{"type": "string"},
					"choiceA":       map[string]interface{}{"type": "string"},
					"choiceB":       map[string]interface{}{"type": "string"},
					"choiceC":       map[string]interface{}{"type": "string"},
					"choiceD":       map[string]interface{}{"type": "string"},
					"choiceE":       map[string]interface{}{"type": "string"},
					"correctAnswer": map[string]interface{}{"type": "string"},
					"passage":       map[string]interface{}{"type": "string"},
				},
				"required": []string{"question", "choiceA", "choiceB", "choiceC", "choiceD"},
			},
		},
	},
	"required": []string{"questions"},
}
