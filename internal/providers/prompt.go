package providers

import (
	"fmt"
	"strings"

	"github.com/emandor/medai_service/internal/textutil"
)

const questionsInstruction = `Return ONLY a JSON array. Each element is an object with keys:
"question": string,
"options": array of 4 short strings,
"answer": string (the correct option, copied exactly),
"explanation": string (one or two sentences).
No Markdown, no code fences, no extra text. Answer in the language of the source material.`

// maxSourceChars caps the study material pasted into a prompt.
const maxSourceChars = 12000

// BuildQuestionPrompt asks for count multiple choice questions about topic,
// grounded on text when it is given.
func BuildQuestionPrompt(topic, text string, count int) string {
	var b strings.Builder
	b.WriteString(questionsInstruction)
	fmt.Fprintf(&b, "\n\nWrite %d exam-style multiple choice questions for medical students", count)
	if topic = strings.TrimSpace(topic); topic != "" {
		fmt.Fprintf(&b, " on the topic %q", topic)
	}
	b.WriteString(".\n")
	if text = strings.TrimSpace(text); text != "" {
		text = textutil.Truncate(text, maxSourceChars)
		b.WriteString("Use only facts from this material:\n")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}
