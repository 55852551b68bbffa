package providers

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var ErrNoQuestions = errors.New("no usable questions in model output")

type Question struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

// ParseQuestions pulls questions out of a model reply. It accepts a bare
// JSON array, an object with a "questions" array, either wrapped in a code
// fence or surrounded by prose. Malformed items are dropped.
func ParseQuestions(content string) ([]Question, error) {
	candidates := []string{strings.TrimSpace(content)}
	if s := extractCodeFence(content); s != "" {
		candidates = append(candidates, s)
	}
	if s := extractBalanced(content, '[', ']'); s != "" {
		candidates = append(candidates, s)
	}
	if s := extractBalanced(content, '{', '}'); s != "" {
		candidates = append(candidates, s)
	}

	for _, c := range candidates {
		if qs, ok := decodeQuestions(c); ok {
			if valid := clean(qs); len(valid) > 0 {
				return valid, nil
			}
		}
	}
	return nil, ErrNoQuestions
}

func decodeQuestions(s string) ([]Question, bool) {
	var arr []Question
	if json.Unmarshal([]byte(s), &arr) == nil {
		return arr, true
	}
	var wrapped struct {
		Questions []Question `json:"questions"`
	}
	if json.Unmarshal([]byte(s), &wrapped) == nil && wrapped.Questions != nil {
		return wrapped.Questions, true
	}
	return nil, false
}

var rxFence = regexp.MustCompile("(?is)```(?:json)?\\s*([\\[{][\\s\\S]*?[\\]}])\\s*```")

func extractCodeFence(s string) string {
	if m := rxFence.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}

// extractBalanced returns the first open..close span, skipping brackets inside strings.
func extractBalanced(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return ""
	}
	level, inStr, esc := 0, false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case esc:
			esc = false
		case inStr && ch == '\\':
			esc = true
		case ch == '"':
			inStr = !inStr
		case inStr:
		case ch == open:
			level++
		case ch == close:
			level--
			if level == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func clean(qs []Question) []Question {
	out := make([]Question, 0, len(qs))
	for _, q := range qs {
		q.Question = strings.TrimSpace(q.Question)
		q.Explanation = strings.TrimSpace(q.Explanation)
		opts := q.Options[:0]
		for _, o := range q.Options {
			if o = strings.TrimSpace(o); o != "" {
				opts = append(opts, o)
			}
		}
		q.Options = opts
		q.Answer = resolveAnswer(strings.TrimSpace(q.Answer), q.Options)
		if q.Question == "" || len(q.Options) < 2 || q.Answer == "" {
			continue
		}
		out = append(out, q)
	}
	return out
}

var rxLetterPrefix = regexp.MustCompile(`^\(?([A-Za-z])[\).:]?\s*`)

// resolveAnswer maps "B", "b)" or "B. text" onto the option text. An answer
// that matches no option is rejected.
func resolveAnswer(ans string, options []string) string {
	for _, o := range options {
		if strings.EqualFold(o, ans) {
			return o
		}
	}
	if m := rxLetterPrefix.FindStringSubmatch(ans); m != nil {
		idx := int(strings.ToUpper(m[1])[0] - 'A')
		rest := strings.TrimSpace(ans[len(m[0]):])
		if idx >= 0 && idx < len(options) && (rest == "" || strings.EqualFold(rest, options[idx])) {
			return options[idx]
		}
	}
	return ""
}
