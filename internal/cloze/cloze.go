// Package cloze builds fill-in-the-blank exercises from note text.
package cloze

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Blank replaces every hidden answer in the masked text.
const Blank = "_____"

var (
	ErrNoBlanks   = errors.New("text has no {{answer}} blanks")
	ErrUnbalanced = errors.New("unclosed {{ in text")
	ErrEmptyBlank = errors.New("blank without an answer")
)

type Parsed struct {
	Masked  string
	Answers []string
}

// Parse masks every {{answer}} marker, keeping answers in reading order.
func Parse(text string) (Parsed, error) {
	var b strings.Builder
	var answers []string
	rest := text
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[open+2:], "}}")
		if end < 0 {
			return Parsed{}, ErrUnbalanced
		}
		answer := strings.TrimSpace(rest[open+2 : open+2+end])
		if answer == "" {
			return Parsed{}, ErrEmptyBlank
		}
		b.WriteString(rest[:open])
		b.WriteString(Blank)
		answers = append(answers, answer)
		rest = rest[open+2+end+2:]
	}
	if len(answers) == 0 {
		return Parsed{}, ErrNoBlanks
	}
	return Parsed{Masked: b.String(), Answers: answers}, nil
}

var sentenceEnd = regexp.MustCompile(`[.!?]+\s+|\n+`)

var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "also": {}, "because": {}, "before": {}, "being": {},
	"between": {}, "could": {}, "does": {}, "during": {}, "each": {}, "from": {},
	"have": {}, "into": {}, "more": {}, "most": {}, "only": {}, "other": {},
	"should": {}, "some": {}, "such": {}, "than": {}, "that": {}, "their": {},
	"there": {}, "these": {}, "they": {}, "this": {}, "those": {}, "through": {},
	"under": {}, "very": {}, "were": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "while": {}, "with": {}, "within": {}, "would": {},
}

const minAnswerRunes = 4

// Auto blanks the longest content word of each sentence, up to limit blanks.
// Earlier words win ties.
func Auto(text string, limit int) (Parsed, error) {
	if limit <= 0 {
		return Parsed{}, ErrNoBlanks
	}
	var b strings.Builder
	var answers []string

	start := 0
	bounds := sentenceEnd.FindAllStringIndex(text, -1)
	bounds = append(bounds, []int{len(text), len(text)})
	for _, bd := range bounds {
		sentence := text[start:bd[0]]
		if len(answers) < limit {
			if lo, hi, ok := longestWord(sentence); ok {
				answers = append(answers, sentence[lo:hi])
				sentence = sentence[:lo] + Blank + sentence[hi:]
			}
		}
		b.WriteString(sentence)
		b.WriteString(text[bd[0]:bd[1]])
		start = bd[1]
	}
	if len(answers) == 0 {
		return Parsed{}, ErrNoBlanks
	}
	return Parsed{Masked: b.String(), Answers: answers}, nil
}

// longestWord returns the byte span of the longest non-stopword.
func longestWord(s string) (lo, hi int, ok bool) {
	best := 0
	wordStart := -1
	consider := func(from, to int) {
		w := s[from:to]
		n := utf8.RuneCountInString(w)
		if n < minAnswerRunes || n <= best {
			return
		}
		if _, stop := stopwords[strings.ToLower(w)]; stop {
			return
		}
		best, lo, hi, ok = n, from, to, true
	}
	for i, r := range s {
		word := unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-'
		switch {
		case word && wordStart < 0:
			wordStart = i
		case !word && wordStart >= 0:
			consider(wordStart, i)
			wordStart = -1
		}
	}
	if wordStart >= 0 {
		consider(wordStart, len(s))
	}
	return lo, hi, ok
}
