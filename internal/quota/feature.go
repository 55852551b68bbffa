package quota

import "errors"

var ErrUnknownFeature = errors.New("unknown feature")

// Feature is one of the metered actions.
type Feature string

const (
	AIQuestions Feature = "aiQuestions"
	CardSets    Feature = "cardSets"
	PDFs        Feature = "pdfs"
)

var Features = []Feature{AIQuestions, CardSets, PDFs}

func ParseFeature(s string) (Feature, error) {
	f := Feature(s)
	if !f.Valid() {
		return "", ErrUnknownFeature
	}
	return f, nil
}

func (f Feature) Valid() bool {
	switch f {
	case AIQuestions, CardSets, PDFs:
		return true
	}
	return false
}

// columns returns the counter and limit columns for f. Only valid features reach SQL.
func (f Feature) columns() (counter, limit string) {
	switch f {
	case AIQuestions:
		return "ai_questions_generated", "ai_questions_limit"
	case CardSets:
		return "card_sets_studied", "card_sets_limit"
	case PDFs:
		return "pdfs_processed", "pdfs_limit"
	}
	return "", ""
}

func (f Feature) Label() string {
	switch f {
	case AIQuestions:
		return "AI question generations"
	case CardSets:
		return "card set study sessions"
	case PDFs:
		return "PDF conversions"
	}
	return string(f)
}
