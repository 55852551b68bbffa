package study

import (
	"sort"
	"strings"

	"github.com/emandor/medai_service/internal/model"
)

// matchScore ranks how well q matches a set; 0 means no match.
func matchScore(s model.CardSet, q string) int {
	title := strings.ToLower(strings.TrimSpace(s.Title))
	switch {
	case title == q:
		return 4
	case strings.HasPrefix(title, q):
		return 3
	case strings.Contains(title, q):
		return 2
	case strings.Contains(strings.ToLower(s.Description), q):
		return 1
	}
	return 0
}

// Rank orders search hits: exact title, title prefix, title substring, then
// description substring. Ties go to more likes, then newer sets.
func Rank(sets []model.CardSet, q string) []model.CardSet {
	q = strings.ToLower(strings.TrimSpace(q))
	type scored struct {
		set   model.CardSet
		score int
	}
	hits := make([]scored, 0, len(sets))
	for _, s := range sets {
		if sc := matchScore(s, q); sc > 0 {
			hits = append(hits, scored{s, sc})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.set.Likes != b.set.Likes {
			return a.set.Likes > b.set.Likes
		}
		if !a.set.CreatedAt.Equal(b.set.CreatedAt) {
			return a.set.CreatedAt.After(b.set.CreatedAt)
		}
		return a.set.ID > b.set.ID
	})
	out := make([]model.CardSet, len(hits))
	for i, h := range hits {
		out[i] = h.set
	}
	return out
}
