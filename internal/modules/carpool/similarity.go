package carpool

import (
	"math"
	"strings"
	"unicode"
)

// Text-heuristic scores, highest first.
const (
	scoreExact           = 100.0
	scoreBothContained   = 85.0
	scoreSameDestination = 70.0
	scoreSameOrigin      = 60.0
)

// TextSimilarity scores two trips by their origin/destination text, 0..100.
func TextSimilarity(fromA, toA, fromB, toB string) float64 {
	fromA, toA = normalize(fromA), normalize(toA)
	fromB, toB = normalize(fromB), normalize(toB)
	if (fromA == "" && toA == "") || (fromB == "" && toB == "") {
		return 0
	}

	switch {
	case fromA == fromB && toA == toB:
		return scoreExact
	case contains(fromA, fromB) && contains(toA, toB):
		return scoreBothContained
	case toA != "" && toA == toB:
		return scoreSameDestination
	case fromA != "" && fromA == fromB:
		return scoreSameOrigin
	}
	return jaccard(tokens(fromA+" "+toA), tokens(fromB+" "+toB)) * 100
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// contains is a symmetric substring test; empty strings never match.
func contains(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func tokens(s string) map[string]struct{} {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return math.Max(0, math.Min(1, float64(inter)/float64(union)))
}
