package search

import (
	"math"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/sahilm/fuzzy"
)

// DefaultThreshold is the largest field distance still counted as a match.
const DefaultThreshold = 0.6

// Term match qualities, from best to worst.
const (
	qualityExact       = 1.0
	qualityPrefix      = 0.85
	qualityTypo        = 0.75
	qualitySubstring   = 0.7
	qualitySubsequence = 0.6
)

// Terms shorter than this only match exactly, by prefix or by substring.
const minTypoLen = 4

// Field is one weighted, searchable attribute of T.
type Field[T any] struct {
	Name   string
	Weight float64
	Values func(T) []string
}

// Scored pairs an item with its match score. Lower is better; 0 is a perfect match.
type Scored[T any] struct {
	Item  T
	Score float64
}

// Matcher ranks items against free-text queries across weighted fields.
// It is stateless and safe for concurrent use.
type Matcher[T any] struct {
	fields    []Field[T]
	threshold float64
}

// NewMatcher returns a Matcher over fields. A threshold <= 0 uses DefaultThreshold.
func NewMatcher[T any](threshold float64, fields ...Field[T]) *Matcher[T] {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher[T]{fields: fields, threshold: threshold}
}

// Match scores every item against query and returns those whose best field
// distance is within the threshold, best first. Ties keep input order.
func (m *Matcher[T]) Match(query string, items []T) []Scored[T] {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	var out []Scored[T]
	for _, item := range items {
		score, ok := m.score(terms, item)
		if ok {
			out = append(out, Scored[T]{Item: item, Score: score})
		}
	}
	slices.SortStableFunc(out, func(a, b Scored[T]) int {
		switch {
		case a.Score < b.Score:
			return -1
		case a.Score > b.Score:
			return 1
		}
		return 0
	})
	return out
}

// score combines the distances of every matching field as a weighted product.
func (m *Matcher[T]) score(terms []string, item T) (float64, bool) {
	score := 1.0
	matched := false
	for _, f := range m.fields {
		var tokens []string
		for _, v := range f.Values(item) {
			tokens = append(tokens, Tokenize(v)...)
		}
		if len(tokens) == 0 {
			continue
		}
		d := fieldDistance(terms, tokens)
		if d > m.threshold {
			continue
		}
		matched = true
		score *= pow(d, f.Weight)
	}
	return score, matched
}

// fieldDistance is 1 minus the mean best quality of each term against tokens.
func fieldDistance(terms, tokens []string) float64 {
	var total float64
	for _, term := range terms {
		total += termQuality(term, tokens)
	}
	return 1 - total/float64(len(terms))
}

func termQuality(term string, tokens []string) float64 {
	best := 0.0
	for _, tok := range tokens {
		if q := tokenQuality(term, tok); q > best {
			best = q
			if best == qualityExact {
				return best
			}
		}
	}
	if best >= qualitySubsequence {
		return best
	}
	for _, match := range fuzzy.Find(term, tokens) {
		if q := subsequenceQuality(term, match); q > best {
			best = q
		}
	}
	return best
}

func tokenQuality(term, tok string) float64 {
	switch {
	case term == tok:
		return qualityExact
	case strings.HasPrefix(tok, term):
		return qualityPrefix
	}
	termLen := utf8.RuneCountInString(term)
	maxEdits := 1
	if termLen >= 7 {
		maxEdits = 2
	}
	if termLen >= minTypoLen && levenshtein.ComputeDistance(term, tok) <= maxEdits {
		return qualityTypo
	}
	if strings.Contains(tok, term) {
		return qualitySubstring
	}
	return 0
}

// subsequenceQuality scales an ordered-subsequence hit by how much of the
// token the term covers and how contiguous the matched characters are.
func subsequenceQuality(term string, match fuzzy.Match) float64 {
	idx := match.MatchedIndexes
	if len(idx) == 0 {
		return 0
	}
	coverage := float64(utf8.RuneCountInString(term)) / float64(utf8.RuneCountInString(match.Str))
	if coverage > 1 {
		coverage = 1
	}
	runs := 1
	for i := 1; i < len(idx); i++ {
		_, size := utf8.DecodeRuneInString(match.Str[idx[i-1]:])
		if idx[i] != idx[i-1]+size {
			runs++
		}
	}
	adjacency := 1 / float64(runs)
	return qualitySubsequence * coverage * (0.5 + 0.5*adjacency)
}

// Tokenize lowercases s and splits it on anything that is not a letter or digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// pow handles 0^w as 0 so a perfect field drives the product to 0.
func pow(base, exp float64) float64 {
	if base <= 0 {
		return 0
	}
	return math.Pow(base, exp)
}
