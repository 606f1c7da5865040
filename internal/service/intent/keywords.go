package intent

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`the and for are but not you all can had her was one our out day get
		has him his how its may new now old see two who boy did she use way what when with
		want will would like just know think good make help`) {
		stopWords[w] = true
	}
}

// ExtractKeywords returns the distinct content words of message in the order
// they first appear. Words are lowercased, stripped of punctuation, longer
// than two characters and not stop words. Letters from any script are kept.
func ExtractKeywords(message string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', unicode.IsMark(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, message)

	var out []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) <= 2 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// Query joins the keywords of message into a search query.
func Query(message string) string {
	return strings.Join(ExtractKeywords(message), " ")
}
