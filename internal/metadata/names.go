package metadata

import "strings"

// Minimal English inflection for resource name variants. Covers the
// regular rules plus the irregulars that show up in admin schemas.
var irregularSingulars = map[string]string{
	"people":   "person",
	"children": "child",
	"men":      "man",
	"women":    "woman",
	"statuses": "status",
	"indices":  "index",
}

var irregularPlurals = map[string]string{
	"person": "people",
	"child":  "children",
	"man":    "men",
	"woman":  "women",
	"status": "statuses",
	"index":  "indices",
}

// Singularize converts a plural snake_case word to singular form.
// Already-singular input comes back unchanged for the common cases.
func Singularize(word string) string {
	if s, ok := irregularSingulars[word]; ok {
		return s
	}
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 3:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "xes"), strings.HasSuffix(word, "ches"),
		strings.HasSuffix(word, "shes"), strings.HasSuffix(word, "sses"),
		strings.HasSuffix(word, "zes"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "ss"), strings.HasSuffix(word, "us"), strings.HasSuffix(word, "is"):
		return word
	case strings.HasSuffix(word, "s") && len(word) > 1:
		return word[:len(word)-1]
	default:
		return word
	}
}

// Pluralize converts a singular snake_case word to plural form.
func Pluralize(word string) string {
	if p, ok := irregularPlurals[word]; ok {
		return p
	}
	switch {
	case strings.HasSuffix(word, "y") && len(word) > 1 && !isVowel(word[len(word)-2]):
		return word[:len(word)-1] + "ies"
	case strings.HasSuffix(word, "s"), strings.HasSuffix(word, "x"),
		strings.HasSuffix(word, "z"), strings.HasSuffix(word, "ch"),
		strings.HasSuffix(word, "sh"):
		return word + "es"
	default:
		return word + "s"
	}
}

// Underscore converts CamelCase or kebab-case input to snake_case.
// Runs of uppercase stay one word, so "USERS" becomes "users".
func Underscore(name string) string {
	var b strings.Builder
	var prev rune
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			if prev >= 'a' && prev <= 'z' || prev >= '0' && prev <= '9' {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		case r == '-' || r == ' ':
			if prev != 0 && prev != '-' && prev != ' ' {
				b.WriteByte('_')
			}
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}

func isVowel(c byte) bool {
	switch c {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
