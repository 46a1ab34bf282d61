package scraper

import "strings"

// functionWords are short, high-frequency words that are distinctive per
// language and largely insensitive to topic. Detection scores a body of
// text against each list and returns the best match.
var functionWords = map[string][]string{
	"en": {"the", "and", "of", "to", "in", "is", "that", "it", "for", "with", "as", "was", "on", "are", "this"},
	"es": {"el", "la", "de", "que", "y", "en", "los", "del", "se", "las", "por", "con", "para", "una", "es"},
	"fr": {"le", "la", "de", "et", "les", "des", "un", "une", "du", "est", "que", "pour", "dans", "ce", "avec"},
	"de": {"der", "die", "das", "und", "ist", "von", "zu", "den", "mit", "dem", "nicht", "ein", "eine", "fur", "auch"},
	"pt": {"o", "a", "de", "que", "e", "do", "da", "em", "um", "para", "com", "nao", "uma", "os", "no"},
	"it": {"il", "la", "di", "che", "e", "un", "per", "in", "non", "una", "con", "sono", "del", "della", "le"},
}

// languageOrder breaks ties deterministically, English first.
var languageOrder = []string{"en", "es", "fr", "de", "pt", "it"}

// DetectLanguage scores body against each language's function-word list and
// returns the ISO 639-1 code with the highest score. Ties, and texts with no
// match at all, resolve to English.
func DetectLanguage(body string) string {
	tokens := strings.Fields(strings.ToLower(body))
	if len(tokens) == 0 {
		return "en"
	}

	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[trimPunct(t)]++
	}

	bestLang := "en"
	bestScore := -1
	for _, lang := range languageOrder {
		score := 0
		for _, w := range functionWords[lang] {
			score += counts[w]
		}
		if score > bestScore {
			bestScore = score
			bestLang = lang
		}
	}

	if bestScore <= 0 {
		return "en"
	}
	return bestLang
}

func trimPunct(s string) string {
	return strings.Trim(s, ".,;:!?\"'()[]{}")
}
