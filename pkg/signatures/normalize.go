package signatures

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds text into the canonical form signatures match against:
// NFKC (collapses fullwidth/compatibility forms used for obfuscation),
// lowercase, zero-width characters stripped, whitespace runs collapsed.
func Normalize(text string) string {
	folded := norm.NFKC.String(text)

	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := false
	for _, r := range folded {
		switch {
		case isZeroWidth(r):
			continue
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		default:
			b.WriteRune(unicode.ToLower(r))
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff', '\u00ad':
		return true
	}
	return false
}

// containsPhrase reports whether the normalized phrase occurs in text.
// Both sides are expected to already be normalized.
func containsPhrase(text, phrase string) bool {
	return phrase != "" && strings.Contains(text, phrase)
}

// tokenSet splits normalized text into a set of word tokens.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[tok] = struct{}{}
	}
	return set
}

// containment scores how much of the phrase survives in the text's token
// set: matched phrase tokens / total phrase tokens. Single-token phrases
// score 0 here; they only count as exact hits.
func containment(phrase string, textTokens map[string]struct{}) float64 {
	var total, hit int
	for _, tok := range strings.Fields(phrase) {
		total++
		if _, ok := textTokens[tok]; ok {
			hit++
		}
	}
	if total < 2 {
		return 0
	}
	return float64(hit) / float64(total)
}
