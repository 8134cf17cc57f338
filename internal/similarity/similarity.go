package similarity

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

var (
	extensionPattern  = regexp.MustCompile(`(?i)\.(pdf|docx)$`)
	separatorPattern  = regexp.MustCompile(`[-_]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	// Version markers and filename noise that say nothing about which
	// document this is: "v2", "version 3", bare years, "final", "draft"
	// and friends. Stripped as whole words only.
	noisePattern = regexp.MustCompile(`(?i)\b(v\d+|version \d+|\d{4}|final|revised|draft|new|updated|old|copy|backup)\b`)
)

// Normalize reduces a display name to the part that identifies the document:
// lowercased, extension and version/noise tokens stripped, separator and
// whitespace runs collapsed to single spaces.
func Normalize(name string) string {
	s := strings.ToLower(name)
	s = extensionPattern.ReplaceAllString(s, "")
	s = separatorPattern.ReplaceAllString(s, " ")
	s = noisePattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Score returns a name similarity in [0,1]. Names that normalize to the same
// string score 1.0; a name stripped to nothing scores 0.0 against anything,
// so noise-only names are never treated as similar. Otherwise the score is
// 1 - editDistance/maxLen over the normalized strings.
//
// This is a heuristic for candidate detection, not a security comparison.
func Score(a, b string) float64 {
	na := Normalize(a)
	nb := Normalize(b)

	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}

	dist := levenshtein.Distance(na, nb, nil)
	maxLen := utf8.RuneCountInString(na)
	if l := utf8.RuneCountInString(nb); l > maxLen {
		maxLen = l
	}
	return 1.0 - float64(dist)/float64(maxLen)
}
