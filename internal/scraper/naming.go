package scraper

import (
	"regexp"
	"strings"
	"unicode"

	"review-insights-platform/models"
)

const (
	// MaxDerivedNameLength keeps derived names under MongoDB's collection name limit.
	MaxDerivedNameLength = 60
	// MaxSanitizedNameLength caps names reported by scrapers.
	MaxSanitizedNameLength = 50
)

var turkishFold = strings.NewReplacer(
	"ç", "c", "ğ", "g", "ı", "i", "ö", "o", "ş", "s", "ü", "u",
	"Ç", "c", "Ğ", "g", "İ", "i", "Ö", "o", "Ş", "s", "Ü", "u",
)

var (
	underscoreRun = regexp.MustCompile(`_+`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// DeriveCollectionName builds "<platform>_reviews_<term>" from a free-text
// search term or product name. The same input always yields the same name.
func DeriveCollectionName(term string, platform models.Platform) string {
	prefix := strings.ReplaceAll(strings.ToLower(string(platform)), " ", "") + "_reviews"

	safe := strings.ToLower(turkishFold.Replace(term))
	safe = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case unicode.IsSpace(r):
			return ' '
		}
		return -1
	}, safe)
	safe = whitespaceRun.ReplaceAllString(strings.TrimSpace(safe), "_")
	safe = strings.Trim(underscoreRun.ReplaceAllString(safe, "_"), "_")
	if safe == "" {
		return prefix
	}

	name := prefix + "_" + safe
	if len(name) > MaxDerivedNameLength {
		keep := MaxDerivedNameLength - len(prefix) - 1
		if keep <= 0 {
			return prefix
		}
		name = prefix + "_" + strings.TrimRight(safe[:keep], "_")
	}
	return name
}

// SanitizeCollectionName makes a scraper-reported name safe to use as a
// storage key: at most 50 characters, each outside [A-Za-z0-9_] replaced by '_'.
func SanitizeCollectionName(name string) string {
	var b strings.Builder
	n := 0
	for _, r := range name {
		if n == MaxSanitizedNameLength {
			break
		}
		n++
		if r < unicode.MaxASCII && (r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}
