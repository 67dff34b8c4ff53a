package discovery

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxKeywordLength bounds a normalized keyword, counted in characters (runes).
const MaxKeywordLength = 200

// NormalizeKeyword trims the keyword and converts it to NFC so decomposed
// Hangul (as typed on macOS) searches the same as composed input.
func NormalizeKeyword(raw string) string {
	return strings.TrimSpace(norm.NFC.String(raw))
}

// ValidateKeyword normalizes raw and rejects blank or over-length keywords.
func ValidateKeyword(raw string) (string, error) {
	keyword := NormalizeKeyword(raw)
	if keyword == "" {
		return "", ErrInvalidKeyword
	}
	if utf8.RuneCountInString(keyword) > MaxKeywordLength {
		return "", ErrKeywordTooLong
	}
	return keyword, nil
}
