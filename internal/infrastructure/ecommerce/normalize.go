package ecommerce

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName canonicalizes a buyer or product name from a webhook:
// Unicode NFC, collapsed whitespace, and title casing when the source
// shouted in all-caps or mumbled in all-lowercase.
func NormalizeName(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return s
	}
	hasLetter := strings.IndexFunc(s, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
	}) >= 0
	if hasLetter && (s == strings.ToUpper(s) || s == strings.ToLower(s)) {
		s = cases.Title(language.Und).String(strings.ToLower(s))
	}
	return s
}

// NormalizeEmail lowercases and trims an email address for ERP matching.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseDecimal parses a marketplace money string, returning zero on empty
// or malformed input.
func ParseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
