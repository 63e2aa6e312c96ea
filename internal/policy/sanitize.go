package policy

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Sanitize strips all markup from user supplied text and returns it unescaped,
// ready to be stored as plain text.
func Sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
