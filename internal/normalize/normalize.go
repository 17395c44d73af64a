// Package normalize canonicalizes embed content into a comparable form and
// derives a deterministic fingerprint from it. Two embeds that say the same
// thing — modulo case, punctuation, emoji, and whitespace tricks — normalize
// to the same string and therefore hash to the same fingerprint, which is
// what the duplicate detector keys on.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/gatewall/relay/internal/embed"
)

// partSeparator joins the semantic parts of an embed before cleanup. The
// separator itself is stripped during normalization; it only ensures parts
// don't run into each other before whitespace collapsing.
const partSeparator = "|"

// Normalize flattens the semantic text of an embed into a lowercase,
// whitespace-collapsed string containing only letters, digits, and spaces.
// Parts are concatenated in a fixed order (title, description, color, then
// each field's name and value in sequence), so embeds with identical content
// always produce identical output regardless of incidental formatting.
func Normalize(e embed.Embed) string {
	parts := make([]string, 0, 3+2*len(e.Fields))

	if e.Title != "" {
		parts = append(parts, e.Title)
	}
	if e.Description != "" {
		parts = append(parts, e.Description)
	}
	if e.Color != nil {
		parts = append(parts, strconv.Itoa(*e.Color))
	}
	for _, f := range e.Fields {
		parts = append(parts, f.Name, f.Value)
	}

	text := strings.ToLower(strings.Join(parts, partSeparator))
	text = collapseWhitespace(text)
	// Stripping can leave new runs of spaces (e.g. "a ! b"), so collapse
	// once more to keep the normal form fully trimmed.
	return collapseWhitespace(stripSymbols(text))
}

// Fingerprint returns the lowercase hex SHA-256 digest of the UTF-8 bytes
// of normalized text.
func Fingerprint(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// collapseWhitespace replaces every run of whitespace with a single space
// and trims leading/trailing spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripSymbols removes every rune that is not a lowercase latin letter, a
// digit, a space, or a Cyrillic letter (а-я, ё). The Cyrillic range is kept
// because a large share of the user base posts in Russian; stripping it
// would collapse distinct messages to identical fingerprints.
func stripSymbols(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune(r)
		case r >= 'а' && r <= 'я', r == 'ё':
			b.WriteRune(r)
		}
	}
	return b.String()
}
