package psv

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// Combining diacritics (umlaut, acute, cedilla, ring) that some
	// PDF-to-text pipelines emit as stray code points, sometimes followed
	// by a linefeed.
	strayDiacritics = regexp.MustCompile("[¨´¸°]\n?")
	// Printable accent literals that only appear as garbled accents when
	// followed by a linefeed (e.g. grave comes through as ` plus LF).
	accentLiterals = regexp.MustCompile("[\\^`~]\n")

	substitutions = strings.NewReplacer(
		"ø", "o",
		"Ø", "O",
		"ß", "ss",
		"æ", "ae",
		"Æ", "AE",
	)
)

// FixUnicode strips known bad sequences produced by PDF-to-text pipelines
// and applies NFKC normalisation.
func FixUnicode(text string) string {
	return norm.NFKC.String(recoverAccents(text))
}

// recoverAccents removes garbled accent sequences and substitutes the
// handful of single characters (o/O slash, sharp s, ae ligatures) that have
// plain-text equivalents.
func recoverAccents(text string) string {
	text = strayDiacritics.ReplaceAllString(text, "")
	text = accentLiterals.ReplaceAllString(text, "")
	return substitutions.Replace(text)
}
