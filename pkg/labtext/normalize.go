// Package labtext turns noisy OCR or vision-model output from lab reports
// into structured (name, value, unit) measurements. It repairs common
// digit/letter recognition mistakes, parses line-oriented result layouts,
// and pre-filters names to the supported clinical panels.
//
// Every function in this package is total: malformed input yields empty or
// reduced output, never an error.
package labtext

import (
	"regexp"
	"strings"
)

// Character-repair patterns for digit/letter recognition confusions.
// Substitutions fire only in numeric contexts (adjacent digits or a token
// boundary next to a digit) so ordinary words are never rewritten.
var (
	blankRunPattern     = regexp.MustCompile(`\n{3,}`)
	horizontalWSPattern = regexp.MustCompile(`[ \t]+`)
	invisiblePattern    = regexp.MustCompile("[\u200B-\u200F\uFEFF]")
)

// ocrRepairs is the ordered substitution set. Order matters: boundary forms
// may expose new between-digit contexts for later passes.
var ocrRepairs = []struct {
	pattern *regexp.Regexp
	replace string
}{
	// lowercase l misread for 1
	{regexp.MustCompile(`(\d)l(\d)`), "${1}1${2}"},
	{regexp.MustCompile(`\bl(\d)`), "1${1}"},
	{regexp.MustCompile(`(\d)l\b`), "${1}1"},

	// capital O misread for 0
	{regexp.MustCompile(`(\d)O(\d)`), "${1}0${2}"},
	{regexp.MustCompile(`\bO(\d)`), "0${1}"},
	{regexp.MustCompile(`(\d)O\b`), "${1}0"},

	// capital I misread for 1
	{regexp.MustCompile(`(\d)I(\d)`), "${1}1${2}"},
	{regexp.MustCompile(`\bI(\d)`), "1${1}"},
	{regexp.MustCompile(`(\d)I\b`), "${1}1"},

	// capital S misread for 5, only after a digit
	{regexp.MustCompile(`(\d)S(\d)`), "${1}5${2}"},
	{regexp.MustCompile(`(\d)S\b`), "${1}5"},

	// capital B misread for 8, only between digits
	{regexp.MustCompile(`(\d)B(\d)`), "${1}8${2}"},
}

// Normalize cleans raw extracted text for line-oriented parsing: it unifies
// line endings, collapses horizontal whitespace, repairs digit/letter
// recognition confusions, strips invisible characters, trims every line,
// and collapses runs of blank lines to a single blank line.
//
// Normalize is idempotent: applying it to its own output returns the same
// text. Empty input yields empty output.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = horizontalWSPattern.ReplaceAllString(line, " ")
	}
	text = strings.Join(lines, "\n")

	// Repeat until stable: a substitution can turn a letter into a digit
	// and expose a numeric context for an earlier pattern. Each pass
	// strictly reduces the letter count, so this terminates.
	for changed := true; changed; {
		changed = false
		for _, r := range ocrRepairs {
			next := r.pattern.ReplaceAllString(text, r.replace)
			if next != text {
				text = next
				changed = true
			}
		}
	}

	text = invisiblePattern.ReplaceAllString(text, "")

	lines = strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
