package labtext

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lab-report-companion/internal/domain"
)

// Structural line patterns, in priority order. Each captures a test name,
// a numeric value token, and optionally a unit token. With-unit layouts are
// tried before unit-less ones so a line carrying a unit is never parsed as
// a bare value.
var (
	// "WBC 7.2 10^3/µL"
	nameValueUnitPattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9\s\-]*?)\s+([\d.]+)\s+([A-Za-z0-9/^µ%°\-\+]+)$`)

	// "Glucose: 95 mg/dL"
	colonValueUnitPattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9\s\-]*?):\s*([\d.]+)\s+([A-Za-z0-9/^µ%°\-\+]+)$`)

	// "Hemoglobin 14.5g/dL". The unit must start with a non-digit so the
	// value token is never split to fabricate a unit from its own digits.
	attachedUnitPattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9\s\-]*?)\s+([\d.]+)([A-Za-z/^µ%°][A-Za-z0-9/^µ%°\-\+]*)$`)

	// "Hematocrit: 42.5"
	colonValuePattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9\s\-]*?):\s*([\d.]+)\s*$`)

	// "Platelets 250"
	nameValuePattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9\s\-]*?)\s+([\d.]+)\s*$`)

	// "WBC    7.2    10^3/µL" (wide-table layout)
	wideTablePattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9\s\-]*?)\s{2,}([\d.]+)\s{2,}([A-Za-z0-9/^µ%°\-\+]+)$`)

	// "WBC\t7.2\t10^3/µL"
	tabTablePattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9\s\-]*?)\t+([\d.]+)\t+([A-Za-z0-9/^µ%°\-\+]+)$`)

	anyLetterPattern = regexp.MustCompile(`[a-zA-Z]`)
	anyDigitPattern  = regexp.MustCompile(`\d`)
)

// linePatterns is the attempt order per line. hasUnit marks patterns whose
// third capture group is a unit token.
var linePatterns = []struct {
	re      *regexp.Regexp
	hasUnit bool
}{
	{nameValueUnitPattern, true},
	{colonValueUnitPattern, true},
	{attachedUnitPattern, true},
	{colonValuePattern, false},
	{nameValuePattern, false},
	{wideTablePattern, true},
	{tabTablePattern, true},
}

// Parser extracts supported-test measurements from report text. It is
// stateless and safe for concurrent use.
type Parser struct{}

// NewParser creates a new lab report line parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse normalizes raw report text and returns one measurement per
// recognized line, preserving input line order. Lines that do not carry a
// supported test result are dropped, never reported as errors.
func (p *Parser) Parse(rawText string) []domain.Measurement {
	if rawText == "" {
		return nil
	}

	text := Normalize(rawText)

	var measurements []domain.Measurement
	for _, line := range strings.Split(text, "\n") {
		if m, ok := ParseLine(line); ok {
			measurements = append(measurements, m)
		}
	}
	return measurements
}

// ParseLine parses a single normalized line. The second return is false
// when the line is rejected: too short, header-style, structurally
// unrecognized, non-numeric value token on every matching pattern, or a
// test name outside the supported panels.
func ParseLine(line string) (domain.Measurement, bool) {
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) < 3 {
		return domain.Measurement{}, false
	}

	// Header lines: all caps with no digits anywhere.
	if isUpperLine(line) && !anyDigitPattern.MatchString(line) {
		return domain.Measurement{}, false
	}

	// A test result line needs both a name and a value.
	if !anyLetterPattern.MatchString(line) || !anyDigitPattern.MatchString(line) {
		return domain.Measurement{}, false
	}

	for _, pat := range linePatterns {
		groups := pat.re.FindStringSubmatch(line)
		if groups == nil {
			continue
		}

		// A value token like "7..2" fails to parse; the pattern is
		// treated as non-matching and the next one is tried.
		value, err := strconv.ParseFloat(groups[2], 64)
		if err != nil {
			continue
		}

		name := strings.TrimSpace(groups[1])

		unit := ""
		if pat.hasUnit {
			unit = strings.TrimSpace(groups[3])
		}

		if !IsSupportedTest(NormalizeTestName(name)) {
			return domain.Measurement{}, false
		}

		return domain.Measurement{
			Name:  name,
			Value: value,
			Unit:  unit,
		}, true
	}

	return domain.Measurement{}, false
}

// isUpperLine reports whether the line has at least one cased character and
// none of them lowercase, the shape of a section header.
func isUpperLine(s string) bool {
	hasUpper := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	return hasUpper
}
