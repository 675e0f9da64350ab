package labtext

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lab-report-companion/internal/domain"
)

// Per-panel keyword lists covering standard abbreviations and spelled-out
// names. Matching against these is a pre-filter only; exact alias
// resolution decides the final identity.
var panelKeywords = map[domain.PanelKey][]string{
	domain.PANEL_CBC: {
		"wbc", "white blood", "leukocyte",
		"rbc", "red blood", "erythrocyte",
		"hemoglobin", "haemoglobin", "hgb", "hb",
		"hematocrit", "haematocrit", "hct",
		"platelet", "plt", "thrombocyte",
		"mcv", "mean corpuscular", "mean cell volume",
	},
	domain.PANEL_METABOLIC: {
		"glucose", "glu", "blood sugar", "fasting glucose",
		"bun", "urea nitrogen", "urea",
		"creatinine", "creat",
		"sodium", "na",
		"potassium", "k",
		"chloride", "cl",
		"co2", "carbon dioxide", "bicarbonate", "hco3",
		"calcium",
	},
	domain.PANEL_LIPID: {
		"cholesterol", "chol",
		"ldl", "low density",
		"hdl", "high density",
		"triglyceride", "trig", "tg",
	},
}

// excludedTests names tests outside the supported panels whose spellings
// share substrings with supported keywords. A name containing any of these
// is rejected even when a panel keyword also matches; the glycated
// hemoglobin test would otherwise pass on its "hb" substring.
var excludedTests = []string{
	"hba1c", "a1c", "hemoglobin a1c",
	"vitamin", "vit",
	"tsh", "thyroid",
	"t3", "t4",
	"ferritin",
	"b12", "cobalamin",
	"folate", "folic acid",
	"psa", "prostate",
	"crp", "c-reactive",
	"albumin",
	"bilirubin",
	"alt", "ast", "alp",
	"ggt",
	"protein",
	"magnesium", "mg",
	"phosphorus", "phosphate",
}

// Terms of three characters or fewer match on word boundaries instead of
// plain containment, which hits spurious substrings inside longer words:
// "k" inside "ketones", "mg" inside a unit fragment.
const shortTermRunes = 3

var (
	shortKeywordPatterns   = buildShortTermPatterns(allKeywords())
	shortExclusionPatterns = buildShortTermPatterns(excludedTests)
)

func allKeywords() []string {
	var terms []string
	for _, keywords := range panelKeywords {
		terms = append(terms, keywords...)
	}
	return terms
}

func buildShortTermPatterns(terms []string) map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp)
	for _, term := range terms {
		if utf8.RuneCountInString(term) <= shortTermRunes {
			patterns[term] = regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`)
		}
	}
	return patterns
}

// matchesTerm applies the boundary rule for short terms and containment for
// the rest.
func matchesTerm(name, term string, shortPatterns map[string]*regexp.Regexp) bool {
	if pattern, ok := shortPatterns[term]; ok {
		return pattern.MatchString(name)
	}
	return strings.Contains(name, term)
}

var (
	testNamePunctPattern = regexp.MustCompile(`[^\w\s\-()]`)
	whitespaceRunPattern = regexp.MustCompile(`\s+`)
)

// NormalizeTestName lowercases a raw test name, strips characters that
// interfere with keyword matching, and collapses whitespace. The result is
// the input shape expected by IsSupportedTest.
func NormalizeTestName(name string) string {
	if name == "" {
		return ""
	}

	n := strings.ToLower(name)
	n = testNamePunctPattern.ReplaceAllString(n, "")
	n = whitespaceRunPattern.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// IsSupportedTest reports whether a normalized test name plausibly belongs
// to one of the supported panels: it must match a panel keyword and must
// not match an exclusion term.
func IsSupportedTest(normalizedName string) bool {
	name := strings.ToLower(strings.TrimSpace(normalizedName))
	if name == "" {
		return false
	}

	if !containsPanelKeyword(name) {
		return false
	}
	return !isExcludedTest(name)
}

func containsPanelKeyword(name string) bool {
	for _, keywords := range panelKeywords {
		for _, keyword := range keywords {
			if matchesTerm(name, keyword, shortKeywordPatterns) {
				return true
			}
		}
	}
	return false
}

func isExcludedTest(name string) bool {
	for _, term := range excludedTests {
		if matchesTerm(name, term, shortExclusionPatterns) {
			return true
		}
	}
	return false
}

// SupportedKeywords returns the per-panel keyword lists. The result is a
// copy; callers cannot mutate the filter.
func SupportedKeywords() map[domain.PanelKey][]string {
	out := make(map[domain.PanelKey][]string, len(panelKeywords))
	for panel, keywords := range panelKeywords {
		out[panel] = append([]string(nil), keywords...)
	}
	return out
}
