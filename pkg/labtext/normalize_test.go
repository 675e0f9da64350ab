package labtext

import (
	"testing"
)

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Empty input", "", ""},
		{"CRLF line endings", "WBC 7.2\r\nRBC 4.8", "WBC 7.2\nRBC 4.8"},
		{"Bare CR line endings", "WBC 7.2\rRBC 4.8", "WBC 7.2\nRBC 4.8"},
		{"Horizontal runs collapse", "Glucose:    95   mg/dL", "Glucose: 95 mg/dL"},
		{"Tabs collapse to space", "WBC\t\t7.2\t10^3/µL", "WBC 7.2 10^3/µL"},
		{"Line trim", "   WBC 7.2   \n   RBC 4.8   ", "WBC 7.2\nRBC 4.8"},
		{"Blank line runs collapse", "WBC 7.2\n\n\n\n\nRBC 4.8", "WBC 7.2\n\nRBC 4.8"},
		{"Whitespace-only lines count as blank", "WBC 7.2\n \n \n \nRBC 4.8", "WBC 7.2\n\nRBC 4.8"},
		{"Surrounding blank lines stripped", "\n\nWBC 7.2\n\n", "WBC 7.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeCharacterRepairs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Lowercase l between digits", "Glucose: 9l5 mg/dL", "Glucose: 915 mg/dL"},
		{"Lowercase l leading a number", "WBC l2.5", "WBC 12.5"},
		{"Lowercase l trailing a number", "Platelets 25l", "Platelets 251"},
		{"Capital O between digits", "Sodium 14O2", "Sodium 1402"},
		{"Capital O leading a number", "Sodium O5", "Sodium 05"},
		{"Capital O trailing a number", "Sodium 14O", "Sodium 140"},
		{"Capital I between digits", "HCT 4I2", "HCT 412"},
		{"Capital I leading a number", "HCT I5", "HCT 15"},
		{"Capital I trailing a number", "HCT 4I", "HCT 41"},
		{"Capital S after digit", "Glucose: 9S mg/dL", "Glucose: 95 mg/dL"},
		{"Capital S between digits", "Glucose: 1S2 mg/dL", "Glucose: 152 mg/dL"},
		{"Capital S before digit untouched", "S5 panel", "S5 panel"},
		{"Capital B between digits", "PLT 1B2", "PLT 182"},
		{"B12 untouched", "Vitamin B12 450 pg/mL", "Vitamin B12 450 pg/mL"},
		{"Alphabetic words untouched", "Cholesterol Total", "Cholesterol Total"},
		{"Overlapping contexts converge", "WBC 1l1l1", "WBC 11111"},
		{"Zero-width characters stripped", "Glucose: 95\u200b mg/dL", "Glucose: 95 mg/dL"},
		{"BOM stripped", "\ufeffWBC 7.2", "WBC 7.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"WBC 7.2 10^3/µL",
		"  Glucose:   9S   mg/dL \r\n\r\n\r\n HCT l2 % ",
		"WBC 1l1l1\n \n \n \nRBC 4.8",
		"LAB REPORT\n\nVitamin B12 450\nCholesterol 185 mg/dL",
	}

	for _, input := range inputs {
		once := Normalize(input)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q:\n first: %q\nsecond: %q", input, once, twice)
		}
	}
}
