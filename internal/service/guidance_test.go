package service

import (
	"strings"
	"testing"

	"github.com/lab-report-companion/internal/domain"
)

func wbcIdentity() *domain.TestIdentity {
	return &domain.TestIdentity{
		Key:         domain.WBC,
		DisplayName: "White Blood Cells",
		Panel:       domain.PANEL_CBC,
		Unit:        "10^3/µL",
		Range:       domain.ReferenceRange{Low: fptr(4.5), High: fptr(11.0), Unit: "10^3/µL"},
	}
}

func TestTrend(t *testing.T) {
	engine := NewGuidanceEngine(testLogger())
	// Width 6.5: stability threshold 0.325, midpoint 7.75.
	rng := domain.ReferenceRange{Low: fptr(4.5), High: fptr(11.0)}
	noBounds := domain.ReferenceRange{}

	tests := []struct {
		name     string
		rng      domain.ReferenceRange
		current  float64
		previous *float64
		want     domain.Trend
	}{
		{"No prior value", rng, 8.0, nil, ""},
		{"Identical values", rng, 10.0, fptr(10.0), domain.STABLE},
		{"Change below stability threshold", rng, 7.9, fptr(7.8), domain.STABLE},
		{"Moved toward midpoint", rng, 8.0, fptr(12.5), domain.IMPROVING},
		{"Moved away from midpoint", rng, 12.5, fptr(8.0), domain.WORSENING},
		{"Equidistant counts as worsening", rng, 8.25, fptr(7.25), domain.WORSENING},
		{"No bounds near-equal is stable", noBounds, 100.0, fptr(104.0), domain.STABLE},
		{"No bounds large change has no label", noBounds, 100.0, fptr(110.0), ""},
		{"No bounds identical values", noBounds, 42.0, fptr(42.0), domain.STABLE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Trend(tt.rng, tt.current, tt.previous)
			if got != tt.want {
				t.Errorf("Trend() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerateAlwaysCarriesDisclaimer(t *testing.T) {
	engine := NewGuidanceEngine(testLogger())
	wbc := wbcIdentity()

	statuses := []domain.Status{
		domain.NORMAL, domain.LOW, domain.HIGH,
		domain.CRITICAL_LOW, domain.CRITICAL_HIGH,
		domain.PROTECTIVE, domain.UNKNOWN,
	}

	for _, status := range statuses {
		guidance, _ := engine.Generate(wbc, wbc.Range, 8.0, status, nil)
		if guidance.Disclaimer != domain.Disclaimer {
			t.Errorf("status %s: disclaimer = %q, want the fixed disclaimer", status, guidance.Disclaimer)
		}
		if !strings.Contains(guidance.Disclaimer, "NOT a medical diagnosis") {
			t.Errorf("status %s: disclaimer does not state the non-diagnosis wording", status)
		}
		if !strings.Contains(guidance.Disclaimer, "consult a qualified doctor") {
			t.Errorf("status %s: disclaimer does not direct to a doctor", status)
		}
		if guidance.Message == "" {
			t.Errorf("status %s: empty message", status)
		}
		if len(guidance.Suggestions) == 0 {
			t.Errorf("status %s: no suggestions", status)
		}
	}
}

func TestGuidanceMessages(t *testing.T) {
	engine := NewGuidanceEngine(testLogger())

	glucose := glucoseIdentity()
	hdl := hdlIdentity()
	// A CBC test with no per-test message entries exercises the panel
	// fallback for banded statuses.
	rdw := &domain.TestIdentity{
		Key:         domain.TestKey("RDW"),
		DisplayName: "Red Cell Distribution Width",
		Panel:       domain.PANEL_CBC,
	}

	tests := []struct {
		name   string
		test   *domain.TestIdentity
		status domain.Status
		want   string
	}{
		{"Per-test message for high WBC", wbcIdentity(), domain.HIGH, "responding to an infection"},
		{"Per-test message for low glucose", glucose, domain.LOW, "shakiness"},
		{"Protective falls back to panel text", hdl, domain.PROTECTIVE, "heart health risk factors. Your result is PROTECTIVE."},
		{"Unknown falls back to panel text", glucose, domain.UNKNOWN, "organ function. Your result is UNKNOWN."},
		{"Unlisted test falls back to panel text", rdw, domain.NORMAL, "Red Cell Distribution Width is a measure of blood cell levels. Your result is NORMAL."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guidance, _ := engine.Generate(tt.test, tt.test.Range, 0, tt.status, nil)
			if !strings.Contains(guidance.Message, tt.want) {
				t.Errorf("message = %q, want it to contain %q", guidance.Message, tt.want)
			}
		})
	}
}

func TestGuidanceSuggestions(t *testing.T) {
	engine := NewGuidanceEngine(testLogger())

	ldl := &domain.TestIdentity{
		Key:         domain.LDL,
		DisplayName: "LDL Cholesterol",
		Panel:       domain.PANEL_LIPID,
	}

	tests := []struct {
		name   string
		test   *domain.TestIdentity
		status domain.Status
		want   string
	}{
		{"Low HDL advises raising it", hdlIdentity(), domain.LOW, "raise HDL levels"},
		{"Low LDL is favorable", ldl, domain.LOW, "generally favorable"},
		{"Critically low LDL is favorable", ldl, domain.CRITICAL_LOW, "generally favorable"},
		{"Protective points to the doctor", hdlIdentity(), domain.PROTECTIVE, "Consult your doctor"},
		{"Unknown points to the doctor", wbcIdentity(), domain.UNKNOWN, "Consult your doctor"},
		{"Normal CBC encourages maintenance", wbcIdentity(), domain.NORMAL, "healthy lifestyle"},
		{"High metabolic suggests follow-up", glucoseIdentity(), domain.HIGH, "lifestyle modifications"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guidance, _ := engine.Generate(tt.test, tt.test.Range, 0, tt.status, nil)
			joined := strings.Join(guidance.Suggestions, " ")
			if !strings.Contains(joined, tt.want) {
				t.Errorf("suggestions = %q, want them to mention %q", joined, tt.want)
			}
		})
	}
}

func TestGenerateComputesTrend(t *testing.T) {
	engine := NewGuidanceEngine(testLogger())
	wbc := wbcIdentity()

	_, trend := engine.Generate(wbc, wbc.Range, 8.0, domain.NORMAL, fptr(12.5))
	if trend != domain.IMPROVING {
		t.Errorf("trend = %s, want IMPROVING", trend)
	}

	_, trend = engine.Generate(wbc, wbc.Range, 8.0, domain.NORMAL, nil)
	if !trend.Absent() {
		t.Errorf("trend = %q, want absent", trend)
	}
}
