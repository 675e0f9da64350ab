// Package catalog holds the seed data for the supported lab tests: the
// three panels, the canonical test identities with their default reference
// ranges, and the alias table that maps free-text spellings to identities.
//
// The catalog is built once and never mutated afterwards; all lookups are
// safe for concurrent use.
package catalog

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lab-report-companion/internal/domain"
)

func ptr(v float64) *float64 { return &v }

// seedTests is the canonical test set. Reference ranges are commonly
// published adult values; RBC, HGB, HCT, and HDL are further personalized
// by demographics at classification time.
var seedTests = []domain.TestIdentity{
	{
		Key:         domain.WBC,
		DisplayName: "White Blood Cells",
		Panel:       domain.PANEL_CBC,
		Unit:        "10^3/µL",
		Range:       domain.ReferenceRange{Low: ptr(4.5), High: ptr(11.0), Unit: "10^3/µL"},
		Aliases:     []string{"wbc", "white blood cell", "white blood cells", "leukocytes", "leukocyte count"},
	},
	{
		Key:         domain.RBC,
		DisplayName: "Red Blood Cells",
		Panel:       domain.PANEL_CBC,
		Unit:        "10^6/µL",
		Range:       domain.ReferenceRange{Low: ptr(4.5), High: ptr(5.9), Unit: "10^6/µL"},
		Aliases:     []string{"rbc", "red blood cell", "red blood cells", "erythrocytes", "erythrocyte count"},
	},
	{
		Key:         domain.HGB,
		DisplayName: "Hemoglobin",
		Panel:       domain.PANEL_CBC,
		Unit:        "g/dL",
		Range:       domain.ReferenceRange{Low: ptr(13.5), High: ptr(17.5), Unit: "g/dL"},
		Aliases:     []string{"hgb", "hemoglobin", "hb", "haemoglobin"},
	},
	{
		Key:         domain.HCT,
		DisplayName: "Hematocrit",
		Panel:       domain.PANEL_CBC,
		Unit:        "%",
		Range:       domain.ReferenceRange{Low: ptr(38.8), High: ptr(50.0), Unit: "%"},
		Aliases:     []string{"hct", "hematocrit", "haematocrit", "hct%"},
	},
	{
		Key:         domain.PLT,
		DisplayName: "Platelets",
		Panel:       domain.PANEL_CBC,
		Unit:        "10^3/µL",
		Range:       domain.ReferenceRange{Low: ptr(150.0), High: ptr(400.0), Unit: "10^3/µL"},
		Aliases:     []string{"plt", "platelet", "platelets", "platelet count", "thrombocytes"},
	},
	{
		Key:         domain.MCV,
		DisplayName: "Mean Corpuscular Volume",
		Panel:       domain.PANEL_CBC,
		Unit:        "fL",
		Range:       domain.ReferenceRange{Low: ptr(80.0), High: ptr(100.0), Unit: "fL"},
		Aliases:     []string{"mcv", "mean corpuscular volume", "mean cell volume"},
	},
	{
		Key:         domain.GLUCOSE,
		DisplayName: "Glucose",
		Panel:       domain.PANEL_METABOLIC,
		Unit:        "mg/dL",
		Range:       domain.ReferenceRange{Low: ptr(70.0), High: ptr(100.0), Unit: "mg/dL"},
		Aliases:     []string{"glucose", "glu", "blood glucose", "blood sugar", "fasting glucose"},
	},
	{
		Key:         domain.BUN,
		DisplayName: "Blood Urea Nitrogen",
		Panel:       domain.PANEL_METABOLIC,
		Unit:        "mg/dL",
		Range:       domain.ReferenceRange{Low: ptr(7.0), High: ptr(20.0), Unit: "mg/dL"},
		Aliases:     []string{"bun", "blood urea nitrogen", "urea nitrogen", "urea"},
	},
	{
		Key:         domain.CREATININE,
		DisplayName: "Creatinine",
		Panel:       domain.PANEL_METABOLIC,
		Unit:        "mg/dL",
		Range:       domain.ReferenceRange{Low: ptr(0.7), High: ptr(1.3), Unit: "mg/dL"},
		Aliases:     []string{"creatinine", "creat", "cr", "serum creatinine"},
	},
	{
		Key:         domain.SODIUM,
		DisplayName: "Sodium",
		Panel:       domain.PANEL_METABOLIC,
		Unit:        "mmol/L",
		Range:       domain.ReferenceRange{Low: ptr(136.0), High: ptr(145.0), Unit: "mmol/L"},
		Aliases:     []string{"sodium", "na", "na+", "serum sodium"},
	},
	{
		Key:         domain.POTASSIUM,
		DisplayName: "Potassium",
		Panel:       domain.PANEL_METABOLIC,
		Unit:        "mmol/L",
		Range:       domain.ReferenceRange{Low: ptr(3.5), High: ptr(5.0), Unit: "mmol/L"},
		Aliases:     []string{"potassium", "k", "k+", "serum potassium"},
	},
	{
		Key:         domain.CHLORIDE,
		DisplayName: "Chloride",
		Panel:       domain.PANEL_METABOLIC,
		Unit:        "mmol/L",
		Range:       domain.ReferenceRange{Low: ptr(98.0), High: ptr(107.0), Unit: "mmol/L"},
		Aliases:     []string{"chloride", "cl", "cl-", "serum chloride"},
	},
	{
		Key:         domain.CO2,
		DisplayName: "Carbon Dioxide",
		Panel:       domain.PANEL_METABOLIC,
		Unit:        "mmol/L",
		Range:       domain.ReferenceRange{Low: ptr(23.0), High: ptr(29.0), Unit: "mmol/L"},
		Aliases:     []string{"co2", "carbon dioxide", "bicarbonate", "hco3", "total co2"},
	},
	{
		Key:         domain.CALCIUM,
		DisplayName: "Calcium",
		Panel:       domain.PANEL_METABOLIC,
		Unit:        "mg/dL",
		Range:       domain.ReferenceRange{Low: ptr(8.5), High: ptr(10.5), Unit: "mg/dL"},
		Aliases:     []string{"calcium", "ca", "ca++", "serum calcium", "total calcium"},
	},
	{
		Key:         domain.TC,
		DisplayName: "Total Cholesterol",
		Panel:       domain.PANEL_LIPID,
		Unit:        "mg/dL",
		Range:       domain.ReferenceRange{Low: ptr(0.0), High: ptr(200.0), Unit: "mg/dL"},
		Aliases:     []string{"tc", "total cholesterol", "cholesterol", "chol", "total chol"},
	},
	{
		Key:         domain.LDL,
		DisplayName: "LDL Cholesterol",
		Panel:       domain.PANEL_LIPID,
		Unit:        "mg/dL",
		Range:       domain.ReferenceRange{Low: ptr(0.0), High: ptr(100.0), Unit: "mg/dL"},
		Aliases:     []string{"ldl", "ldl cholesterol", "ldl-c", "low density lipoprotein", "bad cholesterol"},
	},
	{
		Key:         domain.HDL,
		DisplayName: "HDL Cholesterol",
		Panel:       domain.PANEL_LIPID,
		Unit:        "mg/dL",
		Range:       domain.ReferenceRange{Low: ptr(40.0), High: ptr(999.0), Unit: "mg/dL"},
		Aliases:     []string{"hdl", "hdl cholesterol", "hdl-c", "high density lipoprotein", "good cholesterol"},
	},
	{
		Key:         domain.TRIG,
		DisplayName: "Triglycerides",
		Panel:       domain.PANEL_LIPID,
		Unit:        "mg/dL",
		Range:       domain.ReferenceRange{Low: ptr(0.0), High: ptr(150.0), Unit: "mg/dL"},
		Aliases:     []string{"trig", "triglycerides", "triglyceride", "trigs", "tg"},
	},
}

var seedPanels = []domain.Panel{
	{Key: domain.PANEL_CBC, DisplayName: "Complete Blood Count", Description: "Blood cell counts and related indices"},
	{Key: domain.PANEL_METABOLIC, DisplayName: "Metabolic Panel", Description: "Blood chemistry, electrolytes, and kidney markers"},
	{Key: domain.PANEL_LIPID, DisplayName: "Lipid Panel", Description: "Cholesterol and cardiovascular risk markers"},
}

// Catalog implements domain.IdentityStore over the seed data.
type Catalog struct {
	tests   []domain.TestIdentity
	byKey   map[domain.TestKey]*domain.TestIdentity
	byAlias map[string]*domain.TestIdentity
	panels  []domain.Panel
	log     *logrus.Logger
}

// New builds the catalog from the seed data. It panics on malformed seed
// data (duplicate alias, duplicate key, invalid identity); that is a
// programming error, not a runtime condition.
func New(logger *logrus.Logger) *Catalog {
	if logger == nil {
		logger = logrus.New()
	}

	c := &Catalog{
		tests:   make([]domain.TestIdentity, len(seedTests)),
		byKey:   make(map[domain.TestKey]*domain.TestIdentity, len(seedTests)),
		byAlias: make(map[string]*domain.TestIdentity),
		log:     logger,
	}
	copy(c.tests, seedTests)

	panelTests := make(map[domain.PanelKey][]domain.TestKey)
	for i := range c.tests {
		ti := &c.tests[i]
		if err := ti.Validate(); err != nil {
			panic(fmt.Sprintf("catalog seed: %v", err))
		}
		if _, exists := c.byKey[ti.Key]; exists {
			panic(fmt.Sprintf("catalog seed: duplicate test key %s", ti.Key))
		}
		c.byKey[ti.Key] = ti
		panelTests[ti.Panel] = append(panelTests[ti.Panel], ti.Key)

		for _, alias := range ti.Aliases {
			normalized := strings.ToLower(strings.TrimSpace(alias))
			if prev, exists := c.byAlias[normalized]; exists {
				panic(fmt.Sprintf("catalog seed: alias %q maps to both %s and %s", normalized, prev.Key, ti.Key))
			}
			c.byAlias[normalized] = ti
		}
	}

	c.panels = make([]domain.Panel, len(seedPanels))
	copy(c.panels, seedPanels)
	for i := range c.panels {
		c.panels[i].Tests = panelTests[c.panels[i].Key]
	}

	logger.WithFields(logrus.Fields{
		"tests":   len(c.tests),
		"aliases": len(c.byAlias),
		"panels":  len(c.panels),
	}).Debug("Test catalog initialized")

	return c
}

// ResolveAlias maps a free-text test name to its canonical identity.
// Matching is exact after lowercasing and trimming; empty input never
// resolves.
func (c *Catalog) ResolveAlias(name string) (*domain.TestIdentity, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return nil, false
	}

	identity, ok := c.byAlias[normalized]
	if !ok {
		return nil, false
	}
	out := *identity
	return &out, true
}

// GetTest returns the identity for a canonical key.
func (c *Catalog) GetTest(key domain.TestKey) (*domain.TestIdentity, error) {
	identity, ok := c.byKey[key]
	if !ok {
		return nil, fmt.Errorf("test %s: %w", key, domain.ErrNotFound)
	}
	out := *identity
	return &out, nil
}

// ListTests returns all test identities in seed order.
func (c *Catalog) ListTests() []domain.TestIdentity {
	out := make([]domain.TestIdentity, len(c.tests))
	copy(out, c.tests)
	return out
}

// ListPanels returns the supported panels with their member test keys.
func (c *Catalog) ListPanels() []domain.Panel {
	out := make([]domain.Panel, len(c.panels))
	copy(out, c.panels)
	return out
}
