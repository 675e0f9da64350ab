package service

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/lab-report-companion/internal/domain"
)

// stabilityFraction is the share of the reference range width below which a
// change between consecutive values is labeled stable.
const stabilityFraction = 0.05

// GuidanceEngine produces educational messages, general suggestions, and
// trend labels for classified results. Output is informational only; every
// guidance carries the fixed disclaimer.
type GuidanceEngine struct {
	logger *logrus.Logger
}

// NewGuidanceEngine creates a new guidance engine
func NewGuidanceEngine(logger *logrus.Logger) *GuidanceEngine {
	return &GuidanceEngine{
		logger: logger,
	}
}

// Generate produces the guidance and trend label for one classified result.
// The effective range must be the same one the status was computed against
// so the trend judges movement relative to the personalized bounds.
func (g *GuidanceEngine) Generate(test *domain.TestIdentity, effective domain.ReferenceRange, value float64, status domain.Status, previous *float64) (domain.Guidance, domain.Trend) {
	trend := g.Trend(effective, value, previous)

	guidance := domain.Guidance{
		Message:     g.message(test, status),
		Suggestions: g.suggestions(test, status),
		Disclaimer:  domain.Disclaimer,
	}

	g.logger.WithFields(logrus.Fields{
		"test":   test.Key.String(),
		"status": status.String(),
		"trend":  trend.String(),
	}).Debug("Generated guidance")

	return guidance, trend
}

// Trend labels the direction of change from the most recent prior value.
// Equal values are always stable. With both bounds present, a change smaller
// than 5% of the range width is stable; otherwise the label depends on
// whether the value moved toward or away from the range midpoint, with ties
// counting as worsening. Without bounds there is no midpoint to judge
// against, so only near-equal values earn a label.
func (g *GuidanceEngine) Trend(rng domain.ReferenceRange, current float64, previous *float64) domain.Trend {
	if previous == nil {
		return ""
	}
	if current == *previous {
		return domain.STABLE
	}
	if rng.Low == nil || rng.High == nil {
		if math.Abs(current-*previous) < math.Abs(current*stabilityFraction) {
			return domain.STABLE
		}
		return ""
	}

	threshold := (*rng.High - *rng.Low) * stabilityFraction
	if math.Abs(current-*previous) < threshold {
		return domain.STABLE
	}

	midpoint := (*rng.Low + *rng.High) / 2
	if math.Abs(current-midpoint) < math.Abs(*previous-midpoint) {
		return domain.IMPROVING
	}
	return domain.WORSENING
}

// message returns the per-test educational message for the status band, or
// the panel-level fallback when the test or band has no entry. PROTECTIVE
// and UNKNOWN never have entries.
func (g *GuidanceEngine) message(test *domain.TestIdentity, status domain.Status) string {
	if band, ok := status.Band(); ok {
		var table map[domain.TestKey]map[domain.StatusBand]string
		switch test.Panel {
		case domain.PANEL_CBC:
			table = cbcMessages
		case domain.PANEL_METABOLIC:
			table = metabolicMessages
		case domain.PANEL_LIPID:
			table = lipidMessages
		}
		if msg, found := table[test.Key][band]; found {
			return msg
		}
	}

	switch test.Panel {
	case domain.PANEL_CBC:
		return fmt.Sprintf("%s is a measure of blood cell levels. Your result is %s.", test.DisplayName, status)
	case domain.PANEL_METABOLIC:
		return fmt.Sprintf("%s is a measure of organ function. Your result is %s.", test.DisplayName, status)
	case domain.PANEL_LIPID:
		return fmt.Sprintf("%s is a measure of heart health risk factors. Your result is %s.", test.DisplayName, status)
	default:
		return fmt.Sprintf("This test measures %s.", test.DisplayName)
	}
}

// suggestions returns the general next-step suggestions for the panel and
// status band. Low lipid results are favorable rather than concerning,
// except for HDL where low is the concerning direction.
func (g *GuidanceEngine) suggestions(test *domain.TestIdentity, status domain.Status) []string {
	band, ok := status.Band()
	if !ok {
		return consultDoctorSuggestion()
	}

	switch test.Panel {
	case domain.PANEL_CBC:
		return cbcSuggestions(band)
	case domain.PANEL_METABOLIC:
		return metabolicSuggestions(band)
	case domain.PANEL_LIPID:
		return lipidSuggestions(test.Key, band)
	default:
		return consultDoctorSuggestion()
	}
}

func cbcSuggestions(band domain.StatusBand) []string {
	switch band {
	case domain.BAND_NORMAL:
		return []string{
			"Continue maintaining a healthy lifestyle.",
			"Regular check-ups help monitor your health over time.",
		}
	case domain.BAND_LOW, domain.BAND_CRITICAL_LOW:
		return []string{
			"Discuss this result with your doctor.",
			"Your doctor may recommend additional tests or evaluation.",
			"Follow your doctor's guidance for any necessary treatment.",
		}
	default:
		return []string{
			"Discuss this result with your doctor.",
			"Your doctor may recommend additional tests to determine the cause.",
			"Follow your doctor's guidance for any necessary treatment.",
		}
	}
}

func metabolicSuggestions(band domain.StatusBand) []string {
	switch band {
	case domain.BAND_NORMAL:
		return []string{
			"Continue maintaining a healthy lifestyle.",
			"Stay hydrated and maintain a balanced diet.",
			"Regular monitoring helps track your health over time.",
		}
	case domain.BAND_LOW, domain.BAND_CRITICAL_LOW:
		return []string{
			"Discuss this result with your doctor.",
			"Your doctor may recommend dietary changes or further evaluation.",
			"Follow your doctor's guidance for any necessary treatment.",
		}
	default:
		return []string{
			"Discuss this result with your doctor.",
			"Your doctor may recommend lifestyle modifications or further testing.",
			"Follow your doctor's guidance for any necessary treatment.",
		}
	}
}

func lipidSuggestions(test domain.TestKey, band domain.StatusBand) []string {
	switch band {
	case domain.BAND_NORMAL:
		return []string{
			"Continue maintaining heart-healthy habits.",
			"Regular exercise and a balanced diet support cardiovascular health.",
			"Regular monitoring helps track your heart health over time.",
		}
	case domain.BAND_LOW, domain.BAND_CRITICAL_LOW:
		if test == domain.HDL {
			return []string{
				"Discuss this result with your doctor.",
				"Your doctor may recommend lifestyle changes to raise HDL levels.",
				"Regular exercise can help improve HDL cholesterol.",
			}
		}
		return []string{
			"Low levels are generally favorable for heart health.",
			"Continue maintaining healthy habits.",
		}
	default:
		return []string{
			"Discuss this result with your doctor.",
			"Your doctor may recommend dietary changes, exercise, or medication.",
			"Heart-healthy lifestyle changes can help improve lipid levels.",
			"Follow your doctor's guidance for managing cardiovascular risk.",
		}
	}
}

func consultDoctorSuggestion() []string {
	return []string{"Consult your doctor for interpretation of this result."}
}

// Per-test educational messages, keyed by status band. Bands without an
// entry, and statuses without a band, fall through to the panel fallback
// in message.

var cbcMessages = map[domain.TestKey]map[domain.StatusBand]string{
	domain.WBC: {
		domain.BAND_NORMAL:        "White blood cells (WBC) help fight infections. Your level is within the normal range.",
		domain.BAND_LOW:           "White blood cells (WBC) help fight infections. A low count may affect your immune system's ability to fight infections.",
		domain.BAND_HIGH:          "White blood cells (WBC) help fight infections. An elevated count may indicate your body is responding to an infection or inflammation.",
		domain.BAND_CRITICAL_LOW:  "White blood cells (WBC) help fight infections. A very low count significantly affects immune function.",
		domain.BAND_CRITICAL_HIGH: "White blood cells (WBC) help fight infections. A very high count requires medical attention.",
	},
	domain.RBC: {
		domain.BAND_NORMAL:        "Red blood cells (RBC) carry oxygen throughout your body. Your level is within the normal range.",
		domain.BAND_LOW:           "Red blood cells (RBC) carry oxygen throughout your body. A low count may lead to fatigue and weakness.",
		domain.BAND_HIGH:          "Red blood cells (RBC) carry oxygen throughout your body. An elevated count may affect blood flow.",
		domain.BAND_CRITICAL_LOW:  "Red blood cells (RBC) carry oxygen throughout your body. A very low count can cause severe symptoms.",
		domain.BAND_CRITICAL_HIGH: "Red blood cells (RBC) carry oxygen throughout your body. A very high count requires medical attention.",
	},
	domain.HGB: {
		domain.BAND_NORMAL:        "Hemoglobin carries oxygen in your blood. Your level is within the normal range.",
		domain.BAND_LOW:           "Hemoglobin carries oxygen in your blood. Low levels may indicate anemia and can cause fatigue.",
		domain.BAND_HIGH:          "Hemoglobin carries oxygen in your blood. Elevated levels may affect blood thickness.",
		domain.BAND_CRITICAL_LOW:  "Hemoglobin carries oxygen in your blood. Very low levels require immediate attention.",
		domain.BAND_CRITICAL_HIGH: "Hemoglobin carries oxygen in your blood. Very high levels require medical attention.",
	},
	domain.HCT: {
		domain.BAND_NORMAL:        "Hematocrit measures the proportion of blood made up of red blood cells. Your level is within the normal range.",
		domain.BAND_LOW:           "Hematocrit measures the proportion of blood made up of red blood cells. Low levels may indicate anemia.",
		domain.BAND_HIGH:          "Hematocrit measures the proportion of blood made up of red blood cells. High levels may affect blood flow.",
		domain.BAND_CRITICAL_LOW:  "Hematocrit measures the proportion of blood made up of red blood cells. Very low levels require attention.",
		domain.BAND_CRITICAL_HIGH: "Hematocrit measures the proportion of blood made up of red blood cells. Very high levels require medical attention.",
	},
	domain.PLT: {
		domain.BAND_NORMAL:        "Platelets help your blood clot. Your level is within the normal range.",
		domain.BAND_LOW:           "Platelets help your blood clot. Low counts may increase bleeding risk.",
		domain.BAND_HIGH:          "Platelets help your blood clot. High counts may affect blood clotting.",
		domain.BAND_CRITICAL_LOW:  "Platelets help your blood clot. Very low counts significantly increase bleeding risk.",
		domain.BAND_CRITICAL_HIGH: "Platelets help your blood clot. Very high counts require medical attention.",
	},
	domain.MCV: {
		domain.BAND_NORMAL:        "Mean Corpuscular Volume (MCV) measures the average size of your red blood cells. Your level is within the normal range.",
		domain.BAND_LOW:           "Mean Corpuscular Volume (MCV) measures the average size of your red blood cells. Small cells may indicate certain types of anemia.",
		domain.BAND_HIGH:          "Mean Corpuscular Volume (MCV) measures the average size of your red blood cells. Large cells may indicate vitamin deficiencies.",
		domain.BAND_CRITICAL_LOW:  "Mean Corpuscular Volume (MCV) measures the average size of your red blood cells. Very small cells require evaluation.",
		domain.BAND_CRITICAL_HIGH: "Mean Corpuscular Volume (MCV) measures the average size of your red blood cells. Very large cells require evaluation.",
	},
}

var metabolicMessages = map[domain.TestKey]map[domain.StatusBand]string{
	domain.GLUCOSE: {
		domain.BAND_NORMAL:        "Glucose is your blood sugar level. Your level is within the normal range.",
		domain.BAND_LOW:           "Glucose is your blood sugar level. Low levels can cause symptoms like shakiness and confusion.",
		domain.BAND_HIGH:          "Glucose is your blood sugar level. Elevated levels may indicate prediabetes or diabetes.",
		domain.BAND_CRITICAL_LOW:  "Glucose is your blood sugar level. Very low levels require immediate attention.",
		domain.BAND_CRITICAL_HIGH: "Glucose is your blood sugar level. Very high levels require medical attention.",
	},
	domain.BUN: {
		domain.BAND_NORMAL:        "Blood Urea Nitrogen (BUN) reflects kidney function. Your level is within the normal range.",
		domain.BAND_LOW:           "Blood Urea Nitrogen (BUN) reflects kidney function. Low levels are usually not concerning.",
		domain.BAND_HIGH:          "Blood Urea Nitrogen (BUN) reflects kidney function. Elevated levels may indicate kidney stress or dehydration.",
		domain.BAND_CRITICAL_LOW:  "Blood Urea Nitrogen (BUN) reflects kidney function. Very low levels may need evaluation.",
		domain.BAND_CRITICAL_HIGH: "Blood Urea Nitrogen (BUN) reflects kidney function. Very high levels require medical attention.",
	},
	domain.CREATININE: {
		domain.BAND_NORMAL:        "Creatinine is a waste product filtered by your kidneys. Your level is within the normal range.",
		domain.BAND_LOW:           "Creatinine is a waste product filtered by your kidneys. Low levels are usually not concerning.",
		domain.BAND_HIGH:          "Creatinine is a waste product filtered by your kidneys. Elevated levels may indicate reduced kidney function.",
		domain.BAND_CRITICAL_LOW:  "Creatinine is a waste product filtered by your kidneys. Very low levels may need evaluation.",
		domain.BAND_CRITICAL_HIGH: "Creatinine is a waste product filtered by your kidneys. Very high levels require medical attention.",
	},
	domain.SODIUM: {
		domain.BAND_NORMAL:        "Sodium is an electrolyte that helps regulate fluid balance. Your level is within the normal range.",
		domain.BAND_LOW:           "Sodium is an electrolyte that helps regulate fluid balance. Low levels can cause confusion and weakness.",
		domain.BAND_HIGH:          "Sodium is an electrolyte that helps regulate fluid balance. High levels may indicate dehydration.",
		domain.BAND_CRITICAL_LOW:  "Sodium is an electrolyte that helps regulate fluid balance. Very low levels require immediate attention.",
		domain.BAND_CRITICAL_HIGH: "Sodium is an electrolyte that helps regulate fluid balance. Very high levels require medical attention.",
	},
	domain.POTASSIUM: {
		domain.BAND_NORMAL:        "Potassium is essential for heart and muscle function. Your level is within the normal range.",
		domain.BAND_LOW:           "Potassium is essential for heart and muscle function. Low levels can affect heart rhythm and muscle strength.",
		domain.BAND_HIGH:          "Potassium is essential for heart and muscle function. High levels can affect heart rhythm.",
		domain.BAND_CRITICAL_LOW:  "Potassium is essential for heart and muscle function. Very low levels require immediate attention.",
		domain.BAND_CRITICAL_HIGH: "Potassium is essential for heart and muscle function. Very high levels require immediate attention.",
	},
	domain.CHLORIDE: {
		domain.BAND_NORMAL:        "Chloride is an electrolyte that helps maintain fluid balance. Your level is within the normal range.",
		domain.BAND_LOW:           "Chloride is an electrolyte that helps maintain fluid balance. Low levels may indicate fluid imbalances.",
		domain.BAND_HIGH:          "Chloride is an electrolyte that helps maintain fluid balance. High levels may indicate dehydration.",
		domain.BAND_CRITICAL_LOW:  "Chloride is an electrolyte that helps maintain fluid balance. Very low levels require evaluation.",
		domain.BAND_CRITICAL_HIGH: "Chloride is an electrolyte that helps maintain fluid balance. Very high levels require evaluation.",
	},
	domain.CO2: {
		domain.BAND_NORMAL:        "CO2 (bicarbonate) helps maintain your body's pH balance. Your level is within the normal range.",
		domain.BAND_LOW:           "CO2 (bicarbonate) helps maintain your body's pH balance. Low levels may indicate metabolic acidosis.",
		domain.BAND_HIGH:          "CO2 (bicarbonate) helps maintain your body's pH balance. High levels may indicate metabolic alkalosis.",
		domain.BAND_CRITICAL_LOW:  "CO2 (bicarbonate) helps maintain your body's pH balance. Very low levels require medical attention.",
		domain.BAND_CRITICAL_HIGH: "CO2 (bicarbonate) helps maintain your body's pH balance. Very high levels require medical attention.",
	},
	domain.CALCIUM: {
		domain.BAND_NORMAL:        "Calcium is important for bone health and muscle function. Your level is within the normal range.",
		domain.BAND_LOW:           "Calcium is important for bone health and muscle function. Low levels can affect bones and muscles.",
		domain.BAND_HIGH:          "Calcium is important for bone health and muscle function. High levels may indicate various conditions.",
		domain.BAND_CRITICAL_LOW:  "Calcium is important for bone health and muscle function. Very low levels require medical attention.",
		domain.BAND_CRITICAL_HIGH: "Calcium is important for bone health and muscle function. Very high levels require medical attention.",
	},
}

var lipidMessages = map[domain.TestKey]map[domain.StatusBand]string{
	domain.TC: {
		domain.BAND_NORMAL:        "Total Cholesterol measures all cholesterol in your blood. Your level is within the desirable range.",
		domain.BAND_LOW:           "Total Cholesterol measures all cholesterol in your blood. Low levels are generally favorable for heart health.",
		domain.BAND_HIGH:          "Total Cholesterol measures all cholesterol in your blood. Elevated levels may increase cardiovascular risk.",
		domain.BAND_CRITICAL_LOW:  "Total Cholesterol measures all cholesterol in your blood. Very low levels may need evaluation.",
		domain.BAND_CRITICAL_HIGH: "Total Cholesterol measures all cholesterol in your blood. Very high levels significantly increase cardiovascular risk.",
	},
	domain.LDL: {
		domain.BAND_NORMAL:        "LDL (\"bad\" cholesterol) can build up in arteries. Your level is within the optimal range.",
		domain.BAND_LOW:           "LDL (\"bad\" cholesterol) can build up in arteries. Low levels are favorable for heart health.",
		domain.BAND_HIGH:          "LDL (\"bad\" cholesterol) can build up in arteries. Elevated levels increase risk of heart disease.",
		domain.BAND_CRITICAL_LOW:  "LDL (\"bad\" cholesterol) can build up in arteries. Very low levels are generally not concerning.",
		domain.BAND_CRITICAL_HIGH: "LDL (\"bad\" cholesterol) can build up in arteries. Very high levels significantly increase heart disease risk.",
	},
	domain.HDL: {
		domain.BAND_NORMAL:        "HDL (\"good\" cholesterol) helps remove cholesterol from arteries. Your level is within the protective range.",
		domain.BAND_LOW:           "HDL (\"good\" cholesterol) helps remove cholesterol from arteries. Low levels may increase cardiovascular risk.",
		domain.BAND_HIGH:          "HDL (\"good\" cholesterol) helps remove cholesterol from arteries. High levels are generally protective for heart health.",
		domain.BAND_CRITICAL_LOW:  "HDL (\"good\" cholesterol) helps remove cholesterol from arteries. Very low levels increase heart disease risk.",
		domain.BAND_CRITICAL_HIGH: "HDL (\"good\" cholesterol) helps remove cholesterol from arteries. Very high levels are generally favorable.",
	},
	domain.TRIG: {
		domain.BAND_NORMAL:        "Triglycerides are a type of fat in your blood. Your level is within the normal range.",
		domain.BAND_LOW:           "Triglycerides are a type of fat in your blood. Low levels are generally not concerning.",
		domain.BAND_HIGH:          "Triglycerides are a type of fat in your blood. Elevated levels may increase cardiovascular risk.",
		domain.BAND_CRITICAL_LOW:  "Triglycerides are a type of fat in your blood. Very low levels are generally not concerning.",
		domain.BAND_CRITICAL_HIGH: "Triglycerides are a type of fat in your blood. Very high levels significantly increase cardiovascular risk.",
	},
}
