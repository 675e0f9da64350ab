package service

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/lab-report-companion/internal/domain"
)

// Classification thresholds. Critical bounds are derived from the effective
// reference range rather than stored per test.
const (
	criticalLowFactor  = 0.5
	criticalHighFactor = 1.5

	// HDL at or above this level is considered protective against heart
	// disease, regardless of gender-specific lower bounds.
	hdlProtectiveThreshold = 60.0

	// Ranges shift downward only for subjects strictly older than this.
	elderlyAge = 60
)

// ReferenceRangeEngine personalizes reference ranges by demographics and
// classifies measured values against them.
type ReferenceRangeEngine struct {
	logger *logrus.Logger
}

// NewReferenceRangeEngine creates a new reference range engine
func NewReferenceRangeEngine(logger *logrus.Logger) *ReferenceRangeEngine {
	return &ReferenceRangeEngine{
		logger: logger,
	}
}

// Classify computes the status of a measured value against the effective
// reference range for the subject. Both range bounds must be present to
// classify; otherwise the result is UNKNOWN. Range boundaries are inclusive:
// a value equal to either bound is NORMAL.
func (e *ReferenceRangeEngine) Classify(test *domain.TestIdentity, value float64, demo domain.Demographics) domain.ClassificationResult {
	effective := e.EffectiveRange(test.Key, test.Range, demo)

	if effective.Low == nil || effective.High == nil {
		return domain.ClassificationResult{Status: domain.UNKNOWN, Range: effective}
	}

	// HDL is a higher-is-better analyte; above the protective threshold the
	// usual high/critical-high banding does not apply.
	if test.Key == domain.HDL && value >= hdlProtectiveThreshold {
		return domain.ClassificationResult{Status: domain.PROTECTIVE, Range: effective}
	}

	low, high := *effective.Low, *effective.High
	criticalLow := low * criticalLowFactor
	criticalHigh := high * criticalHighFactor

	var status domain.Status
	switch {
	case value < criticalLow:
		status = domain.CRITICAL_LOW
	case value < low:
		status = domain.LOW
	case value <= high:
		status = domain.NORMAL
	case value <= criticalHigh:
		status = domain.HIGH
	default:
		status = domain.CRITICAL_HIGH
	}

	e.logger.WithFields(logrus.Fields{
		"test":         test.Key.String(),
		"value":        value,
		"status":       status.String(),
		"gender":       demo.ResolvedGender().String(),
		"age_category": ageCategory(demo.ResolvedAge()),
	}).Debug("Classified value against effective range")

	return domain.ClassificationResult{Status: status, Range: effective}
}

// EffectiveRange resolves the range a value will be judged against. Most
// tests use the catalog defaults unchanged; RBC, HGB, HCT, and HDL carry
// gender-specific bounds, and the blood-count tests shift downward past age
// 60. Demographics that resolve to an unknown gender always yield the
// defaults, including the age adjustment; an out-of-range age counts as
// unknown.
func (e *ReferenceRangeEngine) EffectiveRange(test domain.TestKey, defaults domain.ReferenceRange, demo domain.Demographics) domain.ReferenceRange {
	gender := demo.ResolvedGender()
	age := demo.ResolvedAge()
	if !gender.Known() && age == nil {
		return defaults
	}

	switch test {
	case domain.RBC:
		return rbcRange(gender, age, defaults)
	case domain.HGB:
		return hgbRange(gender, age, defaults)
	case domain.HCT:
		return hctRange(gender, age, defaults)
	case domain.HDL:
		return hdlRange(gender, defaults)
	default:
		return defaults
	}
}

// rbcRange returns the gender-specific red cell count range in 10^6/µL.
// Past age 60 both bounds drop by 0.2, with the low floored at 3.5.
func rbcRange(gender domain.Gender, age *int, defaults domain.ReferenceRange) domain.ReferenceRange {
	var low, high float64
	switch gender {
	case domain.MALE:
		low, high = 4.5, 5.9
	case domain.FEMALE:
		low, high = 4.0, 5.2
	default:
		return defaults
	}
	if isElderly(age) {
		low = math.Max(low-0.2, 3.5)
		high -= 0.2
	}
	return boundedRange(low, high, defaults.Unit)
}

// hgbRange returns the gender-specific hemoglobin range in g/dL. Past age
// 60 both bounds drop by 0.5, with the low floored at 11.0.
func hgbRange(gender domain.Gender, age *int, defaults domain.ReferenceRange) domain.ReferenceRange {
	var low, high float64
	switch gender {
	case domain.MALE:
		low, high = 13.5, 17.5
	case domain.FEMALE:
		low, high = 12.0, 15.5
	default:
		return defaults
	}
	if isElderly(age) {
		low = math.Max(low-0.5, 11.0)
		high -= 0.5
	}
	return boundedRange(low, high, defaults.Unit)
}

// hctRange returns the gender-specific hematocrit range in percent. Past
// age 60 both bounds drop by 2.0, with the low floored at 33.0.
func hctRange(gender domain.Gender, age *int, defaults domain.ReferenceRange) domain.ReferenceRange {
	var low, high float64
	switch gender {
	case domain.MALE:
		low, high = 40.0, 54.0
	case domain.FEMALE:
		low, high = 36.0, 46.0
	default:
		return defaults
	}
	if isElderly(age) {
		low = math.Max(low-2.0, 33.0)
		high -= 2.0
	}
	return boundedRange(low, high, defaults.Unit)
}

// hdlRange returns the gender-specific HDL lower bound in mg/dL. HDL has no
// meaningful upper limit, so the high is a sentinel well above physiologic
// values, and no age adjustment applies.
func hdlRange(gender domain.Gender, defaults domain.ReferenceRange) domain.ReferenceRange {
	var low float64
	switch gender {
	case domain.MALE:
		low = 40.0
	case domain.FEMALE:
		low = 50.0
	default:
		return defaults
	}
	return boundedRange(low, 999.0, defaults.Unit)
}

func isElderly(age *int) bool {
	return age != nil && *age > elderlyAge
}

func boundedRange(low, high float64, unit string) domain.ReferenceRange {
	return domain.ReferenceRange{Low: &low, High: &high, Unit: unit}
}

// ageCategory buckets an age for structured log context.
func ageCategory(age *int) string {
	switch {
	case age == nil:
		return "UNKNOWN"
	case *age < 18:
		return "PEDIATRIC"
	case *age < 40:
		return "YOUNG_ADULT"
	case *age < 60:
		return "MIDDLE_AGED"
	default:
		return "ELDERLY"
	}
}
