// Package domain contains core business entities and types for clinical lab
// report analysis: supported test identities, demographics-personalized
// reference ranges, result statuses, trend labels, and educational guidance.
//
// Reference intervals follow commonly published adult values (see the catalog
// seed data). All output is educational and is not a medical diagnosis.
package domain

import (
	"errors"
	"strings"
)

// Status represents where a measured value falls relative to its
// personalized reference range.
type Status string

const (
	UNKNOWN       Status = "UNKNOWN"
	CRITICAL_LOW  Status = "CRITICAL_LOW"
	LOW           Status = "LOW"
	NORMAL        Status = "NORMAL"
	HIGH          Status = "HIGH"
	CRITICAL_HIGH Status = "CRITICAL_HIGH"
	PROTECTIVE    Status = "PROTECTIVE"
)

// Gender is a closed enum. Anything that does not parse to MALE or FEMALE
// resolves to GENDER_UNKNOWN, which always yields default reference ranges.
type Gender string

const (
	MALE           Gender = "MALE"
	FEMALE         Gender = "FEMALE"
	GENDER_UNKNOWN Gender = "UNKNOWN"
)

// Trend labels the direction of change between the current value and the
// most recent prior value for the same test. The zero value means no trend
// could be computed (no prior value on record).
type Trend string

const (
	IMPROVING Trend = "improving"
	WORSENING Trend = "worsening"
	STABLE    Trend = "stable"
)

// PanelKey identifies the lab panel a test belongs to.
type PanelKey string

const (
	PANEL_CBC       PanelKey = "CBC"
	PANEL_METABOLIC PanelKey = "METABOLIC"
	PANEL_LIPID     PanelKey = "LIPID"
)

// TestKey is the canonical identifier of a supported laboratory test.
type TestKey string

const (
	WBC        TestKey = "WBC"
	RBC        TestKey = "RBC"
	HGB        TestKey = "HGB"
	HCT        TestKey = "HCT"
	PLT        TestKey = "PLT"
	MCV        TestKey = "MCV"
	GLUCOSE    TestKey = "GLUCOSE"
	BUN        TestKey = "BUN"
	CREATININE TestKey = "CREATININE"
	SODIUM     TestKey = "SODIUM"
	POTASSIUM  TestKey = "POTASSIUM"
	CHLORIDE   TestKey = "CHLORIDE"
	CO2        TestKey = "CO2"
	CALCIUM    TestKey = "CALCIUM"
	TC         TestKey = "TC"
	LDL        TestKey = "LDL"
	HDL        TestKey = "HDL"
	TRIG       TestKey = "TRIG"
)

// StatusBand is the lookup key for guidance message tables. PROTECTIVE and
// UNKNOWN have no band and fall through to the panel-level fallback text.
type StatusBand string

const (
	BAND_NORMAL        StatusBand = "NORMAL"
	BAND_LOW           StatusBand = "LOW"
	BAND_HIGH          StatusBand = "HIGH"
	BAND_CRITICAL_LOW  StatusBand = "CRITICAL_LOW"
	BAND_CRITICAL_HIGH StatusBand = "CRITICAL_HIGH"
)

// ReportStatus tracks the lifecycle of an asynchronously processed report.
type ReportStatus string

const (
	REPORT_PENDING    ReportStatus = "PENDING"
	REPORT_PROCESSING ReportStatus = "PROCESSING"
	REPORT_COMPLETE   ReportStatus = "COMPLETE"
	REPORT_FAILED     ReportStatus = "FAILED"
)

// Validation errors for medical data integrity
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidStatus       = errors.New("invalid result status")
	ErrInvalidGender       = errors.New("invalid gender")
	ErrInvalidTrend        = errors.New("invalid trend label")
	ErrInvalidPanel        = errors.New("invalid panel key")
	ErrInvalidAge          = errors.New("age outside supported bounds")
	ErrInvalidReportStatus = errors.New("invalid report status")
	ErrUnsupportedTest     = errors.New("unsupported test")
	ErrEmptyExtraction     = errors.New("extraction produced no content")
	ErrEmptyInput          = errors.New("no text or structured results provided")
	ErrQueueFull           = errors.New("processing queue is full")
)

// IsValid validates that the Status is one of the seven recognized outcomes.
// Only valid statuses may enter guidance generation or persisted history.
func (s Status) IsValid() bool {
	switch s {
	case UNKNOWN, CRITICAL_LOW, LOW, NORMAL, HIGH, CRITICAL_HIGH, PROTECTIVE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status.
// Required for proper logging and audit trails.
func (s Status) String() string {
	return string(s)
}

// LogFields returns structured logging fields for audit trails.
func (s Status) LogFields() map[string]any {
	return map[string]any{
		"status":          string(s),
		"severity":        s.severityLevel(),
		"is_valid":        s.IsValid(),
		"requires_review": s.RequiresReview(),
	}
}

// Interpretation returns a human-readable description of the status for
// reporting and patient-facing output.
func (s Status) Interpretation() string {
	switch s {
	case NORMAL:
		return "Within the reference range"
	case LOW:
		return "Below the reference range"
	case HIGH:
		return "Above the reference range"
	case CRITICAL_LOW:
		return "Critically below the reference range"
	case CRITICAL_HIGH:
		return "Critically above the reference range"
	case PROTECTIVE:
		return "At a level considered protective"
	case UNKNOWN:
		return "No reference range available for interpretation"
	default:
		return "Unknown status"
	}
}

// severityLevel buckets statuses for audit logging.
func (s Status) severityLevel() string {
	switch s {
	case CRITICAL_LOW, CRITICAL_HIGH:
		return "critical"
	case LOW, HIGH:
		return "abnormal"
	case NORMAL:
		return "normal"
	case PROTECTIVE:
		return "favorable"
	default:
		return "unknown"
	}
}

// RequiresReview determines if the status warrants clinician follow-up.
// Unknown statuses report true so uninterpretable results are never
// silently treated as benign.
func (s Status) RequiresReview() bool {
	switch s {
	case CRITICAL_LOW, CRITICAL_HIGH:
		return true
	case LOW, NORMAL, HIGH, PROTECTIVE:
		return false
	default:
		return true
	}
}

// Band maps a status to its guidance lookup band. The second return is
// false for PROTECTIVE, UNKNOWN, and invalid statuses, which have no
// per-test guidance entry.
func (s Status) Band() (StatusBand, bool) {
	switch s {
	case NORMAL:
		return BAND_NORMAL, true
	case LOW:
		return BAND_LOW, true
	case HIGH:
		return BAND_HIGH, true
	case CRITICAL_LOW:
		return BAND_CRITICAL_LOW, true
	case CRITICAL_HIGH:
		return BAND_CRITICAL_HIGH, true
	default:
		return "", false
	}
}

// ParseGender resolves free-text gender input to the closed enum. It fails
// closed: anything unrecognized becomes GENDER_UNKNOWN so that personalized
// ranges never guess.
func ParseGender(input string) Gender {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "MALE", "M":
		return MALE
	case "FEMALE", "F":
		return FEMALE
	default:
		return GENDER_UNKNOWN
	}
}

// IsValid validates the gender enum value.
func (g Gender) IsValid() bool {
	switch g {
	case MALE, FEMALE, GENDER_UNKNOWN:
		return true
	default:
		return false
	}
}

// Known reports whether the gender resolved to MALE or FEMALE. Range
// personalization, including the age adjustment, applies only when this
// is true.
func (g Gender) Known() bool {
	return g == MALE || g == FEMALE
}

// String returns the string representation of the gender.
func (g Gender) String() string {
	return string(g)
}

// IsValid validates the trend label. The zero value is not a valid label;
// it marks an absent trend.
func (t Trend) IsValid() bool {
	switch t {
	case IMPROVING, WORSENING, STABLE:
		return true
	default:
		return false
	}
}

// Absent reports whether no trend could be computed.
func (t Trend) Absent() bool {
	return t == ""
}

// String returns the string representation of the trend.
func (t Trend) String() string {
	return string(t)
}

// IsValid validates the panel key.
func (p PanelKey) IsValid() bool {
	switch p {
	case PANEL_CBC, PANEL_METABOLIC, PANEL_LIPID:
		return true
	default:
		return false
	}
}

// String returns the string representation of the panel key.
func (p PanelKey) String() string {
	return string(p)
}

// String returns the string representation of the test key.
func (k TestKey) String() string {
	return string(k)
}

// IsValid validates the report lifecycle status.
func (rs ReportStatus) IsValid() bool {
	switch rs {
	case REPORT_PENDING, REPORT_PROCESSING, REPORT_COMPLETE, REPORT_FAILED:
		return true
	default:
		return false
	}
}

// Terminal reports whether the report has finished processing.
func (rs ReportStatus) Terminal() bool {
	return rs == REPORT_COMPLETE || rs == REPORT_FAILED
}

// String returns the string representation of the report status.
func (rs ReportStatus) String() string {
	return string(rs)
}

// LogFields returns structured logging fields for report lifecycle events.
func (rs ReportStatus) LogFields() map[string]any {
	return map[string]any{
		"report_status": string(rs),
		"terminal":      rs.Terminal(),
	}
}
