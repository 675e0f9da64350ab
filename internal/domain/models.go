package domain

import (
	"errors"
	"fmt"
	"time"
)

// Disclaimer is attached verbatim to every piece of generated guidance and
// to every report analysis. The wording is fixed.
const Disclaimer = "This is general educational information and NOT a medical diagnosis. " +
	"Please consult a qualified doctor for medical advice and clinical decisions."

// Core Data Models

// TestIdentity describes one supported laboratory test: its canonical key,
// display name, owning panel, canonical unit, default reference range, and
// the free-text aliases that resolve to it.
type TestIdentity struct {
	Key         TestKey        `json:"key"`
	DisplayName string         `json:"display_name"`
	Panel       PanelKey       `json:"panel"`
	Unit        string         `json:"unit"`
	Range       ReferenceRange `json:"range"`
	Aliases     []string       `json:"aliases,omitempty"`
}

// Validate ensures the identity is complete enough to participate in
// resolution and classification.
func (ti *TestIdentity) Validate() error {
	if ti.Key == "" {
		return fmt.Errorf("test identity validation: %w", errors.New("key is required"))
	}
	if ti.DisplayName == "" {
		return fmt.Errorf("test identity validation: %w", errors.New("display name is required"))
	}
	if !ti.Panel.IsValid() {
		return fmt.Errorf("test identity validation: %w", ErrInvalidPanel)
	}
	return nil
}

// Panel groups related tests for catalog listings and guidance fallbacks.
type Panel struct {
	Key         PanelKey  `json:"key"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	Tests       []TestKey `json:"tests"`
}

// ReferenceRange holds the bounds a value is judged against. Either bound
// may be absent; classification yields UNKNOWN unless both are defined.
type ReferenceRange struct {
	Low  *float64 `json:"low"`
	High *float64 `json:"high"`
	Unit string   `json:"unit,omitempty"`
}

// Defined reports whether both bounds are present.
func (r ReferenceRange) Defined() bool {
	return r.Low != nil && r.High != nil
}

// Demographics carries the optional subject attributes used to personalize
// reference ranges. A nil Age means unknown.
type Demographics struct {
	Gender Gender `json:"gender,omitempty"`
	Age    *int   `json:"age,omitempty"`
}

// Validate ensures demographics stay inside supported bounds. Age must be
// within [0, 150] when present; an empty gender is treated as unset.
func (d *Demographics) Validate() error {
	if d.Age != nil && (*d.Age < 0 || *d.Age > 150) {
		return fmt.Errorf("demographics validation: %w", ErrInvalidAge)
	}
	if d.Gender != "" && !d.Gender.IsValid() {
		return fmt.Errorf("demographics validation: %w", ErrInvalidGender)
	}
	return nil
}

// ResolvedGender returns the closed-enum gender, mapping the unset zero
// value to GENDER_UNKNOWN.
func (d *Demographics) ResolvedGender() Gender {
	if d.Gender == "" {
		return GENDER_UNKNOWN
	}
	return d.Gender
}

// ResolvedAge returns the age when it is inside the supported [0, 150]
// range, nil otherwise. An out-of-range age personalizes nothing.
func (d *Demographics) ResolvedAge() *int {
	if d.Age == nil || *d.Age < 0 || *d.Age > 150 {
		return nil
	}
	return d.Age
}

// Measurement is one (name, value, unit) triple recovered from report text.
// Name is the free-text test name as written; identity resolution happens
// downstream.
type Measurement struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// StructuredResult is a pre-parsed result supplied by an external extractor,
// bypassing text parsing but not identity resolution or classification.
type StructuredResult struct {
	TestName string  `json:"test_name"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit,omitempty"`
}

// Document is an uploaded report artifact handed to an Extractor.
type Document struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"-"`
}

// Extraction is what an Extractor recovered from a document: raw text,
// structured results, or both. Confidence is the extractor's own estimate
// in [0, 1]; zero means the backend did not report one. Demographics is set
// when the backend recognized patient attributes in the document itself.
type Extraction struct {
	Text         string             `json:"text,omitempty"`
	Structured   []StructuredResult `json:"structured,omitempty"`
	Demographics *Demographics      `json:"demographics,omitempty"`
	Source       string             `json:"source,omitempty"`
	Confidence   float64            `json:"confidence,omitempty"`
}

// Empty reports whether the extraction carries nothing analyzable.
func (e *Extraction) Empty() bool {
	return e == nil || (e.Text == "" && len(e.Structured) == 0)
}

// ClassificationResult pairs the computed status with the personalized
// range the value was judged against.
type ClassificationResult struct {
	Status Status         `json:"status"`
	Range  ReferenceRange `json:"range"`
}

// Guidance is the educational output for one classified result. Disclaimer
// is always populated.
type Guidance struct {
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
	Disclaimer  string   `json:"disclaimer"`
}

// AnalyzedResult is the full pipeline output for one recognized measurement.
type AnalyzedResult struct {
	Test        TestKey        `json:"test"`
	DisplayName string         `json:"display_name"`
	Panel       PanelKey       `json:"panel"`
	Value       float64        `json:"value"`
	Unit        string         `json:"unit,omitempty"`
	Status      Status         `json:"status"`
	Range       ReferenceRange `json:"range"`
	Trend       Trend          `json:"trend,omitempty"`
	Previous    *float64       `json:"previous_value,omitempty"`
	Guidance    Guidance       `json:"guidance"`
}

// ReportAnalysis is the whole-report output: analyzed results in input
// order, plus any parsed measurements that did not resolve to a supported
// test. Disclaimer is present even when Results is empty.
type ReportAnalysis struct {
	Results      []AnalyzedResult `json:"results"`
	Unrecognized []Measurement    `json:"unrecognized,omitempty"`
	Demographics Demographics     `json:"demographics"`
	Disclaimer   string           `json:"disclaimer"`
	AnalyzedAt   time.Time        `json:"analyzed_at"`
}

// Report is an asynchronously processed report record.
type Report struct {
	ID          string          `json:"id"`
	Subject     string          `json:"subject,omitempty"`
	Filename    string          `json:"filename,omitempty"`
	Status      ReportStatus    `json:"status"`
	RawText     string          `json:"raw_text,omitempty"`
	Analysis    *ReportAnalysis `json:"analysis,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Validate ensures the report record is consistent before persistence.
func (r *Report) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("report validation: %w", errors.New("ID is required"))
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("report validation: %w", ErrInvalidReportStatus)
	}
	return nil
}

// Request/Response Models

// AnalyzeRequest carries one analysis invocation: raw report text,
// pre-structured results, or both, plus optional demographics and a
// subject identifier for history correlation.
type AnalyzeRequest struct {
	Text         string             `json:"text,omitempty"`
	Results      []StructuredResult `json:"results,omitempty"`
	Demographics Demographics       `json:"demographics"`
	Subject      string             `json:"subject,omitempty"`
}

// Validate ensures the request carries something to analyze and that the
// demographics are inside supported bounds.
func (req *AnalyzeRequest) Validate() error {
	if req.Text == "" && len(req.Results) == 0 {
		return fmt.Errorf("analyze request validation: %w", ErrEmptyInput)
	}
	if err := req.Demographics.Validate(); err != nil {
		return fmt.Errorf("analyze request validation: %w", err)
	}
	return nil
}

// AnalyzeResponse wraps a completed analysis with timing metadata.
type AnalyzeResponse struct {
	Analysis       ReportAnalysis `json:"analysis"`
	ProcessingTime time.Duration  `json:"processing_time"`
	Timestamp      time.Time      `json:"timestamp"`
}
