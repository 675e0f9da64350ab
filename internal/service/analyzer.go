package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lab-report-companion/internal/domain"
	"github.com/lab-report-companion/internal/history"
	"github.com/lab-report-companion/pkg/labtext"
)

// AnalyzerService implements the lab report analysis workflow
type AnalyzerService struct {
	logger     *logrus.Logger
	identities domain.IdentityStore
	history    history.Store
	extractor  domain.Extractor
	parser     *labtext.Parser
	ranges     *ReferenceRangeEngine
	guidance   *GuidanceEngine
}

// NewAnalyzerService creates a new analyzer service. historyStore may be
// nil, in which case trends are never attached and results are not
// persisted. extractor may be nil when document analysis is not needed.
func NewAnalyzerService(
	logger *logrus.Logger,
	identities domain.IdentityStore,
	historyStore history.Store,
	extractor domain.Extractor,
) *AnalyzerService {
	return &AnalyzerService{
		logger:     logger,
		identities: identities,
		history:    historyStore,
		extractor:  extractor,
		parser:     labtext.NewParser(),
		ranges:     NewReferenceRangeEngine(logger),
		guidance:   NewGuidanceEngine(logger),
	}
}

// Analyze performs the complete analysis workflow for one request: recover
// measurements from text or accept pre-structured results, resolve test
// identities, classify against personalized ranges, attach trends and
// guidance, and record the outcome to history when a subject is named.
// Structured results win over text when a request carries both.
func (a *AnalyzerService) Analyze(ctx context.Context, req *domain.AnalyzeRequest) (*domain.AnalyzeResponse, error) {
	startTime := time.Now()

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analyze request: %w", err)
	}

	a.logger.WithFields(logrus.Fields{
		"text_length":        len(req.Text),
		"structured_results": len(req.Results),
		"subject":            req.Subject,
	}).Info("Starting lab report analysis")

	var analysis *domain.ReportAnalysis
	var err error
	if len(req.Results) > 0 {
		analysis, err = a.AnalyzeStructured(ctx, req.Results, req.Demographics, req.Subject)
	} else {
		analysis, err = a.AnalyzeText(ctx, req.Text, req.Demographics, req.Subject)
	}
	if err != nil {
		return nil, err
	}

	if err := a.RecordHistory(ctx, req.Subject, "", analysis); err != nil {
		a.logger.WithError(err).Warn("Failed to record analysis to history")
	}

	response := &domain.AnalyzeResponse{
		Analysis:       *analysis,
		ProcessingTime: time.Since(startTime),
		Timestamp:      time.Now(),
	}

	a.logger.WithFields(logrus.Fields{
		"results":         len(analysis.Results),
		"unrecognized":    len(analysis.Unrecognized),
		"subject":         req.Subject,
		"processing_time": response.ProcessingTime,
	}).Info("Lab report analysis completed")

	return response, nil
}

// AnalyzeText normalizes and parses raw report text into measurements, then
// resolves, classifies, and annotates each one. Lines that do not parse are
// skipped silently; parsed measurements that do not resolve to a supported
// test come back in the analysis under Unrecognized.
func (a *AnalyzerService) AnalyzeText(ctx context.Context, text string, demo domain.Demographics, subject string) (*domain.ReportAnalysis, error) {
	// Step 1: Recover (name, value, unit) measurements from the text
	measurements := a.parser.Parse(text)

	a.logger.WithFields(logrus.Fields{
		"text_length":  len(text),
		"measurements": len(measurements),
	}).Debug("Parsed report text")

	// Step 2: Resolve, classify, and annotate in input order
	return a.analyzeMeasurements(ctx, measurements, demo, subject)
}

// AnalyzeStructured analyzes results an extractor already split into
// (test name, value, unit) triples, bypassing text parsing but not identity
// resolution or classification.
func (a *AnalyzerService) AnalyzeStructured(ctx context.Context, results []domain.StructuredResult, demo domain.Demographics, subject string) (*domain.ReportAnalysis, error) {
	measurements := make([]domain.Measurement, 0, len(results))
	for _, r := range results {
		measurements = append(measurements, domain.Measurement{
			Name:  r.TestName,
			Value: r.Value,
			Unit:  r.Unit,
		})
	}
	return a.analyzeMeasurements(ctx, measurements, demo, subject)
}

// AnalyzeDocument extracts analyzable content from an uploaded document and
// runs it through the pipeline. Structured output is preferred over raw
// text when the extractor returns both. Caller demographics win over
// demographics the extractor recognized in the document.
func (a *AnalyzerService) AnalyzeDocument(ctx context.Context, doc *domain.Document, demo domain.Demographics, subject string) (*domain.ReportAnalysis, error) {
	if a.extractor == nil {
		return nil, fmt.Errorf("analyze document: no extractor configured")
	}

	extraction, err := a.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to extract document content: %w", err)
	}
	if extraction.Empty() {
		return nil, fmt.Errorf("analyze document %q: %w", doc.Filename, domain.ErrEmptyExtraction)
	}

	a.logger.WithFields(logrus.Fields{
		"filename":   doc.Filename,
		"source":     extraction.Source,
		"confidence": extraction.Confidence,
		"structured": len(extraction.Structured),
	}).Info("Extracted document content")

	merged := mergeDemographics(demo, extraction.Demographics)

	if len(extraction.Structured) > 0 {
		return a.AnalyzeStructured(ctx, extraction.Structured, merged, subject)
	}
	return a.AnalyzeText(ctx, extraction.Text, merged, subject)
}

// RecordHistory persists analyzed results for a subject so later analyses
// can attach trends. It is a no-op without a subject or a history store.
// Individual insert failures are logged and rolled into one error rather
// than aborting the remaining inserts.
func (a *AnalyzerService) RecordHistory(ctx context.Context, subject, reportID string, analysis *domain.ReportAnalysis) error {
	if subject == "" || a.history == nil || analysis == nil {
		return nil
	}

	var failed int
	for _, r := range analysis.Results {
		record := &history.Result{
			Subject:  subject,
			Test:     r.Test,
			Value:    r.Value,
			Unit:     r.Unit,
			Status:   r.Status,
			ReportID: reportID,
		}
		if err := a.history.Record(ctx, record); err != nil {
			failed++
			a.logger.WithError(err).WithFields(logrus.Fields{
				"subject": subject,
				"test":    r.Test.String(),
			}).Warn("Failed to record result to history")
		}
	}
	if failed > 0 {
		return fmt.Errorf("recording history for subject %s: %d of %d results failed", subject, failed, len(analysis.Results))
	}

	a.logger.WithFields(logrus.Fields{
		"subject":  subject,
		"recorded": len(analysis.Results),
	}).Debug("Recorded analyzed results to history")

	return nil
}

// analyzeMeasurements resolves, classifies, and annotates measurements in
// input order. Unresolvable names are reported back rather than dropped.
func (a *AnalyzerService) analyzeMeasurements(ctx context.Context, measurements []domain.Measurement, demo domain.Demographics, subject string) (*domain.ReportAnalysis, error) {
	if err := demo.Validate(); err != nil {
		return nil, err
	}

	analysis := &domain.ReportAnalysis{
		Results:      make([]domain.AnalyzedResult, 0, len(measurements)),
		Demographics: demo,
		Disclaimer:   domain.Disclaimer,
		AnalyzedAt:   time.Now(),
	}

	for _, m := range measurements {
		identity, ok := a.identities.ResolveAlias(m.Name)
		if !ok {
			analysis.Unrecognized = append(analysis.Unrecognized, m)
			continue
		}
		analysis.Results = append(analysis.Results, a.analyzeOne(ctx, identity, m, demo, subject))
	}

	return analysis, nil
}

// analyzeOne runs classification, the prior-value lookup, and guidance for
// a single resolved measurement. The prior value is read before anything is
// recorded, so a report never trends against itself.
func (a *AnalyzerService) analyzeOne(ctx context.Context, identity *domain.TestIdentity, m domain.Measurement, demo domain.Demographics, subject string) domain.AnalyzedResult {
	classified := a.ranges.Classify(identity, m.Value, demo)

	var previous *float64
	if subject != "" && a.history != nil {
		prior, err := a.history.Previous(ctx, subject, identity.Key)
		if err != nil {
			a.logger.WithError(err).WithFields(logrus.Fields{
				"subject": subject,
				"test":    identity.Key.String(),
			}).Warn("Failed to load prior result, omitting trend")
		} else if prior != nil {
			previous = &prior.Value
		}
	}

	guidance, trend := a.guidance.Generate(identity, classified.Range, m.Value, classified.Status, previous)

	unit := m.Unit
	if unit == "" {
		unit = identity.Unit
	}

	return domain.AnalyzedResult{
		Test:        identity.Key,
		DisplayName: identity.DisplayName,
		Panel:       identity.Panel,
		Value:       m.Value,
		Unit:        unit,
		Status:      classified.Status,
		Range:       classified.Range,
		Trend:       trend,
		Previous:    previous,
		Guidance:    guidance,
	}
}

// mergeDemographics fills unset caller attributes from extractor-recognized
// ones. Caller-supplied values always win. Extracted attributes are adopted
// only when they are clean: an unrecognized gender or out-of-range age from
// a backend downgrades to unknown instead of failing the analysis.
func mergeDemographics(caller domain.Demographics, extracted *domain.Demographics) domain.Demographics {
	if extracted == nil {
		return caller
	}
	merged := caller
	if merged.Gender == "" && extracted.Gender.IsValid() {
		merged.Gender = extracted.Gender
	}
	if merged.Age == nil {
		merged.Age = extracted.ResolvedAge()
	}
	return merged
}
