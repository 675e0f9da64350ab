package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lab-report-companion/internal/domain"
)

// reportJob carries one queued report through the worker pool.
type reportJob struct {
	reportID     string
	doc          *domain.Document
	text         string
	demographics domain.Demographics
	subject      string
}

// StatusListener observes report lifecycle transitions as they are
// persisted. Implementations must return quickly; the processor invokes
// them inline on submission and worker goroutines.
type StatusListener interface {
	ReportStatusChanged(reportID string, status domain.ReportStatus, errMsg string)
}

// ReportProcessor runs submitted reports through extraction and analysis on
// a bounded worker pool, tracking lifecycle state in the report store:
// PENDING on submit, PROCESSING once a worker picks the job up, then
// COMPLETE or FAILED. Reports still queued when the pool shuts down stay
// PENDING and can be resubmitted.
type ReportProcessor struct {
	logger   *logrus.Logger
	analyzer *AnalyzerService
	reports  domain.ReportStore
	config   domain.ProcessingConfig
	listener StatusListener

	jobs chan reportJob
	wg   sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewReportProcessor creates a new report processor. Zero config fields
// fall back to defaults; the pool does not run until Start is called.
func NewReportProcessor(
	logger *logrus.Logger,
	analyzer *AnalyzerService,
	reports domain.ReportStore,
	config domain.ProcessingConfig,
) *ReportProcessor {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 2 * time.Minute
	}
	return &ReportProcessor{
		logger:   logger,
		analyzer: analyzer,
		reports:  reports,
		config:   config,
		jobs:     make(chan reportJob, config.QueueSize),
	}
}

// SetStatusListener registers an observer for report status transitions.
// Must be called before Start.
func (p *ReportProcessor) SetStatusListener(listener StatusListener) {
	p.listener = listener
}

func (p *ReportProcessor) notify(reportID string, status domain.ReportStatus, errMsg string) {
	if p.listener != nil {
		p.listener.ReportStatusChanged(reportID, status, errMsg)
	}
}

// Start launches the worker pool. Calling Start more than once has no
// effect. Workers exit when ctx is canceled or Stop is called.
func (p *ReportProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.WithFields(logrus.Fields{
		"workers":     p.config.Workers,
		"queue_size":  p.config.QueueSize,
		"job_timeout": p.config.JobTimeout,
	}).Info("Report processor started")
}

// Stop rejects further submissions, then waits for in-flight and queued
// reports to finish.
func (p *ReportProcessor) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("Report processor stopped")
}

// SubmitText registers a report for raw report text and queues it for
// background analysis. The returned report is PENDING; callers poll the
// report endpoint or subscribe to its event stream for completion.
func (p *ReportProcessor) SubmitText(ctx context.Context, text string, demo domain.Demographics, subject string) (*domain.Report, error) {
	if text == "" {
		return nil, fmt.Errorf("submit text: %w", domain.ErrEmptyInput)
	}
	if err := demo.Validate(); err != nil {
		return nil, err
	}

	report := p.newReport(subject, "", text)
	if err := p.reports.CreateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to create report record: %w", err)
	}
	p.notify(report.ID, domain.REPORT_PENDING, "")

	job := reportJob{reportID: report.ID, text: text, demographics: demo, subject: subject}
	if err := p.enqueue(ctx, report.ID, job); err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"report_id":   report.ID,
		"subject":     subject,
		"text_length": len(text),
	}).Info("Report text queued for processing")

	return report, nil
}

// SubmitDocument registers a report for an uploaded document and queues it
// for extraction and analysis.
func (p *ReportProcessor) SubmitDocument(ctx context.Context, doc *domain.Document, demo domain.Demographics, subject string) (*domain.Report, error) {
	if doc == nil || len(doc.Data) == 0 {
		return nil, fmt.Errorf("submit document: %w", domain.ErrEmptyInput)
	}
	if err := demo.Validate(); err != nil {
		return nil, err
	}

	report := p.newReport(subject, doc.Filename, "")
	if err := p.reports.CreateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to create report record: %w", err)
	}
	p.notify(report.ID, domain.REPORT_PENDING, "")

	job := reportJob{reportID: report.ID, doc: doc, demographics: demo, subject: subject}
	if err := p.enqueue(ctx, report.ID, job); err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"report_id": report.ID,
		"subject":   subject,
		"filename":  doc.Filename,
		"bytes":     len(doc.Data),
	}).Info("Report document queued for processing")

	return report, nil
}

func (p *ReportProcessor) newReport(subject, filename, rawText string) *domain.Report {
	now := time.Now()
	return &domain.Report{
		ID:        uuid.New().String(),
		Subject:   subject,
		Filename:  filename,
		Status:    domain.REPORT_PENDING,
		RawText:   rawText,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// enqueue hands a job to the pool without blocking. A rejected job marks
// its already-created report FAILED so the record explains itself.
func (p *ReportProcessor) enqueue(ctx context.Context, reportID string, job reportJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if !p.started || p.stopped {
		err = fmt.Errorf("report processor is not running")
	} else {
		select {
		case p.jobs <- job:
			return nil
		default:
			err = domain.ErrQueueFull
		}
	}

	if updateErr := p.reports.UpdateStatus(ctx, reportID, domain.REPORT_FAILED, err.Error()); updateErr != nil {
		p.logger.WithError(updateErr).WithField("report_id", reportID).Error("Failed to mark rejected report as failed")
	}
	p.notify(reportID, domain.REPORT_FAILED, err.Error())
	return err
}

func (p *ReportProcessor) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.process(ctx, id, job)
		}
	}
}

// process drives one report through the lifecycle. Analysis failures are
// recorded on the report rather than propagated; the worker moves on.
func (p *ReportProcessor) process(ctx context.Context, workerID int, job reportJob) {
	startTime := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	logger := p.logger.WithFields(logrus.Fields{
		"report_id": job.reportID,
		"subject":   job.subject,
		"worker":    workerID,
	})

	if err := p.reports.UpdateStatus(jobCtx, job.reportID, domain.REPORT_PROCESSING, ""); err != nil {
		logger.WithError(err).Error("Failed to mark report as processing")
		return
	}
	p.notify(job.reportID, domain.REPORT_PROCESSING, "")

	var analysis *domain.ReportAnalysis
	var err error
	if job.doc != nil {
		analysis, err = p.analyzer.AnalyzeDocument(jobCtx, job.doc, job.demographics, job.subject)
	} else {
		analysis, err = p.analyzer.AnalyzeText(jobCtx, job.text, job.demographics, job.subject)
	}
	if err != nil {
		logger.WithError(err).Warn("Report analysis failed")
		p.markFailed(jobCtx, logger, job.reportID, err.Error())
		return
	}

	// SaveAnalysis transitions the report to COMPLETE.
	if err := p.reports.SaveAnalysis(jobCtx, job.reportID, analysis); err != nil {
		logger.WithError(err).Error("Failed to save report analysis")
		p.markFailed(jobCtx, logger, job.reportID, "failed to save analysis")
		return
	}
	p.notify(job.reportID, domain.REPORT_COMPLETE, "")

	if err := p.analyzer.RecordHistory(jobCtx, job.subject, job.reportID, analysis); err != nil {
		logger.WithError(err).Warn("Failed to record report results to history")
	}

	logger.WithFields(logrus.Fields{
		"results":         len(analysis.Results),
		"unrecognized":    len(analysis.Unrecognized),
		"processing_time": time.Since(startTime),
	}).Info("Report processing completed")
}

func (p *ReportProcessor) markFailed(ctx context.Context, logger *logrus.Entry, reportID, message string) {
	if err := p.reports.UpdateStatus(ctx, reportID, domain.REPORT_FAILED, message); err != nil {
		logger.WithError(err).Error("Failed to mark report as failed")
	}
	p.notify(reportID, domain.REPORT_FAILED, message)
}
