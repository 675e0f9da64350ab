package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lab-report-companion/internal/domain"
	"github.com/lab-report-companion/internal/history"
	"github.com/lab-report-companion/internal/middleware"
)

// maxUploadBytes bounds report uploads. Scanned multi-page reports stay
// well under this.
const maxUploadBytes = 10 << 20

// analyzeRequest is the wire shape of a synchronous analysis call.
// Demographics are flattened for ease of use from scripts and UIs.
type analyzeRequest struct {
	Text    string                    `json:"text"`
	Results []domain.StructuredResult `json:"results,omitempty"`
	Subject string                    `json:"subject,omitempty"`
	Gender  string                    `json:"gender,omitempty"`
	Age     *int                      `json:"age,omitempty"`
}

func (r *analyzeRequest) demographics() domain.Demographics {
	demo := domain.Demographics{Age: r.Age}
	if r.Gender != "" {
		demo.Gender = domain.ParseGender(r.Gender)
	}
	return demo
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "lab-report-companion",
		"version": Version,
		"time":    time.Now().UTC(),
	})
}

// handleListTests returns the supported test catalog
func (s *Server) handleListTests(c *gin.Context) {
	tests := s.identities.ListTests()
	c.JSON(http.StatusOK, gin.H{
		"count": len(tests),
		"tests": tests,
	})
}

// handleGetTest returns one test identity by canonical key
func (s *Server) handleGetTest(c *gin.Context) {
	key := strings.ToUpper(strings.TrimSpace(c.Param("key")))

	test, err := s.identities.GetTest(domain.TestKey(key))
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, test)
}

// handleListPanels returns the supported panels
func (s *Server) handleListPanels(c *gin.Context) {
	panels := s.identities.ListPanels()
	c.JSON(http.StatusOK, gin.H{
		"count":  len(panels),
		"panels": panels,
	})
}

// handleAnalyze runs the full pipeline synchronously on raw text or
// pre-structured results
func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(
			domain.ErrCodeInvalidInput,
			"Invalid request body",
			err.Error(),
			middleware.RequestIDFrom(c),
		))
		return
	}

	analyzeReq := &domain.AnalyzeRequest{
		Text:         req.Text,
		Results:      req.Results,
		Demographics: req.demographics(),
		Subject:      req.Subject,
	}

	response, err := s.analyzer.Analyze(c.Request.Context(), analyzeReq)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// handleSubmitReport accepts a multipart report upload (or a bare text
// field) and queues it for background analysis
func (s *Server) handleSubmitReport(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	demo, err := formDemographics(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(
			domain.ErrCodeInvalidInput,
			"Invalid demographics",
			err.Error(),
			middleware.RequestIDFrom(c),
		))
		return
	}
	subject := c.PostForm("subject")

	var report *domain.Report

	fileHeader, fileErr := c.FormFile("file")
	switch {
	case fileErr == nil:
		file, err := fileHeader.Open()
		if err != nil {
			s.renderError(c, err)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			s.renderError(c, err)
			return
		}

		doc := &domain.Document{
			Filename:    fileHeader.Filename,
			ContentType: fileHeader.Header.Get("Content-Type"),
			Data:        data,
		}
		report, err = s.processor.SubmitDocument(c.Request.Context(), doc, demo, subject)
		if err != nil {
			s.renderError(c, err)
			return
		}

	case c.PostForm("text") != "":
		report, err = s.processor.SubmitText(c.Request.Context(), c.PostForm("text"), demo, subject)
		if err != nil {
			s.renderError(c, err)
			return
		}

	default:
		c.JSON(http.StatusBadRequest, domain.NewAPIError(
			domain.ErrCodeInvalidInput,
			"Nothing to analyze",
			"Provide a file part or a text field",
			middleware.RequestIDFrom(c),
		))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"report_id": report.ID,
		"status":    report.Status,
	})
}

// handleGetReport returns a report record, including the analysis once
// processing completed
func (s *Server) handleGetReport(c *gin.Context) {
	report, err := s.reports.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// handleSubjectHistory returns a subject's stored result series, optionally
// filtered to one test
func (s *Server) handleSubjectHistory(c *gin.Context) {
	subject := c.Param("subject")
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	testFilter := strings.ToUpper(strings.TrimSpace(c.Query("test")))

	results, err := s.history.ListBySubject(c.Request.Context(), subject, limit, offset)
	if err != nil {
		s.renderError(c, err)
		return
	}

	if testFilter != "" {
		filtered := results[:0]
		for _, r := range results {
			if string(r.Test) == testFilter {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if results == nil {
		results = []*history.Result{}
	}

	c.JSON(http.StatusOK, gin.H{
		"subject": subject,
		"count":   len(results),
		"results": results,
	})
}

// handleSubjectReports lists a subject's submitted reports, newest first
func (s *Server) handleSubjectReports(c *gin.Context) {
	subject := c.Param("subject")
	limit := queryInt(c, "limit", 20)

	reports, err := s.reports.ListBySubject(c.Request.Context(), subject, limit)
	if err != nil {
		s.renderError(c, err)
		return
	}
	if reports == nil {
		reports = []*domain.Report{}
	}

	c.JSON(http.StatusOK, gin.H{
		"subject": subject,
		"count":   len(reports),
		"reports": reports,
	})
}

// renderError maps domain errors onto HTTP statuses with a structured body
func (s *Server) renderError(c *gin.Context, err error) {
	requestID := middleware.RequestIDFrom(c)

	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, domain.NewAPIError(
			domain.ErrCodeNotFound, "Resource not found", err.Error(), requestID))
	case errors.Is(err, domain.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, domain.NewAPIError(
			domain.ErrCodeInternalServer, "Processing queue is full", "Retry the upload later", requestID))
	case errors.Is(err, domain.ErrEmptyInput),
		errors.Is(err, domain.ErrEmptyExtraction),
		errors.Is(err, domain.ErrInvalidAge),
		errors.Is(err, domain.ErrInvalidGender):
		c.JSON(http.StatusBadRequest, domain.NewAPIError(
			domain.ErrCodeInvalidInput, "Invalid input", err.Error(), requestID))
	default:
		s.logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(http.StatusInternalServerError, domain.NewAPIError(
			domain.ErrCodeInternalServer, "Internal server error", "", requestID))
	}
}

// formDemographics reads optional gender and age fields from a multipart
// form
func formDemographics(c *gin.Context) (domain.Demographics, error) {
	demo := domain.Demographics{}

	if gender := c.PostForm("gender"); gender != "" {
		demo.Gender = domain.ParseGender(gender)
	}
	if ageStr := c.PostForm("age"); ageStr != "" {
		age, err := strconv.Atoi(ageStr)
		if err != nil {
			return demo, domain.ErrInvalidAge
		}
		demo.Age = &age
	}

	return demo, demo.Validate()
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
