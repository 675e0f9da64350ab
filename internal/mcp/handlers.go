package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/lab-report-companion/internal/cache"
	"github.com/lab-report-companion/internal/domain"
)

// AnalyzeLabTextParams defines parameters for the analyze_lab_text tool
type AnalyzeLabTextParams struct {
	Text    string `json:"text"`
	Subject string `json:"subject,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Age     *int   `json:"age,omitempty"`
}

// LookupTestParams defines parameters for the lookup_test tool
type LookupTestParams struct {
	Name string `json:"name"`
}

// LookupTestResult defines the result structure for the lookup_test tool
type LookupTestResult struct {
	Key         string   `json:"key"`
	DisplayName string   `json:"display_name"`
	Panel       string   `json:"panel"`
	Unit        string   `json:"unit"`
	RangeLow    *float64 `json:"range_low"`
	RangeHigh   *float64 `json:"range_high"`
	Aliases     []string `json:"aliases,omitempty"`
}

// ListSupportedTestsParams defines parameters for the list_supported_tests tool
type ListSupportedTestsParams struct{}

// PanelSummary groups the supported tests of one panel
type PanelSummary struct {
	Key         string   `json:"key"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description,omitempty"`
	Tests       []string `json:"tests"`
}

// ListSupportedTestsResult defines the result structure for the list_supported_tests tool
type ListSupportedTestsResult struct {
	TestCount int            `json:"test_count"`
	Panels    []PanelSummary `json:"panels"`
}

// handleAnalyzeLabText handles the analyze_lab_text tool invocation
func (s *LabServer) handleAnalyzeLabText(ctx context.Context, req *mcp.CallToolRequest, params AnalyzeLabTextParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":        "analyze_lab_text",
		"text_length": len(params.Text),
		"subject":     params.Subject,
	}).Info("Tool invoked")

	if strings.TrimSpace(params.Text) == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("text is required")), nil, nil
	}

	demo := domain.Demographics{Age: params.Age}
	if params.Gender != "" {
		demo.Gender = domain.ParseGender(params.Gender)
	}
	if err := demo.Validate(); err != nil {
		return s.createErrorResult("Invalid demographics", err), nil, nil
	}

	// Subject-free analyses are pure functions of (text, demographics) and
	// can be answered from the cache. With a subject, history participates
	// in trend computation and the pipeline must run.
	cacheable := params.Subject == ""
	key := cache.Key(params.Text, &demo)
	if cacheable {
		if analysis, ok := s.cache.Get(key); ok {
			s.logger.WithField("tool", "analyze_lab_text").Debug("Analysis served from cache")
			return analysisResult(analysis)
		}
	}

	resp, err := s.analyzer.Analyze(ctx, &domain.AnalyzeRequest{
		Text:         params.Text,
		Subject:      params.Subject,
		Demographics: demo,
	})
	if err != nil {
		return s.createErrorResult("Analysis failed", err), nil, nil
	}

	if cacheable {
		s.cache.Set(key, &resp.Analysis)
	}

	return analysisResult(&resp.Analysis)
}

// analysisResult renders an analysis as a readable text summary plus the
// full structured payload.
func analysisResult(analysis *domain.ReportAnalysis) (*mcp.CallToolResult, any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyzed %d result(s)", len(analysis.Results))
	if len(analysis.Unrecognized) > 0 {
		fmt.Fprintf(&b, ", %d unrecognized", len(analysis.Unrecognized))
	}
	for _, r := range analysis.Results {
		fmt.Fprintf(&b, "\n- %s: %g", r.DisplayName, r.Value)
		if r.Unit != "" {
			fmt.Fprintf(&b, " %s", r.Unit)
		}
		fmt.Fprintf(&b, " [%s]", r.Status)
		if r.Trend != "" {
			fmt.Fprintf(&b, " trend: %s", r.Trend)
		}
	}
	for _, m := range analysis.Unrecognized {
		fmt.Fprintf(&b, "\n- %s: unrecognized test name", m.Name)
	}
	fmt.Fprintf(&b, "\n\n%s", analysis.Disclaimer)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: b.String()},
		},
	}, analysis, nil
}

// handleLookupTest handles the lookup_test tool invocation
func (s *LabServer) handleLookupTest(ctx context.Context, req *mcp.CallToolRequest, params LookupTestParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool": "lookup_test",
		"name": params.Name,
	}).Info("Tool invoked")

	if strings.TrimSpace(params.Name) == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("name is required")), nil, nil
	}

	identity, ok := s.identities.ResolveAlias(params.Name)
	if !ok {
		// Canonical keys are uppercase; aliases cover the human spellings.
		if byKey, err := s.identities.GetTest(domain.TestKey(strings.ToUpper(strings.TrimSpace(params.Name)))); err == nil {
			identity, ok = byKey, true
		}
	}
	if !ok {
		return s.createErrorResult("Unknown test", fmt.Errorf("%q does not match any supported test or alias", params.Name)), nil, nil
	}

	result := LookupTestResult{
		Key:         identity.Key.String(),
		DisplayName: identity.DisplayName,
		Panel:       string(identity.Panel),
		Unit:        identity.Unit,
		RangeLow:    identity.Range.Low,
		RangeHigh:   identity.Range.High,
		Aliases:     identity.Aliases,
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("%s (%s): %s panel, unit %s", result.DisplayName, result.Key, result.Panel, result.Unit),
			},
		},
	}, result, nil
}

// handleListSupportedTests handles the list_supported_tests tool invocation
func (s *LabServer) handleListSupportedTests(ctx context.Context, req *mcp.CallToolRequest, params ListSupportedTestsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "list_supported_tests").Info("Tool invoked")

	tests := s.identities.ListTests()
	panels := s.identities.ListPanels()

	result := ListSupportedTestsResult{
		TestCount: len(tests),
		Panels:    make([]PanelSummary, 0, len(panels)),
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d supported tests in %d panels", len(tests), len(panels))
	for _, p := range panels {
		summary := PanelSummary{
			Key:         string(p.Key),
			DisplayName: p.DisplayName,
			Description: p.Description,
			Tests:       make([]string, 0, len(p.Tests)),
		}
		for _, key := range p.Tests {
			summary.Tests = append(summary.Tests, key.String())
		}
		result.Panels = append(result.Panels, summary)

		fmt.Fprintf(&b, "\n%s: %s", p.DisplayName, strings.Join(summary.Tests, ", "))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: b.String()},
		},
	}, result, nil
}

// createErrorResult builds an error tool result with a descriptive message
func (s *LabServer) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
