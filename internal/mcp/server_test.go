package mcp

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lab-report-companion/internal/config"
	"github.com/lab-report-companion/internal/domain"
)

func newTestServer(t *testing.T) *LabServer {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &config.LiteConfig{
		DataDir:       filepath.Join(t.TempDir(), "data"),
		CacheMaxItems: 100,
		CacheTTL:      time.Minute,
		LogLevel:      "error",
		LogFormat:     "json",
	}

	server, err := NewLabServer(cfg, WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	return server
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewLabServer(t *testing.T) {
	server := newTestServer(t)

	assert.NotNil(t, server.mcpServer)
	assert.NotNil(t, server.analyzer)
	assert.NotNil(t, server.identities)
	assert.NotNil(t, server.cache)
	assert.NotNil(t, server.history)
}

func TestHandleAnalyzeLabText(t *testing.T) {
	server := newTestServer(t)
	age := 40

	result, out, err := server.handleAnalyzeLabText(context.Background(), nil, AnalyzeLabTextParams{
		Text:   "Glucose: 95 mg/dL\nWBC: 12.5",
		Gender: "male",
		Age:    &age,
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	analysis, ok := out.(*domain.ReportAnalysis)
	require.True(t, ok)
	require.Len(t, analysis.Results, 2)
	assert.Equal(t, domain.GLUCOSE, analysis.Results[0].Test)
	assert.Equal(t, domain.NORMAL, analysis.Results[0].Status)
	assert.Equal(t, domain.Disclaimer, analysis.Disclaimer)

	text := textContent(t, result)
	assert.Contains(t, text, "Analyzed 2 result(s)")
	assert.Contains(t, text, "Glucose")
	assert.Contains(t, text, "NORMAL")
	assert.Contains(t, text, domain.Disclaimer)
}

func TestHandleAnalyzeLabText_MissingText(t *testing.T) {
	server := newTestServer(t)

	result, out, err := server.handleAnalyzeLabText(context.Background(), nil, AnalyzeLabTextParams{})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.True(t, result.IsError)
	assert.Contains(t, textContent(t, result), "text is required")
}

func TestHandleAnalyzeLabText_CachesSubjectFreeCalls(t *testing.T) {
	server := newTestServer(t)

	params := AnalyzeLabTextParams{Text: "Glucose: 95 mg/dL"}

	_, _, err := server.handleAnalyzeLabText(context.Background(), nil, params)
	require.NoError(t, err)
	_, _, err = server.handleAnalyzeLabText(context.Background(), nil, params)
	require.NoError(t, err)

	stats := server.GetCache().Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Items)
}

func TestHandleAnalyzeLabText_SubjectHistoryAndTrend(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	_, _, err := server.handleAnalyzeLabText(ctx, nil, AnalyzeLabTextParams{
		Text:    "WBC: 12.5",
		Subject: "maria-g",
	})
	require.NoError(t, err)

	result, out, err := server.handleAnalyzeLabText(ctx, nil, AnalyzeLabTextParams{
		Text:    "WBC: 8.0",
		Subject: "maria-g",
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	analysis, ok := out.(*domain.ReportAnalysis)
	require.True(t, ok)
	require.Len(t, analysis.Results, 1)
	assert.Equal(t, domain.IMPROVING, analysis.Results[0].Trend)
	require.NotNil(t, analysis.Results[0].Previous)
	assert.InDelta(t, 12.5, *analysis.Results[0].Previous, 1e-9)

	count, err := server.GetHistoryStore().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// History-backed analyses never come from the cache.
	assert.Equal(t, int64(0), server.GetCache().Stats().Hits)
	assert.Equal(t, 0, server.GetCache().Stats().Items)
}

func TestHandleLookupTest(t *testing.T) {
	server := newTestServer(t)

	result, out, err := server.handleLookupTest(context.Background(), nil, LookupTestParams{Name: "hdl"})
	require.NoError(t, err)
	require.False(t, result.IsError)

	lookup, ok := out.(LookupTestResult)
	require.True(t, ok)
	assert.Equal(t, "HDL", lookup.Key)
	assert.Equal(t, "mg/dL", lookup.Unit)
	require.NotNil(t, lookup.RangeLow)
	require.NotNil(t, lookup.RangeHigh)
	assert.NotEmpty(t, lookup.Aliases)
}

func TestHandleLookupTest_CanonicalKey(t *testing.T) {
	server := newTestServer(t)

	result, out, err := server.handleLookupTest(context.Background(), nil, LookupTestParams{Name: "GLUCOSE"})
	require.NoError(t, err)
	require.False(t, result.IsError)

	lookup, ok := out.(LookupTestResult)
	require.True(t, ok)
	assert.Equal(t, "GLUCOSE", lookup.Key)
}

func TestHandleLookupTest_Unknown(t *testing.T) {
	server := newTestServer(t)

	result, out, err := server.handleLookupTest(context.Background(), nil, LookupTestParams{Name: "flux capacitance"})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.True(t, result.IsError)
}

func TestHandleListSupportedTests(t *testing.T) {
	server := newTestServer(t)

	result, out, err := server.handleListSupportedTests(context.Background(), nil, ListSupportedTestsParams{})
	require.NoError(t, err)
	require.False(t, result.IsError)

	list, ok := out.(ListSupportedTestsResult)
	require.True(t, ok)
	assert.GreaterOrEqual(t, list.TestCount, 18)
	assert.Len(t, list.Panels, 3)

	total := 0
	for _, p := range list.Panels {
		total += len(p.Tests)
	}
	assert.Equal(t, list.TestCount, total)
}
