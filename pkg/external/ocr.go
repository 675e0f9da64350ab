package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/lab-report-companion/internal/domain"
)

// OCRClient handles interactions with a self-hosted OCR sidecar (tesseract
// or compatible) that accepts a document upload and returns recognized text.
type OCRClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	retryCount int
}

// OCRResponse represents the JSON response structure from the OCR service
type OCRResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// NewOCRClient creates a new OCR service client
func NewOCRClient(config domain.OCRConfig) *OCRClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}

	return &OCRClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		retryCount: config.RetryCount,
	}
}

// Recognize submits a document to the OCR service and returns the recovered
// plain text as an extraction. Transport errors and 5xx responses are retried
// up to the configured count; 4xx responses and malformed payloads are not.
func (c *OCRClient) Recognize(ctx context.Context, doc *domain.Document) (*domain.Extraction, error) {
	if doc == nil || len(doc.Data) == 0 {
		return nil, fmt.Errorf("document is empty")
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		extraction, retryable, err := c.recognizeOnce(ctx, doc)
		if err == nil {
			return extraction, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, lastErr
}

func (c *OCRClient) recognizeOnce(ctx context.Context, doc *domain.Document) (*domain.Extraction, bool, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	filename := doc.Filename
	if filename == "" {
		filename = "document"
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(doc.Data); err != nil {
		return nil, false, fmt.Errorf("failed to write document data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, false, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	requestURL := fmt.Sprintf("%s/ocr", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", requestURL, body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create OCR request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("OCR request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode >= 500, fmt.Errorf("OCR service returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read OCR response: %w", err)
	}

	var payload OCRResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false, fmt.Errorf("failed to parse OCR response: %w", err)
	}

	return &domain.Extraction{
		Text:       payload.Text,
		Source:     "ocr",
		Confidence: payload.Confidence,
	}, false, nil
}
