package external

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/lab-report-companion/internal/domain"
)

// VisionClient handles interactions with a vision-model extraction service
// that reads report images directly and returns structured results. Used as
// the fallback when OCR text recovery is poor.
type VisionClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	rateLimit  *rate.Limiter
}

type visionRequest struct {
	ImageBase64 string `json:"image_base64"`
	ContentType string `json:"content_type,omitempty"`
	Model       string `json:"model,omitempty"`
}

// VisionResponse represents the JSON response structure from the vision service
type VisionResponse struct {
	Results []struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
		Unit  string  `json:"unit"`
	} `json:"results"`
	Demographics *struct {
		Gender string `json:"gender"`
		Age    *int   `json:"age"`
	} `json:"demographics,omitempty"`
	Confidence float64 `json:"confidence"`
}

// NewVisionClient creates a new vision extraction client. An empty base URL
// leaves the client disabled; Enabled reports the state.
func NewVisionClient(config domain.VisionConfig) *VisionClient {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.Model == "" {
		config.Model = "default"
	}

	return &VisionClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Enabled reports whether a vision backend is configured.
func (c *VisionClient) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// ExtractResults sends the document image to the vision service and returns
// the structured results it recognized, including any demographics the model
// read off the report header.
func (c *VisionClient) ExtractResults(ctx context.Context, doc *domain.Document) (*domain.Extraction, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("vision backend is not configured")
	}
	if doc == nil || len(doc.Data) == 0 {
		return nil, fmt.Errorf("document is empty")
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	payload, err := json.Marshal(visionRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(doc.Data),
		ContentType: doc.ContentType,
		Model:       c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode vision request: %w", err)
	}

	requestURL := fmt.Sprintf("%s/v1/extract", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", requestURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision service returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read vision response: %w", err)
	}

	var visionResp VisionResponse
	if err := json.Unmarshal(data, &visionResp); err != nil {
		return nil, fmt.Errorf("failed to parse vision response: %w", err)
	}

	extraction := &domain.Extraction{
		Source:     "vision",
		Confidence: visionResp.Confidence,
	}
	for _, r := range visionResp.Results {
		extraction.Structured = append(extraction.Structured, domain.StructuredResult{
			TestName: r.Name,
			Value:    r.Value,
			Unit:     r.Unit,
		})
	}
	if visionResp.Demographics != nil {
		extraction.Demographics = &domain.Demographics{
			Gender: domain.ParseGender(visionResp.Demographics.Gender),
			Age:    visionResp.Demographics.Age,
		}
	}

	return extraction, nil
}
