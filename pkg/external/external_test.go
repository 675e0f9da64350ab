package external

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lab-report-companion/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestOCRClient_Recognize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ocr", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "report.png", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text": "Glucose: 95 mg/dL", "confidence": 0.93}`)
	}))
	defer server.Close()

	client := NewOCRClient(domain.OCRConfig{
		BaseURL:   server.URL,
		APIKey:    "secret",
		Timeout:   5 * time.Second,
		RateLimit: 100,
	})

	extraction, err := client.Recognize(context.Background(), &domain.Document{
		Filename: "report.png",
		Data:     []byte("fake image bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Glucose: 95 mg/dL", extraction.Text)
	assert.Equal(t, "ocr", extraction.Source)
	assert.InDelta(t, 0.93, extraction.Confidence, 1e-9)
}

func TestOCRClient_RetriesServerErrors(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		if requestCount < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"text": "WBC: 7.5", "confidence": 0.8}`)
	}))
	defer server.Close()

	client := NewOCRClient(domain.OCRConfig{
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		RateLimit:  100,
		RetryCount: 2,
	})

	extraction, err := client.Recognize(context.Background(), &domain.Document{Data: []byte("scan")})
	require.NoError(t, err)
	assert.Equal(t, "WBC: 7.5", extraction.Text)
	assert.Equal(t, 3, requestCount)
}

func TestOCRClient_DoesNotRetryClientErrors(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusUnsupportedMediaType)
	}))
	defer server.Close()

	client := NewOCRClient(domain.OCRConfig{
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		RateLimit:  100,
		RetryCount: 3,
	})

	_, err := client.Recognize(context.Background(), &domain.Document{Data: []byte("scan")})
	assert.Error(t, err)
	assert.Equal(t, 1, requestCount)
}

func TestVisionClient_ExtractResults(t *testing.T) {
	docData := []byte("fake image bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/extract", r.URL.Path)
		assert.Equal(t, "Bearer vision-key", r.Header.Get("Authorization"))

		var req struct {
			ImageBase64 string `json:"image_base64"`
			ContentType string `json:"content_type"`
			Model       string `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		require.NoError(t, err)
		assert.Equal(t, docData, decoded)
		assert.Equal(t, "image/png", req.ContentType)
		assert.Equal(t, "lab-extract-v2", req.Model)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"results": [
				{"name": "Glucose", "value": 95, "unit": "mg/dL"},
				{"name": "HDL Cholesterol", "value": 62, "unit": "mg/dL"}
			],
			"demographics": {"gender": "F", "age": 34},
			"confidence": 0.9
		}`)
	}))
	defer server.Close()

	client := NewVisionClient(domain.VisionConfig{
		BaseURL:   server.URL,
		APIKey:    "vision-key",
		Model:     "lab-extract-v2",
		Timeout:   5 * time.Second,
		RateLimit: 100,
	})
	require.True(t, client.Enabled())

	extraction, err := client.ExtractResults(context.Background(), &domain.Document{
		Filename:    "report.png",
		ContentType: "image/png",
		Data:        docData,
	})
	require.NoError(t, err)
	assert.Equal(t, "vision", extraction.Source)
	require.Len(t, extraction.Structured, 2)
	assert.Equal(t, "Glucose", extraction.Structured[0].TestName)
	assert.InDelta(t, 95.0, extraction.Structured[0].Value, 1e-9)
	assert.Equal(t, "mg/dL", extraction.Structured[0].Unit)

	require.NotNil(t, extraction.Demographics)
	assert.Equal(t, domain.FEMALE, extraction.Demographics.Gender)
	require.NotNil(t, extraction.Demographics.Age)
	assert.Equal(t, 34, *extraction.Demographics.Age)
}

func TestVisionClient_Disabled(t *testing.T) {
	client := NewVisionClient(domain.VisionConfig{})
	assert.False(t, client.Enabled())

	_, err := client.ExtractResults(context.Background(), &domain.Document{Data: []byte("scan")})
	assert.Error(t, err)
}

func TestResilientExtractor_HotCacheHit(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		fmt.Fprint(w, `{"text": "Glucose: 95 mg/dL", "confidence": 0.95}`)
	}))
	defer server.Close()

	extractor, err := NewResilientExtractor(&domain.ExtractionConfig{
		OCR: domain.OCRConfig{BaseURL: server.URL, Timeout: 5 * time.Second, RateLimit: 100},
	}, nil, testLogger())
	require.NoError(t, err)

	doc := &domain.Document{Filename: "report.png", Data: []byte("same bytes")}

	first, err := extractor.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "Glucose: 95 mg/dL", first.Text)

	second, err := extractor.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 1, requestCount)
}

func TestResilientExtractor_VisionFallbackOnLowConfidence(t *testing.T) {
	ocrServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"text": "G1ucos3 9S", "confidence": 0.2}`)
	}))
	defer ocrServer.Close()

	visionServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [{"name": "Glucose", "value": 95, "unit": "mg/dL"}], "confidence": 0.9}`)
	}))
	defer visionServer.Close()

	extractor, err := NewResilientExtractor(&domain.ExtractionConfig{
		OCR:                 domain.OCRConfig{BaseURL: ocrServer.URL, Timeout: 5 * time.Second, RateLimit: 100},
		Vision:              domain.VisionConfig{BaseURL: visionServer.URL, Timeout: 5 * time.Second, RateLimit: 100},
		ConfidenceThreshold: 0.5,
	}, nil, testLogger())
	require.NoError(t, err)

	extraction, err := extractor.Extract(context.Background(), &domain.Document{Data: []byte("blurry scan")})
	require.NoError(t, err)
	assert.Equal(t, "vision", extraction.Source)
	require.Len(t, extraction.Structured, 1)
	assert.Equal(t, "Glucose", extraction.Structured[0].TestName)
}

func TestResilientExtractor_KeepsOCRWhenVisionFails(t *testing.T) {
	ocrServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"text": "Glucose: 95 mg/dL", "confidence": 0.3}`)
	}))
	defer ocrServer.Close()

	visionServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer visionServer.Close()

	extractor, err := NewResilientExtractor(&domain.ExtractionConfig{
		OCR:                 domain.OCRConfig{BaseURL: ocrServer.URL, Timeout: 5 * time.Second, RateLimit: 100},
		Vision:              domain.VisionConfig{BaseURL: visionServer.URL, Timeout: 5 * time.Second, RateLimit: 100},
		ConfidenceThreshold: 0.5,
	}, nil, testLogger())
	require.NoError(t, err)

	extraction, err := extractor.Extract(context.Background(), &domain.Document{Data: []byte("scan")})
	require.NoError(t, err)
	assert.Equal(t, "ocr", extraction.Source)
	assert.Equal(t, "Glucose: 95 mg/dL", extraction.Text)
}

func TestResilientExtractor_BreakerOpensAfterFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	extractor, err := NewResilientExtractor(&domain.ExtractionConfig{
		OCR: domain.OCRConfig{BaseURL: server.URL, Timeout: 5 * time.Second, RateLimit: 100},
	}, nil, testLogger())
	require.NoError(t, err)

	// Distinct payloads keep the hot cache out of the way.
	for i := 0; i < 3; i++ {
		_, err := extractor.Extract(context.Background(), &domain.Document{Data: []byte(fmt.Sprintf("doc-%d", i))})
		assert.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, extractor.BreakerStates()["ocr"])

	_, err = extractor.Extract(context.Background(), &domain.Document{Data: []byte("doc-after-trip")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
}

func TestExtractionKey_Deterministic(t *testing.T) {
	a := ExtractionKey([]byte("same content"))
	b := ExtractionKey([]byte("same content"))
	c := ExtractionKey([]byte("different content"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "lab:extract:")
}
