package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OCRResult is the recognized content of an uploaded document
type OCRResult struct {
	Text   string     `json:"text"`
	Tables [][]string `json:"tables,omitempty"`
}

// OCR is the port for text extraction from uploaded files
type OCR interface {
	// Recognize extracts text from a file referenced by URL
	Recognize(ctx context.Context, fileURL, kind string) (*OCRResult, error)
	// RecognizeBytes extracts text from inline content
	RecognizeBytes(ctx context.Context, content []byte, kind string) (*OCRResult, error)
}

// OCRClient is the HTTP implementation of the OCR port
type OCRClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewOCRClient creates a new OCR client
func NewOCRClient(baseURL, apiKey string, timeout time.Duration) *OCRClient {
	return &OCRClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Recognize extracts text from a file referenced by URL
func (c *OCRClient) Recognize(ctx context.Context, fileURL, kind string) (*OCRResult, error) {
	return c.recognize(ctx, map[string]interface{}{
		"file_url": fileURL,
		"kind":     kind,
	})
}

// RecognizeBytes extracts text from inline base64 content
func (c *OCRClient) RecognizeBytes(ctx context.Context, content []byte, kind string) (*OCRResult, error) {
	return c.recognize(ctx, map[string]interface{}{
		"content_base64": base64.StdEncoding.EncodeToString(content),
		"kind":           kind,
	})
}

func (c *OCRClient) recognize(ctx context.Context, payload map[string]interface{}) (*OCRResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OCR request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/recognize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read OCR response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocr request failed with status %d: %s", resp.StatusCode, string(data))
	}

	var result OCRResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode OCR response: %w", err)
	}
	return &result, nil
}
