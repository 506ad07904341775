package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AIAnalyzer is the port for all AI inference used by the analysis pipelines.
// Implementations return ErrServiceUnavailable (wrapped) when the backing
// service is down; callers treat that as a failed analysis, never a fatal
// error.
type AIAnalyzer interface {
	AnalyzeQuote(ctx context.Context, text string, totalAmount int64) (map[string]interface{}, error)
	AnalyzeContract(ctx context.Context, text string) (map[string]interface{}, error)
	AnalyzeAcceptance(ctx context.Context, stage string, fileURLs []string) (map[string]interface{}, error)
	ConsultDesigner(ctx context.Context, question string, history []string, imageURLs []string) (string, error)
}

// ErrServiceUnavailable is the sentinel for a down or overloaded AI backend
var ErrServiceUnavailable = fmt.Errorf("ai service unavailable")

// AIClient is the HTTP implementation of AIAnalyzer
type AIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAIClient creates a new AI analyzer client
func NewAIClient(baseURL, apiKey string, timeout time.Duration) *AIClient {
	return &AIClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// AnalyzeQuote analyzes OCR'd quote text for risk items and line items
func (c *AIClient) AnalyzeQuote(ctx context.Context, text string, totalAmount int64) (map[string]interface{}, error) {
	return c.analyze(ctx, "/v1/analyze/quote", map[string]interface{}{
		"text":         text,
		"total_amount": totalAmount,
	})
}

// AnalyzeContract analyzes OCR'd contract text for unfair terms
func (c *AIClient) AnalyzeContract(ctx context.Context, text string) (map[string]interface{}, error) {
	return c.analyze(ctx, "/v1/analyze/contract", map[string]interface{}{
		"text": text,
	})
}

// AnalyzeAcceptance analyzes stage acceptance photos
func (c *AIClient) AnalyzeAcceptance(ctx context.Context, stage string, fileURLs []string) (map[string]interface{}, error) {
	return c.analyze(ctx, "/v1/analyze/acceptance", map[string]interface{}{
		"stage":     stage,
		"file_urls": fileURLs,
	})
}

// ConsultDesigner answers a free-form design question with chat history
func (c *AIClient) ConsultDesigner(ctx context.Context, question string, history []string, imageURLs []string) (string, error) {
	result, err := c.analyze(ctx, "/v1/consult/designer", map[string]interface{}{
		"question":   question,
		"history":    history,
		"image_urls": imageURLs,
	})
	if err != nil {
		return "", err
	}
	answer, _ := result["answer"].(string)
	return answer, nil
}

func (c *AIClient) analyze(ctx context.Context, path string, payload map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal AI request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build AI request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read AI response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ai request failed with status %d: %s", resp.StatusCode, string(data))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		// Model backends occasionally return prose; surface it as a raw
		// text payload rather than failing
		return map[string]interface{}{"raw_text": string(data)}, nil
	}
	return result, nil
}
