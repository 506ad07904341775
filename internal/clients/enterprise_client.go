package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// CompanyInfo is a company returned by the enterprise lookup service
type CompanyInfo struct {
	Name           string `json:"name"`
	CreditCode     string `json:"credit_code"`
	LegalPerson    string `json:"legal_person"`
	RegisteredCap  string `json:"registered_capital"`
	EstablishedAt  string `json:"established_at"`
	OperatingState string `json:"operating_state"`
}

// LegalCase is one litigation record of a company
type LegalCase struct {
	Title    string `json:"title"`
	CaseNo   string `json:"case_no"`
	CaseType string `json:"case_type"`
	Date     string `json:"date"`
	Role     string `json:"role"`
}

// EnterpriseLookup is the port for third-party company-risk enrichment
type EnterpriseLookup interface {
	Search(ctx context.Context, keyword string, limit int) ([]CompanyInfo, error)
	Detail(ctx context.Context, name string) (*CompanyInfo, error)
	LegalCases(ctx context.Context, name string, limit int) ([]LegalCase, error)
}

// EnterpriseClient is the HTTP implementation of EnterpriseLookup
type EnterpriseClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewEnterpriseClient creates a new enterprise lookup client
func NewEnterpriseClient(baseURL, apiKey string, timeout time.Duration) *EnterpriseClient {
	return &EnterpriseClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Search finds companies matching a keyword
func (c *EnterpriseClient) Search(ctx context.Context, keyword string, limit int) ([]CompanyInfo, error) {
	var out []CompanyInfo
	params := url.Values{"keyword": {keyword}, "limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/v1/companies/search", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Detail returns registration details for an exact company name
func (c *EnterpriseClient) Detail(ctx context.Context, name string) (*CompanyInfo, error) {
	var out CompanyInfo
	params := url.Values{"name": {name}}
	if err := c.get(ctx, "/v1/companies/detail", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LegalCases returns litigation records for a company
func (c *EnterpriseClient) LegalCases(ctx context.Context, name string, limit int) ([]LegalCase, error) {
	var out []LegalCase
	params := url.Values{"name": {name}, "limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/v1/companies/legal-cases", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EnterpriseClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build enterprise request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("enterprise request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read enterprise response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("enterprise request failed with status %d: %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode enterprise response: %w", err)
	}
	return nil
}
