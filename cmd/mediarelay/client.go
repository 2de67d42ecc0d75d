package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vmunix/mediarelay/internal/apperr"
	"github.com/vmunix/mediarelay/internal/events"
	"github.com/vmunix/mediarelay/internal/job"
	"github.com/vmunix/mediarelay/internal/media"
)

// Client wraps HTTP calls to the mediarelay server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new mediarelay API client.
func NewClient(serverURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(serverURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is an error envelope returned by the server.
type APIError struct {
	Status  int
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details []apperr.Detail `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d): %s", e.Code, e.Status, e.Message)
	for _, d := range e.Details {
		fmt.Fprintf(&b, "\n  - %s: %s", d.Source, d.Message)
	}
	return b.String()
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("server error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if env.Error != nil {
		env.Error.Status = resp.StatusCode
		return env.Error
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if result != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, result)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// API response types (mirror server types)

type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

type ScrapeRequest struct {
	URL       string `json:"url"`
	Extractor string `json:"extractor,omitempty"`
	AudioOnly bool   `json:"audioOnly,omitempty"`
}

type ScrapeResponse struct {
	URL            string             `json:"url"`
	Domain         string             `json:"domain"`
	Media          []media.Descriptor `json:"media"`
	Count          int                `json:"count"`
	ExtractionTime string             `json:"extractionTime"`
}

type QuickRequest struct {
	URL       string `json:"url"`
	Extractor string `json:"extractor,omitempty"`
	AudioOnly bool   `json:"audioOnly,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

type QuickResponse struct {
	job.Result
	ProcessingTime string `json:"processingTime"`
}

type ExtractRequest struct {
	URL        string   `json:"url"`
	Extractor  string   `json:"extractor,omitempty"`
	AudioOnly  bool     `json:"audioOnly,omitempty"`
	Providers  []string `json:"providers,omitempty"`
	UploadMode string   `json:"uploadMode,omitempty"`
	Provider   string   `json:"provider,omitempty"`
	Format     string   `json:"format,omitempty"`
	Quality    string   `json:"quality,omitempty"`
	JobID      string   `json:"jobId,omitempty"`
}

type ExtractResponse struct {
	JobID     string     `json:"jobId"`
	Status    job.Status `json:"status"`
	StatusURL string     `json:"statusUrl"`
}

type FormatsResponse struct {
	URL     string             `json:"url"`
	Formats []media.Descriptor `json:"formats"`
	Count   int                `json:"count"`
}

type ProviderStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

type ProvidersResponse struct {
	Providers []ProviderStatus `json:"providers"`
	Count     int              `json:"count"`
}

type CancelResponse struct {
	JobID   string `json:"jobId"`
	Outcome string `json:"outcome"`
}

type StatsResponse struct {
	Counts map[job.Status]int `json:"counts"`
	Total  int                `json:"total"`
}

type EventsResponse struct {
	JobID  string         `json:"jobId,omitempty"`
	Events []events.Event `json:"events"`
	Count  int            `json:"count"`
}

// API methods

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Scrape(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error) {
	var resp ScrapeResponse
	if err := c.post(ctx, "/api/v1/scrape", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Quick(ctx context.Context, req QuickRequest) (*QuickResponse, error) {
	var resp QuickResponse
	if err := c.post(ctx, "/api/v1/scrape/quick", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Submit(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	var resp ExtractResponse
	if err := c.post(ctx, "/api/v1/extract", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Job(ctx context.Context, id string) (*job.Job, error) {
	var resp job.Job
	if err := c.get(ctx, "/api/v1/jobs/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Cancel(ctx context.Context, id string) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.post(ctx, "/api/v1/jobs/"+url.PathEscape(id)+"/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) JobEvents(ctx context.Context, id string) (*EventsResponse, error) {
	var resp EventsResponse
	if err := c.get(ctx, "/api/v1/jobs/"+url.PathEscape(id)+"/events", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) RecentEvents(ctx context.Context, limit int) (*EventsResponse, error) {
	var resp EventsResponse
	if err := c.get(ctx, fmt.Sprintf("/api/v1/events?limit=%d", limit), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.get(ctx, "/api/v1/jobs/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Providers(ctx context.Context) (*ProvidersResponse, error) {
	var resp ProvidersResponse
	if err := c.get(ctx, "/api/v1/providers", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Formats(ctx context.Context, pageURL string) (*FormatsResponse, error) {
	var resp FormatsResponse
	if err := c.get(ctx, "/api/v1/formats?url="+url.QueryEscape(pageURL), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
