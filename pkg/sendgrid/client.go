// Package sendgrid provides a client for the SendGrid Marketing Campaigns
// contact export API.
package sendgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-migrator/internal/model"
)

const exportsPath = "/v3/marketing/contacts/exports"

// Client defines the SendGrid export operations.
type Client interface {
	// CreateExport starts an export job and returns its ID.
	CreateExport(ctx context.Context, filter ExportFilter) (string, error)
	// GetExport fetches the current state of an export job.
	GetExport(ctx context.Context, id string) (*model.ExportJob, error)
	// Ping verifies the API key by listing recent exports.
	Ping(ctx context.Context) error
}

// ExportFilter scopes an export to lists and segments. Both empty exports
// every contact.
type ExportFilter struct {
	ListIDs    []string
	SegmentIDs []string
}

type createExportRequest struct {
	ListIDs       []string      `json:"list_ids"`
	SegmentIDs    []string      `json:"segment_ids"`
	Notifications notifications `json:"notifications"`
}

type notifications struct {
	Email bool `json:"email"`
}

type exportResponse struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	URLs   []string `json:"urls"`
}

// Option configures the SendGrid client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new SendGrid client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.sendgrid.com",
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) do(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, eris.Wrap(err, "sendgrid: marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sendgrid: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "sendgrid: read response body")
	}
	return respBody, resp.StatusCode, nil
}

func (c *httpClient) CreateExport(ctx context.Context, filter ExportFilter) (string, error) {
	payload := createExportRequest{
		ListIDs:       nonNil(filter.ListIDs),
		SegmentIDs:    nonNil(filter.SegmentIDs),
		Notifications: notifications{Email: false},
	}

	body, status, err := c.do(ctx, http.MethodPost, exportsPath, payload)
	if err != nil {
		return "", eris.Wrap(err, "sendgrid: create export")
	}
	if status < 200 || status > 299 {
		return "", &ExportCreateError{StatusCode: status, Body: string(body)}
	}

	var result exportResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", eris.Wrap(err, "sendgrid: unmarshal create export response")
	}
	if result.ID == "" {
		return "", &ExportCreateError{StatusCode: status, Body: "missing job id"}
	}
	return result.ID, nil
}

func (c *httpClient) GetExport(ctx context.Context, id string) (*model.ExportJob, error) {
	body, status, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%s", exportsPath, id), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "sendgrid: get export %s", id)
	}
	if status != http.StatusOK {
		return nil, &StatusError{Op: "get export", StatusCode: status, Body: string(body)}
	}

	var result exportResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "sendgrid: unmarshal export status")
	}

	if result.ID == "" {
		result.ID = id
	}
	return &model.ExportJob{
		ID:     result.ID,
		Status: MapStatus(result.Status),
		URLs:   result.URLs,
	}, nil
}

func (c *httpClient) Ping(ctx context.Context) error {
	body, status, err := c.do(ctx, http.MethodGet, exportsPath, nil)
	if err != nil {
		return eris.Wrap(err, "sendgrid: ping")
	}
	if status != http.StatusOK {
		return &StatusError{Op: "ping", StatusCode: status, Body: string(body)}
	}
	return nil
}

// MapStatus normalizes the export states SendGrid reports.
func MapStatus(s string) model.ExportStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ready", "completed":
		return model.ExportReady
	case "failed", "failure":
		return model.ExportFailed
	default:
		return model.ExportPending
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
