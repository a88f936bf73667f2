// Package twenty provides a client for the Twenty CRM REST and GraphQL APIs.
package twenty

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

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Twenty CRM operations used by the migration.
type Client interface {
	// SearchPeople runs the REST person search. It issues a GET with a
	// query parameter and falls back to POST when the server answers 404
	// or 405.
	SearchPeople(ctx context.Context, query string) ([]Person, error)
	// FindPersonByEmail looks a person up through the GraphQL API.
	FindPersonByEmail(ctx context.Context, email string) (*Person, error)
	CreatePerson(ctx context.Context, in PersonInput) (string, error)
	UpdatePerson(ctx context.Context, id string, in PersonInput) (string, error)
	SearchCompanies(ctx context.Context, name string) ([]Company, error)
	CreateCompany(ctx context.Context, name string) (string, error)
	// Ping checks that the token can list people.
	Ping(ctx context.Context) error
}

// Paths holds the endpoint paths, relative to the base URL.
type Paths struct {
	CreatePerson       string
	UpdatePerson       string
	SearchPerson       string
	CreateOrganization string
	SearchOrganization string
	GraphQL            string
}

// DefaultPaths returns the stock Twenty endpoint layout.
func DefaultPaths() Paths {
	return Paths{
		CreatePerson:       "/rest/people",
		UpdatePerson:       "/rest/people",
		SearchPerson:       "/rest/people/search",
		CreateOrganization: "/rest/companies",
		SearchOrganization: "/rest/companies/search",
		GraphQL:            "/graphql",
	}
}

// Option configures the Twenty client.
type Option func(*httpClient)

// WithPaths overrides endpoint paths. Empty fields keep their defaults.
func WithPaths(p Paths) Option {
	return func(c *httpClient) {
		if p.CreatePerson != "" {
			c.paths.CreatePerson = p.CreatePerson
		}
		if p.UpdatePerson != "" {
			c.paths.UpdatePerson = p.UpdatePerson
		}
		if p.SearchPerson != "" {
			c.paths.SearchPerson = p.SearchPerson
		}
		if p.CreateOrganization != "" {
			c.paths.CreateOrganization = p.CreateOrganization
		}
		if p.SearchOrganization != "" {
			c.paths.SearchOrganization = p.SearchOrganization
		}
		if p.GraphQL != "" {
			c.paths.GraphQL = p.GraphQL
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps requests per second across all endpoints.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	baseURL string
	token   string
	paths   Paths
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Twenty client.
func NewClient(baseURL, token string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		paths:   DefaultPaths(),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) endpoint(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *httpClient) do(ctx context.Context, method, rawURL string, payload any) ([]byte, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, eris.Wrap(err, "twenty: rate limit")
		}
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, eris.Wrap(err, "twenty: marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, 0, eris.Wrap(err, "twenty: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
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
		return nil, resp.StatusCode, eris.Wrap(err, "twenty: read response body")
	}
	return respBody, resp.StatusCode, nil
}

func ok(status int) bool { return status >= 200 && status <= 299 }

func (c *httpClient) search(ctx context.Context, path, query string) ([]byte, error) {
	u := c.endpoint(path) + "?" + url.Values{"query": {query}}.Encode()
	body, status, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	if status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
		body, status, err = c.do(ctx, http.MethodPost, c.endpoint(path), map[string]string{"query": query})
		if err != nil {
			return nil, err
		}
	}

	if !ok(status) {
		return nil, &RequestError{Op: "search", StatusCode: status, Body: string(body)}
	}
	return body, nil
}

func (c *httpClient) SearchPeople(ctx context.Context, query string) ([]Person, error) {
	body, err := c.search(ctx, c.paths.SearchPerson, query)
	if err != nil {
		return nil, eris.Wrap(err, "twenty: search people")
	}
	var people []Person
	if err := decodeList(body, "people", &people); err != nil {
		return nil, eris.Wrap(err, "twenty: decode people")
	}
	return people, nil
}

func (c *httpClient) SearchCompanies(ctx context.Context, name string) ([]Company, error) {
	body, err := c.search(ctx, c.paths.SearchOrganization, name)
	if err != nil {
		return nil, eris.Wrap(err, "twenty: search companies")
	}
	var companies []Company
	if err := decodeList(body, "companies", &companies); err != nil {
		return nil, eris.Wrap(err, "twenty: decode companies")
	}
	return companies, nil
}

const findPersonQuery = `query FindPerson($email: String!) {
  people(filter: { emails: { primaryEmail: { eq: $email } } }, first: 1) {
    edges { node { id emails { primaryEmail } name { firstName lastName } tags } }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type findPersonResponse struct {
	Data struct {
		People struct {
			Edges []struct {
				Node Person `json:"node"`
			} `json:"edges"`
		} `json:"people"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *httpClient) FindPersonByEmail(ctx context.Context, email string) (*Person, error) {
	req := graphQLRequest{Query: findPersonQuery, Variables: map[string]any{"email": email}}
	body, status, err := c.do(ctx, http.MethodPost, c.endpoint(c.paths.GraphQL), req)
	if err != nil {
		return nil, eris.Wrap(err, "twenty: graphql find person")
	}
	if !ok(status) {
		return nil, &RequestError{Op: "graphql find person", StatusCode: status, Body: string(body)}
	}

	var resp findPersonResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "twenty: decode graphql response")
	}
	if len(resp.Errors) > 0 {
		return nil, eris.Errorf("twenty: graphql find person: %s", resp.Errors[0].Message)
	}
	if len(resp.Data.People.Edges) == 0 {
		return nil, nil
	}
	p := resp.Data.People.Edges[0].Node
	return &p, nil
}

func (c *httpClient) CreatePerson(ctx context.Context, in PersonInput) (string, error) {
	body, status, err := c.do(ctx, http.MethodPost, c.endpoint(c.paths.CreatePerson), in)
	if err != nil {
		return "", eris.Wrap(err, "twenty: create person")
	}
	if !ok(status) {
		return "", &WriteError{Op: "create", StatusCode: status, Body: string(body)}
	}
	id := extractID(body)
	if id == "" {
		return "", eris.Errorf("twenty: create person: response has no id: %s", truncate(string(body), 200))
	}
	return id, nil
}

func (c *httpClient) UpdatePerson(ctx context.Context, id string, in PersonInput) (string, error) {
	u := fmt.Sprintf("%s/%s", c.endpoint(c.paths.UpdatePerson), url.PathEscape(id))
	body, status, err := c.do(ctx, http.MethodPatch, u, in)
	if err != nil {
		return "", eris.Wrap(err, "twenty: update person")
	}
	if !ok(status) {
		return "", &WriteError{Op: "update", StatusCode: status, Body: string(body)}
	}
	if got := extractID(body); got != "" {
		return got, nil
	}
	return id, nil
}

func (c *httpClient) CreateCompany(ctx context.Context, name string) (string, error) {
	body, status, err := c.do(ctx, http.MethodPost, c.endpoint(c.paths.CreateOrganization), map[string]string{"name": name})
	if err != nil {
		return "", eris.Wrap(err, "twenty: create company")
	}
	if !ok(status) {
		return "", &WriteError{Op: "create company", StatusCode: status, Body: string(body)}
	}
	id := extractID(body)
	if id == "" {
		return "", eris.New("twenty: create company: response has no id")
	}
	return id, nil
}

func (c *httpClient) Ping(ctx context.Context) error {
	body, status, err := c.do(ctx, http.MethodGet, c.endpoint(c.paths.CreatePerson)+"?limit=1", nil)
	if err != nil {
		return eris.Wrap(err, "twenty: ping")
	}
	if !ok(status) {
		return &RequestError{Op: "ping", StatusCode: status, Body: string(body)}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
