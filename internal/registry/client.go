package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"regcheck/internal/descriptor"
	"regcheck/pkg/logging"
)

const (
	// DefaultBaseURL is where a locally started registry listens.
	DefaultBaseURL = "http://localhost:8082"
	// MaxPerPage is the largest page size the registry accepts.
	MaxPerPage = 100

	defaultRequestTimeout = 10 * time.Second
	maxErrorBody          = 4096
)

// Registry is the subset of the registry API the checks depend on.
type Registry interface {
	Create(ctx context.Context, id string, svc *descriptor.Service) (*descriptor.Service, error)
	Read(ctx context.Context, id string) (*descriptor.Service, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, page, perPage int) (*descriptor.Index, error)
}

// Client talks to the registry's REST API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

// NewClient creates a client for the registry rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, &descriptor.ConfigurationError{Option: "base_url", Value: baseURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &descriptor.ConfigurationError{
			Option: "base_url",
			Value:  baseURL,
			Err:    fmt.Errorf("scheme must be http or https"),
		}
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the registry root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Create registers svc under id and returns the stored representation.
func (c *Client) Create(ctx context.Context, id string, svc *descriptor.Service) (*descriptor.Service, error) {
	if id == "" {
		return nil, fmt.Errorf("create: id must not be empty")
	}
	body, err := json.Marshal(svc)
	if err != nil {
		return nil, fmt.Errorf("create: encoding service: %w", err)
	}

	res, err := c.do(ctx, "create", http.MethodPut, c.entryURL(id), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return nil, statusError("create", id, res)
	}

	var stored descriptor.Service
	if err := json.NewDecoder(res.Body).Decode(&stored); err != nil {
		return nil, fmt.Errorf("create: decoding response: %w", err)
	}
	logging.Debug("Registry", "created service %s (%d)", id, res.StatusCode)
	return &stored, nil
}

// Read retrieves the entry stored under id.
func (c *Client) Read(ctx context.Context, id string) (*descriptor.Service, error) {
	res, err := c.do(ctx, "read", http.MethodGet, c.entryURL(id), nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, statusError("read", id, res)
	}

	var svc descriptor.Service
	if err := json.NewDecoder(res.Body).Decode(&svc); err != nil {
		return nil, fmt.Errorf("read: decoding response: %w", err)
	}
	return &svc, nil
}

// Delete removes the entry stored under id.
func (c *Client) Delete(ctx context.Context, id string) error {
	res, err := c.do(ctx, "delete", http.MethodDelete, c.entryURL(id), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusNoContent {
		return statusError("delete", id, res)
	}
	logging.Debug("Registry", "deleted service %s", id)
	return nil
}

// List retrieves one page of the registry listing.
func (c *Client) List(ctx context.Context, page, perPage int) (*descriptor.Index, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	u.RawQuery = q.Encode()

	res, err := c.do(ctx, "list", http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, statusError("list", "", res)
	}

	var idx descriptor.Index
	if err := json.NewDecoder(res.Body).Decode(&idx); err != nil {
		return nil, fmt.Errorf("list: decoding response: %w", err)
	}
	return &idx, nil
}

// Ping checks the registry's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/health"

	res, err := c.do(ctx, "ping", http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return statusError("ping", "", res)
	}
	return nil
}

func (c *Client) entryURL(id string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + id
	return u.String()
}

func (c *Client) do(ctx context.Context, op, method, target string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, URL: target, Err: err}
	}
	return res, nil
}

// statusError maps a failed response to NotFoundError or ProtocolError.
func statusError(op, id string, res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))

	msg := strings.TrimSpace(string(raw))
	var ae apiError
	if err := json.Unmarshal(raw, &ae); err == nil && ae.Message != "" {
		msg = ae.Message
	}

	if res.StatusCode == http.StatusNotFound && id != "" {
		return &NotFoundError{ID: id, Message: msg}
	}
	return &ProtocolError{
		Op:         op,
		StatusCode: res.StatusCode,
		Message:    msg,
		Body:       string(raw),
	}
}
