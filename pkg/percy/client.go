package percy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// JobKind selects the endpoint a job is submitted to.
type JobKind string

// Job kinds.
const (
	JobSnapshot JobKind = "snapshot"
	JobUpload   JobKind = "upload"
)

// Job is a unit of work submitted to the Percy process.
type Job struct {
	ID      string
	Kind    JobKind
	Payload map[string]any
}

// Name returns the payload name, used in log lines.
func (j Job) Name() string {
	if name, ok := j.Payload["name"].(string); ok && name != "" {
		return name
	}
	if url, ok := j.Payload["url"].(string); ok {
		return url
	}
	return j.ID
}

// StartOptions are passed to the Percy process when it starts a build.
type StartOptions struct {
	DeferUploads  bool           `json:"deferUploads,omitempty"`
	DelayUploads  bool           `json:"delayUploads,omitempty"`
	SkipDiscovery bool           `json:"skipDiscovery,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
}

// BuildID is a build identifier. The Percy process reports it either as a
// string or as a number.
type BuildID string

// UnmarshalJSON accepts a JSON string or number.
func (id *BuildID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = BuildID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid build id %s", data)
	}
	*id = BuildID(n.String())
	return nil
}

// Build describes the build the Percy process is working on.
type Build struct {
	ID     BuildID `json:"id"`
	Number int     `json:"number"`
	URL    string  `json:"url"`
}

// Health is the healthcheck response of the Percy process.
type Health struct {
	Success bool   `json:"success"`
	Build   *Build `json:"build,omitempty"`
	Version string `json:"-"`
}

// Collaborator is the narrow interface the controller uses to talk to the
// Percy process.
type Collaborator interface {
	Healthcheck(ctx context.Context) (*Health, error)
	Start(ctx context.Context, opts StartOptions) error
	SubmitJob(ctx context.Context, job Job) error
	Stop(ctx context.Context) error
}

// Client talks to a Percy process over its local HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// BaseURL returns the address of the Percy process. address, when set, is
// used verbatim.
func BaseURL(host string, port int, address string) string {
	if address != "" {
		return strings.TrimSuffix(address, "/")
	}
	if host == "" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// NewClient creates a client for the Percy process at baseURL. When
// httpClient is nil a client that never uses a proxy is created.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: &http.Transport{Proxy: nil},
		}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Address returns the base URL of the client.
func (c *Client) Address() string {
	return c.baseURL
}

// Healthcheck asks the Percy process whether it is running.
func (c *Client) Healthcheck(ctx context.Context) (*Health, error) {
	var health Health
	resp, err := c.do(ctx, http.MethodGet, "/percy/healthcheck", nil, &health)
	if err != nil {
		return nil, err
	}
	health.Version = resp.Header.Get("X-Percy-Core-Version")
	return &health, nil
}

// Start asks the Percy process to start a build.
func (c *Client) Start(ctx context.Context, opts StartOptions) error {
	_, err := c.do(ctx, http.MethodPost, "/percy/start", opts, nil)
	return err
}

// SubmitJob posts a snapshot or upload job.
func (c *Client) SubmitJob(ctx context.Context, job Job) error {
	var path string
	switch job.Kind {
	case JobSnapshot:
		path = "/percy/snapshot"
	case JobUpload:
		path = "/percy/upload"
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
	_, err := c.do(ctx, http.MethodPost, path, job.Payload, nil)
	return err
}

// Stop asks the Percy process to finalize the build and exit.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/percy/stop", nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%s %s: %w", method, path, ErrNotListening)
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
		}
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp, nil
}

// errorMessage extracts the message of an error response body.
func errorMessage(body []byte) string {
	var data struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return strings.TrimSpace(string(body))
	}
	if data.Error != "" {
		return data.Error
	}
	return data.Message
}
