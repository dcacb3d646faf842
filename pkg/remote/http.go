package remote

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

	"github.com/rs/zerolog"

	"github.com/xww/neutron-monitor-agent/pkg/log"
	"github.com/xww/neutron-monitor-agent/pkg/types"
)

const (
	defaultMonitorsPath = "/v1/monitors"
	defaultStatePath    = "/v1/agents/state"
	defaultStatusPath   = "/v1/ports/status"
	defaultEventsPath   = "/v1/agents/%s/events"

	userAgent = "neutron-monitor-agent/1.0"
)

// HTTPConfig holds the static configuration for an HTTP control-plane client
type HTTPConfig struct {
	BaseURL string
	Host    string

	// Timeout bounds each request; zero means 10 seconds
	Timeout time.Duration
}

// HTTPClient talks JSON over HTTP to the control plane
type HTTPClient struct {
	httpClient  *http.Client
	baseURL     string
	host        string
	monitorsURL string
	stateURL    string
	statusURL   string
	logger      zerolog.Logger
}

// NewHTTPClient builds a control-plane client from configuration
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("control plane URL is required")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPClient{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     base,
		host:        cfg.Host,
		monitorsURL: base + defaultMonitorsPath,
		stateURL:    base + defaultStatePath,
		statusURL:   base + defaultStatusPath,
		logger:      log.WithComponent("remote"),
	}, nil
}

// FetchActiveMonitors implements Client
func (c *HTTPClient) FetchActiveMonitors(ctx context.Context, ids []string) ([]*types.Monitor, error) {
	query := url.Values{}
	query.Set("host", c.host)
	for _, id := range ids {
		query.Add("id", id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.monitorsURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build monitors request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch monitors: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read monitors response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("monitor fetch failed: status %s", resp.Status)
	}

	var payload struct {
		Monitors []*types.Monitor `json:"monitors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode monitors response: %w", err)
	}
	return payload.Monitors, nil
}

// ReportState implements Client. A 404 or 501 from the state endpoint means
// the control plane does not implement reporting and maps to
// ErrReportingNotSupported.
func (c *HTTPClient) ReportState(ctx context.Context, state *types.AgentState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal agent state: %w", err)
	}

	resp, err := c.post(ctx, c.stateURL, payload)
	if err != nil {
		return fmt.Errorf("report state: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNotImplemented:
		return ErrReportingNotSupported
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("state report failed: status %s", resp.Status)
	}
	return nil
}

// PushStatus implements Client
func (c *HTTPClient) PushStatus(ctx context.Context, status types.PortStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal port status: %w", err)
	}

	resp, err := c.post(ctx, c.statusURL, payload)
	if err != nil {
		return fmt.Errorf("push status: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status push failed: status %s", resp.Status)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, url string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	return c.httpClient.Do(req)
}

func (c *HTTPClient) eventsURL() string {
	return c.baseURL + fmt.Sprintf(defaultEventsPath, url.PathEscape(c.host))
}

var _ Client = (*HTTPClient)(nil)
