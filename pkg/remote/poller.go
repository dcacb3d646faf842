package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/xww/neutron-monitor-agent/pkg/types"
)

// Poller long-polls the control plane's event endpoint and republishes the
// notifications it receives, in delivery order, on a channel. It is the
// concrete inbound-notification transport behind the Notifier interface.
type Poller struct {
	client *HTTPClient

	// httpClient carries no timeout of its own; long polls are bounded by
	// context cancellation instead.
	httpClient *http.Client
	interval   time.Duration
	cursor     string
	out        chan types.Notification
}

// NewPoller creates a poller on top of an HTTP client. interval is the pause
// between polls when the server returns immediately.
func NewPoller(client *HTTPClient, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		client:     client,
		httpClient: &http.Client{},
		interval:   interval,
		out:        make(chan types.Notification, 64),
	}
}

// Notifications implements Notifier
func (p *Poller) Notifications() <-chan types.Notification {
	return p.out
}

// Run polls until the context is cancelled, then closes the channel
func (p *Poller) Run(ctx context.Context) error {
	defer close(p.out)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.client.logger.Warn().Err(err).Msg("event poll failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	query := url.Values{}
	query.Set("timeout", strconv.Itoa(int((25 * time.Second).Seconds())))
	if p.cursor != "" {
		query.Set("cursor", p.cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.client.eventsURL()+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build events request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("poll events: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read events response: %w", err)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("event poll failed: status %s", resp.Status)
	}

	var payload struct {
		Cursor        string               `json:"cursor"`
		Notifications []types.Notification `json:"notifications"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decode events response: %w", err)
	}
	if payload.Cursor != "" {
		p.cursor = payload.Cursor
	}

	for _, n := range payload.Notifications {
		select {
		case p.out <- n:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

var _ Notifier = (*Poller)(nil)
