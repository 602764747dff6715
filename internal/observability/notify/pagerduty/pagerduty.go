// Package pagerduty escalates timed-out refresh runs to the operators' PagerDuty service.
package pagerduty

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/target/refresh-orchestrator/internal/domain/model"
	"github.com/target/refresh-orchestrator/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Severity   string
	Endpoint   string
	AppBaseURL string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client raises one PagerDuty event per timed-out run. Refreshed runs are not escalated.
type Client struct {
	routingKey string
	source     string
	severity   string
	endpoint   string
	appBaseURL string
	retryLimit int
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient constructs a PagerDuty events client. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		routingKey: key,
		source:     fallbackString(cfg.Source, "refresh-orchestrator"),
		severity:   strings.ToLower(fallbackString(cfg.Severity, "warning")),
		endpoint:   fallbackString(cfg.Endpoint, APIEndpoint),
		appBaseURL: strings.TrimSpace(cfg.AppBaseURL),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
	}, nil
}

// SendRunNotification triggers an event for timed-out runs and ignores every other outcome.
func (c *Client) SendRunNotification(ctx context.Context, n model.RunNotification) error {
	if n.Outcome != model.RunOutcomeTimedOut {
		return nil
	}
	body, err := json.Marshal(c.buildEvent(n))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		if lastErr = c.submit(ctx, body); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (c *Client) buildEvent(n model.RunNotification) map[string]any {
	occurredAt := n.OccurredAt.UTC()
	if n.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	msg := notify.Compose(n, c.appBaseURL)

	event := map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    "refresh-run:" + n.RunID,
		"payload": map[string]any{
			"summary":   msg.Subject,
			"severity":  c.severity,
			"source":    c.source,
			"component": "refresh_orchestrator",
			"timestamp": occurredAt.Format(time.RFC3339),
			"custom_details": map[string]any{
				"run_id":            n.RunID,
				"refresh_job_id":    n.RefreshJobID,
				"organization_id":   n.OrganizationID,
				"organization_name": n.OrganizationName,
			},
		},
	}
	if msg.Link != "" {
		event["links"] = []map[string]string{{"href": msg.Link, "text": "Refresh job settings"}}
	}
	return event
}

func fallbackString(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func (c *Client) submit(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("pagerduty api %s (body unreadable: %w)", resp.Status, readErr)
		}
		return fmt.Errorf("pagerduty api %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain pagerduty response body: %w", err)
	}
	return nil
}
