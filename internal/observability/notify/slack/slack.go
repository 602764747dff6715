// Package slack posts run notifications to the incoming webhooks configured on each refresh job.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/target/refresh-orchestrator/internal/domain/model"
	"github.com/target/refresh-orchestrator/internal/observability/notify"
)

// DefaultAllowedDomains are the registrable domains webhooks may point at when none are configured.
var DefaultAllowedDomains = []string{"slack.com"}

// ErrWebhookNotAllowed is returned for webhook URLs outside the allowed domains.
var ErrWebhookNotAllowed = errors.New("slack webhook host is not allowed")

// Config captures the Slack delivery behaviour.
type Config struct {
	AllowedDomains []string
	AppBaseURL     string
	Username       string
	Timeout        time.Duration
	RetryLimit     int
	Client         *http.Client
}

// Client delivers run notifications to Slack incoming webhooks.
type Client struct {
	allowed    map[string]struct{}
	appBaseURL string
	username   string
	retryLimit int
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	domains := cfg.AllowedDomains
	if len(domains) == 0 {
		domains = DefaultAllowedDomains
	}
	allowed := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			allowed[d] = struct{}{}
		}
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "MGraph"
	}

	return &Client{
		allowed:    allowed,
		appBaseURL: strings.TrimSpace(cfg.AppBaseURL),
		username:   username,
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
	}
}

// SendRunNotification posts to every Slack webhook target. A failing webhook does not stop the others.
func (c *Client) SendRunNotification(ctx context.Context, n model.RunNotification) error {
	if len(n.Targets.SlackWebhooks) == 0 {
		return nil
	}
	body, err := json.Marshal(c.formatMessage(n))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	var errs []error
	for _, hook := range n.Targets.SlackWebhooks {
		if err := c.ValidateWebhook(hook); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := c.deliver(ctx, hook, body); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", redact(hook), err))
		}
	}
	return errors.Join(errs...)
}

// ValidateWebhook accepts https URLs whose registrable domain is allowed.
func (c *Client) ValidateWebhook(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid slack webhook url: %w", ErrWebhookNotAllowed)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("slack webhook must use https: %w", ErrWebhookNotAllowed)
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(u.Hostname()))
	if err != nil {
		return fmt.Errorf("slack webhook host %q: %w", u.Hostname(), ErrWebhookNotAllowed)
	}
	if _, ok := c.allowed[domain]; !ok {
		return fmt.Errorf("slack webhook domain %q: %w", domain, ErrWebhookNotAllowed)
	}
	return nil
}

func (c *Client) deliver(ctx context.Context, hook string, body []byte) error {
	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		lastErr = c.post(ctx, hook, body)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		// Linear backoff between attempts.
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

func (c *Client) formatMessage(n model.RunNotification) map[string]any {
	msg := notify.Compose(n, c.appBaseURL)

	var text strings.Builder
	text.WriteString("*")
	text.WriteString(escapeSlackText(msg.Subject))
	text.WriteString("*")
	if msg.Link != "" {
		text.WriteString("\n<")
		text.WriteString(msg.Link)
		text.WriteString("|Open MGraph>")
	}
	at := n.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	text.WriteString("\n• Run: `")
	text.WriteString(escapeSlackText(n.RunID))
	text.WriteString("`\n• Timestamp: ")
	text.WriteString(at.UTC().Format(time.RFC3339))

	return map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
}

func (c *Client) post(ctx context.Context, hook string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("slack webhook %s (body unreadable: %w)", resp.Status, readErr)
		}
		return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain slack response body: %w", err)
	}
	return nil
}

func escapeSlackText(value string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(value)
}

// redact keeps the webhook host and drops the secret path.
func redact(hook string) string {
	u, err := url.Parse(hook)
	if err != nil || u.Host == "" {
		return "<invalid>"
	}
	return u.Scheme + "://" + u.Host + "/…"
}
