package slack

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/refresh-orchestrator/internal/domain/model"
)

// rewriteTransport sends every request to target while keeping the original URL for assertions.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	out.Header.Set("X-Original-Host", req.URL.Host)
	return http.DefaultTransport.RoundTrip(out)
}

type capture struct {
	mu     sync.Mutex
	bodies []map[string]any
	paths  []string
}

func newSlackServer(t *testing.T, status int) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.paths = append(c.paths, r.URL.Path)
		c.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("invalid_payload"))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func clientFor(t *testing.T, srv *httptest.Server, retries int) *Client {
	t.Helper()
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return NewClient(Config{
		AppBaseURL: "https://app.example.com",
		RetryLimit: retries,
		Client:     &http.Client{Transport: rewriteTransport{target: target}, Timeout: 2 * time.Second},
	})
}

func notification(hooks ...string) model.RunNotification {
	return model.RunNotification{
		RunID:            "run-1",
		OrganizationName: "acme",
		Outcome:          model.RunOutcomeRefreshed,
		Targets:          model.NotificationTargets{SlackWebhooks: hooks},
		OccurredAt:       time.Date(2026, 10, 19, 9, 1, 0, 0, time.UTC),
	}
}

func TestSendRunNotification_PostsToEachWebhook(t *testing.T) {
	srv, got := newSlackServer(t, http.StatusOK)
	c := clientFor(t, srv, 0)

	err := c.SendRunNotification(context.Background(), notification(
		"https://hooks.slack.com/services/T1/B1/one",
		"https://hooks.slack.com/services/T2/B2/two",
	))
	require.NoError(t, err)

	require.Len(t, got.bodies, 2)
	assert.ElementsMatch(t, []string{"/services/T1/B1/one", "/services/T2/B2/two"}, got.paths)
	text, ok := got.bodies[0]["text"].(string)
	require.True(t, ok)
	assert.Contains(t, text, "Acme's MGraph has refreshed!")
	assert.Contains(t, text, "<https://app.example.com/acme|Open MGraph>")
	assert.Contains(t, text, "2026-10-19T09:01:00Z")
	assert.Equal(t, "MGraph", got.bodies[0]["username"])
}

func TestSendRunNotification_RetriesThenReportsError(t *testing.T) {
	srv, got := newSlackServer(t, http.StatusInternalServerError)
	c := clientFor(t, srv, 1)

	err := c.SendRunNotification(context.Background(), notification("https://hooks.slack.com/services/T/B/secret"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_payload")
	assert.NotContains(t, err.Error(), "secret")
	assert.Len(t, got.bodies, 2)
}

func TestSendRunNotification_SkipsDisallowedHosts(t *testing.T) {
	srv, got := newSlackServer(t, http.StatusOK)
	c := clientFor(t, srv, 0)

	err := c.SendRunNotification(context.Background(), notification(
		"https://evil.example.net/hook",
		"https://hooks.slack.com/services/T/B/ok",
	))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWebhookNotAllowed))
	assert.Len(t, got.bodies, 1, "allowed webhook still receives the message")
}

func TestSendRunNotification_NoSlackTargets(t *testing.T) {
	c := NewClient(Config{})
	require.NoError(t, c.SendRunNotification(context.Background(), model.RunNotification{}))
}

func TestValidateWebhook(t *testing.T) {
	c := NewClient(Config{AllowedDomains: []string{"slack.com", " Example.org "}})

	tests := []struct {
		url string
		ok  bool
	}{
		{"https://hooks.slack.com/services/T/B/X", true},
		{"https://HOOKS.SLACK.COM/services/T/B/X", true},
		{"https://hooks.example.org/x", true},
		{"http://hooks.slack.com/services/T/B/X", false},
		{"https://slack.com.evil.io/x", false},
		{"not a url", false},
	}
	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			err := c.ValidateWebhook(tc.url)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrWebhookNotAllowed)
		})
	}
}

func TestEscapeSlackText(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt; &amp; c", escapeSlackText("a <b> & c"))
}
