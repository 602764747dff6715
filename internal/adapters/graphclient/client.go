// Package graphclient loads an organization's metric nodes from the graph service.
package graphclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/refresh-orchestrator/config"
	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
)

const maxBodyBytes = 16 << 20

// Client implements core.GraphService over HTTP.
type Client struct {
	baseURL      string
	pathTemplate string
	expression   string
	http         *http.Client
}

var _ core.GraphService = (*Client)(nil)

// New builds a graph client. The nodes expression is compiled once so a typo fails at startup.
func New(cfg config.GraphServiceConfig, hc *http.Client) (*Client, error) {
	cfg.Sanitize()
	if cfg.BaseURL == "" {
		return nil, errors.New("graph service base URL is required")
	}
	if _, err := jmespath.Compile(cfg.NodesExpression); err != nil {
		return nil, fmt.Errorf("compile nodes expression: %w", err)
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		pathTemplate: cfg.PathTemplate,
		expression:   cfg.NodesExpression,
		http:         hc,
	}, nil
}

// GetNodes fetches the organization's graph and extracts its nodes.
// A 404 is NotFound; any other failure is a Dependency error.
func (c *Client) GetNodes(ctx context.Context, organizationID string) ([]model.MetricNode, error) {
	endpoint := c.baseURL + strings.ReplaceAll(c.pathTemplate, "{organizationID}", url.PathEscape(organizationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Dependency("graph service", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.Dependency("graph service", fmt.Errorf("read body: %w", err))
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NotFoundf("graph for organization %s not found", organizationID)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, apperrors.Dependency("graph service", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	return c.extract(body)
}

func (c *Client) extract(body []byte) ([]model.MetricNode, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, apperrors.Dependency("graph service", fmt.Errorf("decode graph: %w", err))
	}
	selected, err := jmespath.Search(c.expression, doc)
	if err != nil {
		return nil, apperrors.Dependency("graph service", fmt.Errorf("evaluate nodes expression: %w", err))
	}
	if selected == nil {
		return nil, nil
	}

	// Round-trip through JSON so the expression's projection maps onto MetricNode tags.
	raw, err := json.Marshal(selected)
	if err != nil {
		return nil, fmt.Errorf("encode selected nodes: %w", err)
	}
	var nodes []model.MetricNode
	if err := json.Unmarshal(raw, &nodes); err != nil {
		return nil, apperrors.Dependency("graph service",
			fmt.Errorf("nodes expression must yield a list of objects: %w", err))
	}
	return nodes, nil
}
