// Package queryclient submits statements to the query execution service and polls their results.
package queryclient

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

	"github.com/target/refresh-orchestrator/config"
	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
)

const queriesPath = "/api/v1/database-queries"

// Client implements core.QueryService over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ core.QueryService = (*Client)(nil)

// New builds a query service client.
func New(cfg config.QueryServiceConfig, hc *http.Client) (*Client, error) {
	cfg.Sanitize()
	if cfg.BaseURL == "" {
		return nil, errors.New("query service base URL is required")
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{baseURL: cfg.BaseURL, http: hc}, nil
}

type dispatchRequest struct {
	DatabaseConnectionID string `json:"databaseConnectionId"`
	ParentNodeID         string `json:"parentNodeId"`
	Statement            string `json:"statement"`
}

type dispatchResponse struct {
	QueryID string `json:"queryId"`
}

// Dispatch submits the statement and returns the execution id the service assigned.
func (c *Client) Dispatch(ctx context.Context, sig model.Signature) (string, error) {
	body, err := json.Marshal(dispatchRequest{
		DatabaseConnectionID: sig.DatabaseConnectionID,
		ParentNodeID:         sig.ParentNodeID,
		Statement:            sig.Statement,
	})
	if err != nil {
		return "", fmt.Errorf("encode dispatch request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queriesPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperrors.Dependency("query service", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError(resp)
	}
	var out dispatchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", apperrors.Dependency("query service", fmt.Errorf("decode dispatch response: %w", err))
	}
	if strings.TrimSpace(out.QueryID) == "" {
		return "", apperrors.Dependency("query service", errors.New("dispatch response has no queryId"))
	}
	return out.QueryID, nil
}

// Status maps the results endpoint onto an execution status: 202 means the query is still running,
// any other 2xx means it finished, and a 4xx (including 410 for expired results) means it failed.
// A 5xx is a Dependency error so the caller can ask again later.
func (c *Client) Status(ctx context.Context, executionID string) (model.ExecutionStatus, error) {
	endpoint := c.baseURL + queriesPath + "/" + url.PathEscape(executionID) + "/results"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperrors.Dependency("query service", err)
	}
	defer resp.Body.Close()
	// Result sets can be large; the status line is all that matters.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return model.ExecutionRunning, nil
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return model.ExecutionFinished, nil
	case resp.StatusCode >= 500:
		return "", apperrors.Dependency("query service", fmt.Errorf("unexpected status %d", resp.StatusCode))
	default:
		return model.ExecutionFailed, nil
	}
}

func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
	msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
	if payload.Error != "" {
		msg += ": " + payload.Error
	}
	if resp.StatusCode == http.StatusNotFound {
		return apperrors.NotFound(msg)
	}
	return apperrors.Dependency("query service", errors.New(msg))
}
