// Package gateway talks to the external AI generation service.
package gateway

import (
	"alcyxob/group-coach/internal/domain"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrGatewayFailure covers every way a generation call can fail: timeouts,
// transport errors, non-2xx responses and unusable bodies.
var ErrGatewayFailure = errors.New("ai gateway failure")

const (
	apiKeyHeader    = "X-API-Key"
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 4 << 20
)

// Request is one generation call. Cost is informational for the gateway.
type Request struct {
	Action  domain.AIAction `json:"action"`
	Cost    int64           `json:"cost"`
	Payload json.RawMessage `json:"payload"`
}

// Response carries the generated artifact, opaque to this package.
type Response struct {
	Action   domain.AIAction `json:"action"`
	Artifact json.RawMessage `json:"artifact"`
}

// Client generates artifacts.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

type httpClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *slog.Logger
}

// NewHTTPClient posts requests as JSON to endpoint. A non-positive timeout
// uses the 30 second default.
func NewHTTPClient(endpoint, apiKey string, timeout time.Duration, logger *slog.Logger) Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &httpClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (c *httpClient) Generate(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrGatewayFailure, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrGatewayFailure, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set(apiKeyHeader, c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.WarnContext(ctx, "AI gateway call failed", "action", req.Action, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGatewayFailure, err)
	}
	c.logger.InfoContext(ctx, "AI gateway call", "action", req.Action, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrGatewayFailure, resp.StatusCode)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrGatewayFailure, err)
	}
	if len(out.Artifact) == 0 || string(out.Artifact) == "null" {
		return nil, fmt.Errorf("%w: empty artifact", ErrGatewayFailure)
	}
	if out.Action == "" {
		out.Action = req.Action
	}
	return &out, nil
}
