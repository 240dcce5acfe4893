// Raw HTTP transport shared by the remote API clients
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/peanuz/playlist-sync/internal/shared"
)

const maxResponseBytes = 32 << 20

// APIClient performs HTTP requests and returns raw responses.
//
// An optional [rate.Limiter] paces every request made through the client.
type APIClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

// NewAPIClient creates a client. A nil http client defaults to [http.DefaultClient];
// a nil limiter disables pacing.
func NewAPIClient(client *http.Client, limiter *rate.Limiter) *APIClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &APIClient{
		httpClient: client,
		limiter:    limiter,
		userAgent:  defaultUserAgent,
	}
}

// NewLimiter returns a limiter allowing rps requests per second with a burst of one.
// Zero or negative rps returns nil (no pacing).
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err returns nil for 2xx responses and an [shared.ErrAPIRequest] wrapping the status otherwise.
func (r *APIResponse) Err(service string) error {
	if r.OK() {
		return nil
	}
	snippet := r.Body
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return fmt.Errorf("%w: %s API error: status %d: %s", shared.ErrAPIRequest, service, r.StatusCode, bytes.TrimSpace(snippet))
}

// Get performs a GET request.
func (a *APIClient) Get(ctx context.Context, url string, headers map[string]string) (*APIResponse, error) {
	return a.Do(ctx, http.MethodGet, url, headers, nil)
}

// PostJSON encodes payload as JSON and POSTs it.
func (a *APIClient) PostJSON(ctx context.Context, url string, headers map[string]string, payload any) (*APIResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	return a.Do(ctx, http.MethodPost, url, h, data)
}

// Do performs a request and reads the whole body. Non-2xx statuses are not errors here.
func (a *APIClient) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*APIResponse, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", a.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}, nil
}
