// ABOUTME: Shared HTTP plumbing for the diagnostic service clients
// ABOUTME: JSON GET/POST helpers with logging and a typed error for non-2xx replies

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// apiError carries a non-2xx response so tool handlers can report the status
// and body excerpt back to the model.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// serviceClient is the common base for the three diagnostic providers.
type serviceClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func newServiceClient(baseURL string, logger *slog.Logger, component string) serviceClient {
	return serviceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  logger.With("component", component),
	}
}

// getJSON performs a GET and decodes the JSON body. The decoded value may be
// an object or an array depending on the endpoint.
func (c *serviceClient) getJSON(ctx context.Context, path string, params url.Values, headers map[string]string) (any, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug("http get", "url", u)
	return c.do(req)
}

// postJSON performs a POST with a JSON body and decodes the JSON reply.
func (c *serviceClient) postJSON(ctx context.Context, path string, body any, headers map[string]string) (any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request body: %w", err)
	}

	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug("http post", "url", u)
	return c.do(req)
}

func (c *serviceClient) do(req *http.Request) (any, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		c.logger.Error("http error", "url", req.URL.String(), "status", resp.StatusCode)
		return nil, &apiError{StatusCode: resp.StatusCode, Body: string(excerpt)}
	}

	var decoded any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return decoded, nil
}
