package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/dropout/internal/domain/types"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// getJSON performs a GET and decodes a 200 body into out.
func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET %s returned %d", ErrStatus, path, resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

// predict posts one payload and decodes either the prediction or the
// error envelope, depending on the status.
func (c *HTTPClient) predict(ctx context.Context, payload map[string]any) (int, *types.PredictResponse, *types.ErrorResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(data))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return resp.StatusCode, nil, nil, err
	}

	if resp.StatusCode == http.StatusOK {
		var pr types.PredictResponse
		if err := json.Unmarshal(body, &pr); err != nil {
			return resp.StatusCode, nil, nil, fmt.Errorf("decode prediction: %w", err)
		}
		return resp.StatusCode, &pr, nil, nil
	}
	var er types.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return resp.StatusCode, nil, nil, fmt.Errorf("decode error envelope: %w", err)
	}
	return resp.StatusCode, nil, &er, nil
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
