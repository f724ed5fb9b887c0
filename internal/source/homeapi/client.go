package homeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/homenotify/internal/payload"
	"github.com/nhle/homenotify/internal/source"
)

// HTTPError is a non-2xx response that is not an auth failure.
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("unexpected status %d on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("unexpected status %d on %s %s", e.StatusCode, e.Method, e.Path)
}

// Unwrap maps 404 to source.ErrNotFound.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return source.ErrNotFound
	}
	return nil
}

// Client is a thin HTTP client for the smart-home REST API.
// It handles Bearer token authentication, JSON marshaling, and
// automatic retry with exponential backoff on 429 and 5xx.
type Client struct {
	baseURL    string
	httpClient *http.Client
	decoder    *payload.Decoder
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewClient creates a new API client. The baseURL should be the root URL
// of the API (e.g., https://api.example.com).
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		decoder:    payload.MustDecoder(),
		maxRetries: 3,
		baseDelay:  250 * time.Millisecond,
		maxDelay:   5 * time.Second,
	}
}

// SetRetryDelays overrides the backoff bounds.
func (c *Client) SetRetryDelays(base, maxDelay time.Duration) {
	c.baseDelay = base
	c.maxDelay = maxDelay
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do is the core HTTP method that builds the request, handles auth,
// retries with backoff, and JSON (de)serialization. An empty token sends
// no Authorization header.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	token string,
	body interface{},
	result interface{},
) error {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if data != nil {
			bodyReader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Correlation-Id", uuid.NewString())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() == nil && attempt < c.maxRetries {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if retryable && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return &source.AuthError{Message: fmt.Sprintf("%s %s rejected the access token", method, path)}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var errPayload struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(respBody, &errPayload)
			return &HTTPError{
				StatusCode: resp.StatusCode,
				Method:     method,
				Path:       path,
				Message:    errPayload.Message,
			}
		}

		// No content to parse (e.g. 204).
		if result == nil || len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
		}
		return nil
	}
}

// retryDelay reads the Retry-After header and computes a wait duration.
// Falls back to exponential backoff if the header is missing.
func (c *Client) retryDelay(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
			d := time.Duration(seconds) * time.Second
			if d > c.maxDelay {
				return c.maxDelay
			}
			return d
		}
	}

	delay := c.baseDelay << uint(attempt)
	if delay <= 0 || delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
