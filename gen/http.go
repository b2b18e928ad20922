package gen

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/refinery/errors"
)

// HTTPClient delegates calls to a generative backend over HTTP. Each call
// POSTs the JSON-encoded Request to the endpoint and decodes a Response.
// Transient network failures are retried with linear backoff.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// HTTPOptions configures an HTTPClient.
type HTTPOptions struct {
	// Timeout bounds a single request. Zero means 120 seconds.
	Timeout time.Duration
	// Logger for request tracing (nil = nop logger).
	Logger *zap.SugaredLogger
}

// NewHTTPClient builds an HTTPClient for the given endpoint.
func NewHTTPClient(endpoint string, opts HTTPOptions) *HTTPClient {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &HTTPClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Call implements Client with retry logic for transient network failures.
func (c *HTTPClient) Call(ctx context.Context, req Request) (*Response, error) {
	if c.endpoint == "" {
		return nil, errors.New("generative backend endpoint not configured")
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal request %s", req.Task)
	}

	maxRetries := 3
	var resp *Response

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			c.logger.Debugw("Retrying generative request",
				"task", req.Task, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, errors.Wrapf(ctx.Err(), "retry wait for %s", req.Task)
			case <-time.After(delay):
			}
		}

		resp, err = c.doCall(ctx, reqBody)
		if err == nil {
			if attempt > 0 {
				c.logger.Infow("Request succeeded after retries",
					"task", req.Task, "attempts", attempt+1)
			}
			return resp, nil
		}

		c.logger.Warnw("Generative backend error",
			"task", req.Task, "attempt", attempt+1, "error", err)

		if !isRetryableError(err) {
			return nil, errors.Wrapf(err, "call %s", req.Task)
		}
	}

	return nil, errors.Wrapf(err, "call %s after %d retries", req.Task, maxRetries)
}

func (c *HTTPClient) doCall(ctx context.Context, body []byte) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, errors.Newf("backend request failed with status %d: %s",
			httpResp.StatusCode, string(respBody))
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, errors.Wrap(err, "unmarshal response")
	}
	return &resp, nil
}

// isRetryableError checks if an error is worth retrying (network-related)
func isRetryableError(err error) bool {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}

	if opErr, ok := err.(*net.OpError); ok {
		if errno, ok := opErr.Err.(syscall.Errno); ok {
			switch errno {
			case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
				return true
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	networkErrors := []string{
		"connection reset by peer",
		"connection refused",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"i/o timeout",
	}
	for _, netErr := range networkErrors {
		if strings.Contains(errStr, netErr) {
			return true
		}
	}

	return false
}
