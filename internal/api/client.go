package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/peakplatform/peak-go/internal/debug"
)

// Client performs authenticated HTTP calls with transparent retries on the
// fixed set of retryable server-error status codes. The retry policy and
// the status-to-error mapping are invisible to callers; only the final
// outcome surfaces.
type Client struct {
	AuthToken string
	UserAgent string
	HTTP      *http.Client
	Retry     RetryConfig
}

// Response is a fully-read transport response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// New creates a Client. The credential is static for the client's
// lifetime; token refresh is out of scope.
func New(authToken, userAgent string) *Client {
	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		baseTransport = &http.Transport{}
	}
	transport := baseTransport.Clone()
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	} else {
		transport.TLSClientConfig = transport.TLSClientConfig.Clone()
	}
	transport.TLSClientConfig.MinVersion = tls.VersionTLS12

	return &Client{
		AuthToken: authToken,
		UserAgent: userAgent,
		Retry:     DefaultRetryConfig(),
		HTTP: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: transport,
		},
	}
}

// Do performs a request and reads the whole response body. Non-2xx
// responses map through the status taxonomy; retryable statuses and
// transport failures (including timeouts) follow the retry policy first.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, body, err := c.execute(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// DoStream performs a request and hands back the response body as a
// stream. The caller owns closing it.
func (c *Client) DoStream(ctx context.Context, req *Request) (*http.Response, io.ReadCloser, error) {
	resp, body, err := c.execute(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

func (c *Client) execute(ctx context.Context, req *Request) (*http.Response, io.ReadCloser, error) {
	src, err := newBodySource(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = src.Close() }()

	targetURL := req.URL
	if qs := req.queryString(); qs != "" {
		targetURL = targetURL + "?" + qs
	}

	maxAttempts := c.Retry.maxAttempts()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		bodyReader, contentType, err := src.next()
		if err != nil {
			return nil, nil, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, targetURL, bodyReader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create request: %w", err)
		}
		if c.AuthToken != "" {
			httpReq.Header.Set("Authorization", c.AuthToken)
		}
		if c.UserAgent != "" {
			httpReq.Header.Set("User-Agent", c.UserAgent)
		}
		httpReq.Header.Set("Content-Type", contentType)
		httpReq.Header.Set("Accept", "application/json")
		for key, value := range req.Headers {
			httpReq.Header.Set(key, value)
		}

		resp, err := c.HTTP.Do(httpReq)
		if err != nil {
			// Timeouts and connection failures are transport
			// failures subject to the same retry policy.
			lastErr = fmt.Errorf("request failed: %w", err)
			if ctx.Err() != nil {
				return nil, nil, lastErr
			}
			if debug.IsEnabled(ctx) {
				slog.Debug("request failed", "method", req.Method, "url", targetURL, "attempt", attempt, "error", err)
			}
			if err := c.backoff(ctx, attempt, maxAttempts); err != nil {
				return nil, nil, err
			}
			continue
		}

		if debug.IsEnabled(ctx) {
			slog.Debug("request complete", "method", req.Method, "url", targetURL,
				"status", resp.StatusCode, "attempt", attempt, "duration", time.Since(start))
		}

		if isRetryableStatus(resp.StatusCode) {
			respBody, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil {
				respBody = nil
			}
			lastErr = NewHTTPError(resp.StatusCode, respBody)
			if attempt < maxAttempts {
				slog.Info("server error, retrying", "status", resp.StatusCode, "attempt", attempt)
			}
			if err := c.backoff(ctx, attempt, maxAttempts); err != nil {
				return nil, nil, err
			}
			continue
		}

		if resp.StatusCode >= 400 {
			respBody, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return nil, nil, NewHTTPError(resp.StatusCode, respBody)
		}

		return resp, resp.Body, nil
	}

	return nil, nil, &RetriesExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

// backoff sleeps before the next attempt, or returns immediately when the
// attempt budget is spent so the exhaustion error surfaces without an
// extra wait.
func (c *Client) backoff(ctx context.Context, attempt, maxAttempts int) error {
	if attempt >= maxAttempts {
		return nil
	}
	return sleepWithContext(ctx, c.Retry.delay(attempt))
}
