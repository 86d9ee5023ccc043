// Package session is the entry point for talking to the platform API.
//
// A Session combines the credential, the deployment stage, and the
// transport stack behind three operations: Request, PagedRequest, and
// DownloadRequest. Sessions are immutable after construction; the
// credential and stage are resolved once and never re-derived.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/peakplatform/peak-go/internal/api"
	"github.com/peakplatform/peak-go/internal/artifact"
	"github.com/peakplatform/peak-go/internal/config"
	"github.com/peakplatform/peak-go/internal/debug"
	"github.com/peakplatform/peak-go/internal/telemetry"
)

// SDK identification, reported in User-Agent and telemetry.
const (
	SDKName = "peak-go"
	Version = "1.4.0"
)

// DefaultDownloadChunkSize is the read size used when streaming a response
// body to a local file.
const DefaultDownloadChunkSize = 128

// Session holds the resolved credential, stage, and transport handle.
type Session struct {
	AuthToken string
	Stage     config.Stage

	subdomain string
	baseURL   string
	client    *api.Client
	reporter  *telemetry.Reporter

	// DownloadChunkSize overrides the copy granularity of
	// DownloadRequest. Zero means DefaultDownloadChunkSize.
	DownloadChunkSize int
}

// Option configures session construction.
type Option func(*options)

type options struct {
	authToken string
	stage     string
	subdomain string
	baseURL   string
	retry     *api.RetryConfig
	http      *http.Client
}

// WithAuthToken supplies the credential explicitly instead of reading the
// API_KEY environment variable.
func WithAuthToken(token string) Option {
	return func(o *options) { o.authToken = token }
}

// WithStage supplies the stage explicitly instead of reading the STAGE
// environment variable.
func WithStage(stage string) Option {
	return func(o *options) { o.stage = stage }
}

// WithSubdomain overrides the default service subdomain for every request
// in the session.
func WithSubdomain(subdomain string) Option {
	return func(o *options) { o.subdomain = subdomain }
}

// WithBaseURL bypasses stage-based address derivation entirely. Intended
// for tests and self-hosted gateways.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithRetryConfig overrides the transport retry policy.
func WithRetryConfig(cfg api.RetryConfig) Option {
	return func(o *options) { o.retry = &cfg }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.http = client }
}

// New constructs a Session. The credential comes from WithAuthToken or the
// environment; missing both is fatal. The stage defaults to prod.
func New(opts ...Option) (*Session, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	token, err := config.ResolveAuthToken(o.authToken)
	if err != nil {
		return nil, err
	}
	stage, err := config.ResolveStage(o.stage)
	if err != nil {
		return nil, err
	}

	userAgent := fmt.Sprintf("%s/%s", SDKName, Version)
	client := api.New(token, userAgent)
	if o.retry != nil {
		client.Retry = *o.retry
	}
	if o.http != nil {
		client.HTTP = o.http
	}

	subdomain := o.subdomain
	if subdomain == "" {
		subdomain = config.DefaultSubdomain
	}

	s := &Session{
		AuthToken: token,
		Stage:     stage,
		subdomain: subdomain,
		baseURL:   o.baseURL,
		client:    client,
	}
	s.reporter = telemetry.NewReporter(s.BaseURL(""), SDKName, Version)
	return s, nil
}

var (
	defaultOnce    sync.Once
	defaultSession *Session
	defaultErr     error
)

// Default returns the process-wide session, constructing it from the
// environment on first use. Construction happens at most once, even under
// concurrent first access.
func Default() (*Session, error) {
	defaultOnce.Do(func() {
		defaultSession, defaultErr = New()
	})
	return defaultSession, defaultErr
}

// Request describes one call against a stage-scoped endpoint. Endpoint is
// relative to the resolved service address; Subdomain, when set, scopes
// the request to another service under the same stage.
type Request struct {
	Endpoint     string
	Method       string
	ContentType  api.ContentType
	Params       map[string]any
	Body         map[string]any
	ArtifactPath string
	IgnoreFiles  []string
	Subdomain    string
	Progress     api.ProgressFunc
}

// BaseURL returns the session's resolved service address, honoring a
// request-scoped subdomain.
func (s *Session) BaseURL(subdomain string) string {
	if s.baseURL != "" {
		return s.baseURL
	}
	if subdomain == "" {
		subdomain = s.subdomain
	}
	return s.Stage.BaseURL(subdomain)
}

func (s *Session) url(r Request) string {
	endpoint := r.Endpoint
	if endpoint != "" && endpoint[0] != '/' {
		endpoint = "/" + endpoint
	}
	return s.BaseURL(r.Subdomain) + endpoint
}

// Do performs the call and returns the decoded response body. Telemetry is
// reported off the critical path; in dry-run mode no network call is made
// and no telemetry is emitted.
func (s *Session) Do(ctx context.Context, r Request) (json.RawMessage, error) {
	if debug.IsDryRun(ctx) {
		slog.Info("dry-run: skipping request", "method", r.Method, "endpoint", r.Endpoint)
		return nil, nil
	}

	requestID := s.reporter.NewRequestID()
	req := s.transportRequest(r, requestID)

	resp, err := s.client.Do(ctx, req)
	// Debug runs stay local: the real call happens but nothing is
	// reported.
	if !debug.IsEnabled(ctx) {
		s.report(requestID, r.Method, resp, err)
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Body), nil
}

func (s *Session) transportRequest(r Request, requestID string) *api.Request {
	return &api.Request{
		Method:       r.Method,
		URL:          s.url(r),
		ContentType:  r.ContentType,
		Headers:      s.reporter.Headers(requestID),
		Params:       r.Params,
		Body:         r.Body,
		ArtifactPath: r.ArtifactPath,
		IgnoreFiles:  r.IgnoreFiles,
		Progress:     r.Progress,
	}
}

// report dispatches a telemetry record for a completed call. The record is
// built from read-only copies; failures here never reach the caller.
func (s *Session) report(requestID, method string, resp *api.Response, callErr error) {
	var status *int
	var echo json.RawMessage
	if resp != nil {
		code := resp.StatusCode
		status = &code
		echo = json.RawMessage(resp.Body)
	} else {
		var httpErr *api.HTTPError
		if errors.As(callErr, &httpErr) {
			code := httpErr.StatusCode
			status = &code
			echo = httpErr.Body
		}
	}
	s.reporter.Dispatch(s.reporter.Build(requestID, method, status, echo, callErr))
}

// FlushTelemetry waits for in-flight telemetry. Tests only.
func (s *Session) FlushTelemetry() { s.reporter.Flush() }

// Preview renders the artifact include set for a request, for dry-run
// output.
func (s *Session) Preview(r Request) (string, error) {
	if r.ArtifactPath == "" {
		return "", nil
	}
	return artifact.Tree(r.ArtifactPath, r.IgnoreFiles)
}

// DownloadRequest streams a response body to downloadPath in fixed-size
// chunks. The destination must not name an existing directory.
func (s *Session) DownloadRequest(ctx context.Context, r Request, downloadPath string) error {
	if info, err := os.Stat(downloadPath); err == nil && info.IsDir() {
		return &artifact.InvalidPathError{Path: downloadPath, Reason: "destination is a directory"}
	}
	if debug.IsDryRun(ctx) {
		slog.Info("dry-run: skipping download", "endpoint", r.Endpoint, "path", downloadPath)
		return nil
	}

	requestID := s.reporter.NewRequestID()
	req := s.transportRequest(r, requestID)

	httpResp, body, err := s.client.DoStream(ctx, req)
	if !debug.IsEnabled(ctx) {
		// A null status means transport-level failure; a streamed
		// success still carries its status code.
		var resp *api.Response
		if httpResp != nil {
			resp = &api.Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header}
		}
		s.report(requestID, r.Method, resp, err)
	}
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	if err := os.MkdirAll(filepath.Dir(downloadPath), 0o755); err != nil {
		return err
	}
	out, err := os.Create(downloadPath)
	if err != nil {
		return &artifact.InvalidPathError{Path: downloadPath, Reason: err.Error()}
	}

	copyErr := copyChunked(out, body, s.DownloadChunkSize)
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		// A partial download is worse than none.
		_ = os.Remove(downloadPath)
		return fmt.Errorf("download failed: %w", copyErr)
	}
	return nil
}

// copyChunked copies in fixed-size reads. io.CopyBuffer would delegate to
// the destination's ReadFrom and ignore the buffer size.
func copyChunked(dst io.Writer, src io.Reader, chunk int) error {
	if chunk <= 0 {
		chunk = DefaultDownloadChunkSize
	}
	buf := make([]byte, chunk)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
