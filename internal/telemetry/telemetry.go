// Package telemetry reports anonymized usage data alongside API calls.
//
// Reporting is strictly best-effort: records are dispatched on detached
// goroutines bounded by a semaphore, every failure is swallowed, and the
// caller's request outcome is never delayed beyond goroutine-spawn cost.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Endpoint is the fixed telemetry path under the stage-resolved service
// address.
const Endpoint = "resource-usage/api/v1/telemetry"

// Diagnostic header names attached to outgoing requests so the service can
// correlate them with telemetry records.
const (
	HeaderSessionID = "X-Session-Id"
	HeaderRequestID = "X-Request-Id"
	HeaderPlatform  = "X-Client-Platform"
)

const (
	dispatchTimeout = 10 * time.Second
	// maxInflight bounds concurrent telemetry goroutines; a bursty
	// caller drops records rather than queueing them.
	maxInflight = 32
)

// Record is one usage report. Ephemeral and never persisted locally.
type Record struct {
	SessionID  string          `json:"sessionId"`
	RequestID  string          `json:"requestId"`
	Source     string          `json:"source"`
	SDKVersion string          `json:"sdkVersion"`
	Platform   string          `json:"platform"`
	Hostname   string          `json:"hostname"`
	Status     *int            `json:"status"` // null on transport-level failure
	Response   json.RawMessage `json:"response,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Reporter builds and dispatches telemetry records for one session. The
// session id is stable for the reporter's lifetime; request ids are fresh
// per call.
type Reporter struct {
	url        string
	source     string
	sdkVersion string
	platform   string
	hostname   string
	sessionID  string

	client *http.Client
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
}

// NewReporter creates a Reporter posting to baseURL's telemetry endpoint.
func NewReporter(baseURL, source, sdkVersion string) *Reporter {
	hostname, _ := os.Hostname()
	return &Reporter{
		url:        baseURL + "/" + Endpoint,
		source:     source,
		sdkVersion: sdkVersion,
		platform:   runtime.GOOS + "/" + runtime.GOARCH,
		hostname:   hostname,
		sessionID:  uuid.NewString(),
		client:     &http.Client{Timeout: dispatchTimeout},
		sem:        semaphore.NewWeighted(maxInflight),
	}
}

// SessionID returns the process-stable session identifier.
func (r *Reporter) SessionID() string { return r.sessionID }

// NewRequestID returns a fresh per-call request identifier.
func (r *Reporter) NewRequestID() string { return uuid.NewString() }

// Headers returns the diagnostic headers to attach to an outgoing request
// before the real call is made.
func (r *Reporter) Headers(requestID string) map[string]string {
	return map[string]string{
		HeaderSessionID: r.sessionID,
		HeaderRequestID: requestID,
		HeaderPlatform:  r.platform,
	}
}

// readOnlyMethods suppress the response echo in telemetry records.
var readOnlyMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// Build assembles a record for a completed call. status is nil when the
// call failed below the HTTP layer; response is echoed only for mutating
// verbs.
func (r *Reporter) Build(requestID, method string, status *int, response json.RawMessage, callErr error) Record {
	rec := Record{
		SessionID:  r.sessionID,
		RequestID:  requestID,
		Source:     r.source,
		SDKVersion: r.sdkVersion,
		Platform:   r.platform,
		Hostname:   r.hostname,
		Status:     status,
	}
	if !readOnlyMethods[method] {
		rec.Response = response
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	return rec
}

// Dispatch sends a record on a detached goroutine. It never blocks: when
// the in-flight bound is reached the record is dropped. Errors during
// transmission are swallowed; nothing propagates to the caller.
func (r *Reporter) Dispatch(rec Record) {
	if !r.sem.TryAcquire(1) {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		defer func() { _ = recover() }()
		r.send(rec)
	}()
}

func (r *Reporter) send(rec Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}

// Flush waits for in-flight dispatches. Only tests need the ordering this
// provides; production callers never wait on telemetry.
func (r *Reporter) Flush() {
	r.wg.Wait()
}
