package invoker

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/stampede-io/stampede/internal/outcome"
)

const (
	// maxBodySize bounds how much of a response body is retained for
	// classification and diagnostics.
	maxBodySize = 1 << 20 // 1MB
)

// HTTPInvoker executes HTTP calls. It performs no verification of the
// target's state; it only observes the response.
type HTTPInvoker struct {
	client *http.Client
}

// NewHTTPInvoker creates an invoker around the given client. A nil
// client gets a dedicated one with its timeout left to per-call
// contexts, so the run deadline and call timeout stay authoritative.
func NewHTTPInvoker(client *http.Client) *HTTPInvoker {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPInvoker{client: client}
}

// Invoke performs one HTTP request. The per-call timeout is layered on
// top of ctx so the run deadline still applies.
func (h *HTTPInvoker) Invoke(ctx context.Context, call Call) outcome.Outcome {
	callCtx, cancel := context.WithTimeout(ctx, call.Timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(callCtx, call.Method, call.Target, bytes.NewReader(call.Body))
	if err != nil {
		return failureOutcome(call, start, err)
	}
	for k, v := range call.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return failureOutcome(call, start, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	// Drain the rest so the connection can be reused across the burst.
	_, _ = io.Copy(io.Discard, resp.Body)

	o := outcome.Outcome{
		Seq:     call.Seq,
		Status:  resp.StatusCode,
		Body:    body,
		Start:   start,
		Elapsed: time.Since(start),
	}
	if readErr != nil {
		// The status arrived but the body did not; keep the status as
		// the classifier key and surface the read error as diagnostic.
		o.Err = readErr.Error()
	}
	return o
}
