package invoker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stampede-io/stampede/internal/outcome"
)

func TestHTTPInvoker_Success(t *testing.T) {
	var gotBody string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"42"}`)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(nil)
	o := inv.Invoke(context.Background(), Call{
		Seq:     1,
		Method:  "POST",
		Target:  srv.URL + "/tenants",
		Headers: map[string]string{"Authorization": "Bearer tok"},
		Body:    []byte(`{"slug":"acme"}`),
		Timeout: time.Second,
	})

	assert.Equal(t, 1, o.Seq)
	assert.Equal(t, 201, o.Status)
	assert.Equal(t, outcome.ErrNone, o.ErrKind)
	assert.JSONEq(t, `{"id":"42"}`, string(o.Body))
	assert.Equal(t, `{"slug":"acme"}`, gotBody)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.False(t, o.Start.IsZero())
	assert.Greater(t, o.Elapsed, time.Duration(0))
}

func TestHTTPInvoker_ConflictStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error":"slug taken"}`)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(nil)
	o := inv.Invoke(context.Background(), Call{Seq: 1, Method: "POST", Target: srv.URL, Timeout: time.Second})

	assert.Equal(t, 409, o.Status)
	assert.Equal(t, outcome.ErrNone, o.ErrKind)
	assert.False(t, o.Failed())
}

func TestHTTPInvoker_PerCallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(nil)
	o := inv.Invoke(context.Background(), Call{Seq: 3, Method: "GET", Target: srv.URL, Timeout: 50 * time.Millisecond})

	assert.Equal(t, outcome.ErrTimeout, o.ErrKind)
	assert.Equal(t, 0, o.Status)
	assert.NotEmpty(t, o.Err)
	assert.True(t, o.Failed())
}

func TestHTTPInvoker_CanceledRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	inv := NewHTTPInvoker(nil)
	o := inv.Invoke(ctx, Call{Seq: 1, Method: "GET", Target: srv.URL, Timeout: 5 * time.Second})

	assert.Equal(t, outcome.ErrCanceled, o.ErrKind)
}

func TestHTTPInvoker_ConnectionRefused(t *testing.T) {
	// A closed server guarantees a refusal on its former port.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	inv := NewHTTPInvoker(nil)
	o := inv.Invoke(context.Background(), Call{Seq: 2, Method: "POST", Target: url, Timeout: time.Second})

	assert.Equal(t, outcome.ErrTransport, o.ErrKind)
	assert.NotEmpty(t, o.Err)
}

func TestHTTPInvoker_BoundsRetainedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", maxBodySize+4096))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(nil)
	o := inv.Invoke(context.Background(), Call{Seq: 1, Method: "GET", Target: srv.URL, Timeout: 5 * time.Second})

	assert.Equal(t, 200, o.Status)
	assert.Len(t, o.Body, maxBodySize)
}

func TestInvokerFunc_Adapts(t *testing.T) {
	f := InvokerFunc(func(ctx context.Context, call Call) outcome.Outcome {
		return outcome.Outcome{Seq: call.Seq, Status: 204}
	})
	o := f.Invoke(context.Background(), Call{Seq: 7})
	assert.Equal(t, 7, o.Seq)
	assert.Equal(t, 204, o.Status)
}

func TestFailureKind_Mapping(t *testing.T) {
	assert.Equal(t, outcome.ErrTimeout, failureKind(context.DeadlineExceeded))
	assert.Equal(t, outcome.ErrCanceled, failureKind(context.Canceled))
	assert.Equal(t, outcome.ErrTransport, failureKind(fmt.Errorf("connection reset")))
	assert.Equal(t, outcome.ErrTimeout, failureKind(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
}

func TestFailureOutcome_CarriesCallIdentity(t *testing.T) {
	start := time.Now()
	o := failureOutcome(Call{Seq: 9}, start, context.DeadlineExceeded)

	require.Equal(t, 9, o.Seq)
	assert.Equal(t, outcome.ErrTimeout, o.ErrKind)
	assert.Equal(t, start, o.Start)
}
