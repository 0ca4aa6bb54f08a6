package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPCountProber_ExtractsNestedCount(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("slug")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"items":[{"id":"1"}],"pagination":{"total":1,"page":1}}`)
	}))
	defer srv.Close()

	p, err := NewHTTPCountProber(nil, srv.URL+"/tenants?slug={{key}}",
		map[string]string{"Authorization": "Bearer tok"}, "pagination.total")
	require.NoError(t, err)

	count, err := p.Probe(context.Background(), "acme-7")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, "acme-7", gotQuery)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestHTTPCountProber_EscapesKey(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("slug")
		fmt.Fprint(w, `{"pagination":{"total":0}}`)
	}))
	defer srv.Close()

	p, err := NewHTTPCountProber(nil, srv.URL+"/tenants?slug={{key}}", nil, "pagination.total")
	require.NoError(t, err)

	_, err = p.Probe(context.Background(), "a b&c")
	require.NoError(t, err)
	assert.Equal(t, "a b&c", gotQuery)
}

func TestHTTPCountProber_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p, err := NewHTTPCountProber(nil, srv.URL+"?slug={{key}}", nil, "pagination.total")
	require.NoError(t, err)

	_, err = p.Probe(context.Background(), "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPCountProber_MissingCountPathIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer srv.Close()

	p, err := NewHTTPCountProber(nil, srv.URL+"?slug={{key}}", nil, "pagination.total")
	require.NoError(t, err)

	_, err = p.Probe(context.Background(), "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pagination.total")
}

func TestNewHTTPCountProber_RequiresKeyPlaceholder(t *testing.T) {
	_, err := NewHTTPCountProber(nil, "http://api.local/tenants?slug=acme", nil, "pagination.total")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{{key}}")
}

func TestNewHTTPCountProber_RequiresCountPath(t *testing.T) {
	_, err := NewHTTPCountProber(nil, "http://api.local/tenants?slug={{key}}", nil, "")
	require.Error(t, err)
}
