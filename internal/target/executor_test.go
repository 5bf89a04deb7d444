package target

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dragonfly/config"
	"dragonfly/internal/headers"
	"dragonfly/internal/httpsclient"
	"dragonfly/internal/outcome"
	"dragonfly/internal/substitution"
)

func rootCtx() *substitution.Context {
	return substitution.Root(nil, "app", "1.0.0", regexp.MustCompile(`.+`))
}

func TestDispatchOkReadsFullBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("echo"))
	}))
	defer srv.Close()

	e := New(httpsclient.New())
	tc := config.TargetConfig{ID: "GOOD", URL: srv.URL, Timeout: 2 * time.Second, OnError: config.OnErrorPropagate}

	o := e.Dispatch(context.Background(), "GET", headers.Header{}, nil, tc, config.TLSConfig{}, rootCtx())
	require.Equal(t, outcome.KindOk, o.Kind)
	assert.Equal(t, 200, o.Response.Status)
	assert.Equal(t, "echo", string(o.Response.Body))
}

func TestDispatchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	e := New(httpsclient.New())
	tc := config.TargetConfig{ID: "SLOW", URL: srv.URL, Timeout: 20 * time.Millisecond}

	o := e.Dispatch(context.Background(), "GET", headers.Header{}, nil, tc, config.TLSConfig{}, rootCtx())
	assert.Equal(t, outcome.KindTimeout, o.Kind)
}

func TestDispatchConnectFailure(t *testing.T) {
	e := New(httpsclient.New())
	tc := config.TargetConfig{ID: "WRONG", URL: "http://127.0.0.1:1/closed", Timeout: time.Second}

	o := e.Dispatch(context.Background(), "GET", headers.Header{}, nil, tc, config.TLSConfig{}, rootCtx())
	assert.Equal(t, outcome.KindHyperError, o.Kind)
}

func TestDispatchInvalidURLTemplate(t *testing.T) {
	e := New(httpsclient.New())
	tc := config.TargetConfig{ID: "BAD", URL: "://not-a-url", Timeout: time.Second}

	o := e.Dispatch(context.Background(), "GET", headers.Header{}, nil, tc, config.TLSConfig{}, rootCtx())
	assert.Equal(t, outcome.KindHyperError, o.Kind)
}

// TestDispatchResponseHeadersAreCanonicalized guards against respHeaders
// being keyed by an ad hoc case instead of headers.Canonical: a response
// override's update/add rules look headers up via Header.Get/Has, which key
// off Canonical, so any other casing would make the upstream's own headers
// invisible to those rules.
func TestDispatchResponseHeadersAreCanonicalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	e := New(httpsclient.New())
	tc := config.TargetConfig{ID: "GOOD", URL: srv.URL, Timeout: time.Second}

	o := e.Dispatch(context.Background(), "GET", headers.Header{}, nil, tc, config.TLSConfig{}, rootCtx())
	require.Equal(t, outcome.KindOk, o.Kind)

	v, ok := o.Response.Header.Get("content-type")
	require.True(t, ok, "response header must be reachable via Header.Get regardless of case")
	assert.Equal(t, "text/plain", v)
}

func TestDispatchHostDerivedFromURL(t *testing.T) {
	var gotHost string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		w.WriteHeader(200)
	}))
	defer srv.Close()

	e := New(httpsclient.New())
	tc := config.TargetConfig{ID: "GOOD", URL: srv.URL, Timeout: time.Second}

	o := e.Dispatch(context.Background(), "GET", headers.Header{}, nil, tc, config.TLSConfig{}, rootCtx())
	require.Equal(t, outcome.KindOk, o.Kind)
	assert.NotEmpty(t, gotHost)
}
