package dispatcher

import (
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
	"dragonfly/internal/substitution"
	"dragonfly/internal/target"
)

func newDispatcher(t *testing.T, l config.ListenerConfig) *Dispatcher {
	t.Helper()
	root := substitution.Root(nil, "dragonfly", "test", regexp.MustCompile(`.+`))
	exec := target.New(httpsclient.New())
	return New(l, exec, root)
}

func echoServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// S1: failed_then_ok with WRONG=connect-fail (error dropped), GOOD=echo 200 -> 200.
func TestScenarioFailedThenOkPicksGood(t *testing.T) {
	good := echoServer(t, 200)
	l := config.ListenerConfig{
		ID: "main", ResponseStrategy: config.FailedThenOk,
		Targets: []config.TargetConfig{
			{ID: "WRONG", URL: "http://127.0.0.1:1/closed", Timeout: time.Second, OnError: config.OnErrorDrop},
			{ID: "GOOD", URL: good.URL, Timeout: time.Second, OnError: config.OnErrorPropagate},
		},
	}
	d := newDispatcher(t, l)
	resp := d.Handle(InboundRequest{Method: "GET", Path: "/", Headers: headers.Header{}})
	assert.Equal(t, 200, resp.Status)
}

// S2: WRONG (error dropped) + TIMEOUT(slow), target timeout short -> 504.
func TestScenarioFailedThenOkTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(200)
	}))
	t.Cleanup(slow.Close)

	l := config.ListenerConfig{
		ID: "main", ResponseStrategy: config.FailedThenOk,
		Targets: []config.TargetConfig{
			{ID: "WRONG", URL: "http://127.0.0.1:1/closed", Timeout: time.Second, OnError: config.OnErrorDrop},
			{ID: "TIMEOUT", URL: slow.URL, Timeout: 10 * time.Millisecond, OnError: config.OnErrorPropagate},
		},
	}
	d := newDispatcher(t, l)
	resp := d.Handle(InboundRequest{Method: "GET", Path: "/", Headers: headers.Header{}})
	assert.Equal(t, 504, resp.Status)
}

// S3: failed_then_target_id, sel=WRONG, GOOD returns 200 and WRONG connect-fails -> 502.
func TestScenarioFailedThenTargetID(t *testing.T) {
	good := echoServer(t, 200)
	l := config.ListenerConfig{
		ID: "main", ResponseStrategy: config.FailedThenTargetID,
		Response: config.ResponseConfig{TargetSelector: "WRONG"},
		Targets: []config.TargetConfig{
			{ID: "GOOD", URL: good.URL, Timeout: time.Second, OnError: config.OnErrorPropagate},
			{ID: "WRONG", URL: "http://127.0.0.1:1/closed", Timeout: time.Second, OnError: config.OnErrorPropagate},
		},
	}
	d := newDispatcher(t, l)
	resp := d.Handle(InboundRequest{Method: "GET", Path: "/", Headers: headers.Header{}})
	assert.Equal(t, 502, resp.Status)
}

// S4: always_override with override status 222; CTX_TARGET_ID unset at request scope -> empty string.
func TestScenarioAlwaysOverride(t *testing.T) {
	l := config.ListenerConfig{
		ID: "main", ResponseStrategy: config.AlwaysOverride,
		Response: config.ResponseConfig{
			Override: &config.OverrideConfig{
				Status: 222, HasBody: false,
				Headers: []headers.Transform{{Action: headers.Add, Name: "x-target-id", Value: "${" + substitution.KeyTargetID + "}"}},
			},
		},
		Targets: []config.TargetConfig{{ID: "ANY", URL: "http://127.0.0.1:1/x", Timeout: time.Second}},
	}
	d := newDispatcher(t, l)
	resp := d.Handle(InboundRequest{Method: "GET", Path: "/", Headers: headers.Header{}})
	assert.Equal(t, 222, resp.Status)
	v, ok := resp.Header.Get("x-target-id")
	require.True(t, ok)
	assert.Equal(t, "", v, "override runs at request scope; CTX_TARGET_ID must expand to empty string, not remain literal")
}

// S5: conditional_routing with two filters and a default.
func TestScenarioConditionalRouting(t *testing.T) {
	t1 := echoServer(t, 201)
	t2 := echoServer(t, 202)
	def := echoServer(t, 203)

	l := config.ListenerConfig{
		ID: "main", ResponseStrategy: config.ConditionalRouting,
		Targets: []config.TargetConfig{
			{ID: "t1", URL: t1.URL, Timeout: time.Second, Condition: `.request.headers["x-pick"] == "1"`},
			{ID: "t2", URL: t2.URL, Timeout: time.Second, Condition: `.request.headers["x-pick"] == "2"`},
			{ID: "tD", URL: def.URL, Timeout: time.Second, Condition: "default"},
		},
	}
	require.NoError(t, compileTargets(&l))
	d := newDispatcher(t, l)

	resp := d.Handle(InboundRequest{Method: "GET", Path: "/", Headers: headers.Header{"x-pick": {"2"}}})
	assert.Equal(t, 202, resp.Status)

	resp = d.Handle(InboundRequest{Method: "GET", Path: "/", Headers: headers.Header{}})
	assert.Equal(t, 203, resp.Status)

	ambiguousCalls := 0
	ambiguousSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ambiguousCalls++
		w.WriteHeader(200)
	}))
	t.Cleanup(ambiguousSrv.Close)
	l2 := config.ListenerConfig{
		ID: "main", ResponseStrategy: config.ConditionalRouting,
		Targets: []config.TargetConfig{
			{ID: "t1", URL: ambiguousSrv.URL, Timeout: time.Second, Condition: `.request.headers["x-pick"] == "2"`},
			{ID: "t2", URL: ambiguousSrv.URL, Timeout: time.Second, Condition: `.request.uri.path == "/"`},
		},
	}
	require.NoError(t, compileTargets(&l2))
	d2 := newDispatcher(t, l2)
	resp = d2.Handle(InboundRequest{Method: "GET", Path: "/", Headers: headers.Header{"x-pick": {"2"}}})
	assert.Equal(t, 500, resp.Status)
	assert.Equal(t, 0, ambiguousCalls, "neither upstream should be contacted when conditional_routing is ambiguous")
}

// TestScenarioConditionalRoutingRealHeaderCasing exercises the exact header
// casing a real inbound connection produces: net/http.Header (like
// fasthttp's header table) canonicalizes "x-pick" to "X-Pick", so this
// guards against condition evaluation silently failing to match because the
// config author wrote a lowercase bracket key.
func TestScenarioConditionalRoutingRealHeaderCasing(t *testing.T) {
	picked := echoServer(t, 202)
	def := echoServer(t, 203)

	l := config.ListenerConfig{
		ID: "main", ResponseStrategy: config.ConditionalRouting,
		Targets: []config.TargetConfig{
			{ID: "t2", URL: picked.URL, Timeout: time.Second, Condition: `.request.headers["x-pick"] == "2"`},
			{ID: "tD", URL: def.URL, Timeout: time.Second, Condition: "default"},
		},
	}
	require.NoError(t, compileTargets(&l))
	d := newDispatcher(t, l)

	wire := http.Header{}
	wire.Set("x-pick", "2")
	resp := d.Handle(InboundRequest{Method: "GET", Path: "/", Headers: headers.Header(wire)})
	assert.Equal(t, 202, resp.Status, "condition must match even though the wire header key is canonicalized to X-Pick")
}

// compileTargets runs just enough of config validation to populate
// CompiledCondition/IsDefaultTarget, without requiring a full YAML round
// trip in these in-memory test fixtures.
func compileTargets(l *config.ListenerConfig) error {
	cfg := &config.Config{Listeners: []config.ListenerConfig{*l}}
	if err := config.ValidateForTest(cfg); err != nil {
		return err
	}
	*l = cfg.Listeners[0]
	return nil
}
