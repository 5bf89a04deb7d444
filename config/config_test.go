package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dragonfly.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
listeners:
  - id: main
    on: ":8001"
    response_strategy: failed_then_ok
    response:
      no_targets_status: 500
    targets:
      - id: GOOD
        url: "http://127.0.0.1:9001/echo"
      - id: WRONG
        url: "http://127.0.0.1:1/closed"
`

func TestLoadMinimalConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Listeners, 1)
	require.Equal(t, "0.0.0.0:8001", cfg.Listeners[0].BindAddr)
	require.Len(t, cfg.Listeners[0].Targets, 2)
	require.Equal(t, OnErrorPropagate, cfg.Listeners[0].Targets[0].OnError)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeTempConfig(t, minimalConfig+"bogus_field: true\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("UPSTREAM_PORT", "9100")
	path := writeTempConfig(t, `
listeners:
  - id: main
    on: ":8001"
    response_strategy: always_target_id
    response:
      target_selector: GOOD
    targets:
      - id: GOOD
        url: "http://127.0.0.1:${UPSTREAM_PORT}/echo"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:9100/echo", cfg.Listeners[0].Targets[0].URL)
}

func TestValidateRejectsNoListeners(t *testing.T) {
	cfg := &Config{}
	err := validateAndApplyDefaults(cfg)
	require.Error(t, err)
}

func TestValidateRejectsAmbiguousConditionalRoutingDefaults(t *testing.T) {
	cfg := &Config{Listeners: []ListenerConfig{{
		ID: "main", On: ":8002", ResponseStrategy: ConditionalRouting,
		Targets: []TargetConfig{
			{ID: "A", URL: "http://x", Condition: "default"},
			{ID: "B", URL: "http://y", Condition: "default"},
		},
	}}}
	err := validateAndApplyDefaults(cfg)
	require.Error(t, err)
}

func TestValidateRejectsMissingTargetSelector(t *testing.T) {
	cfg := &Config{Listeners: []ListenerConfig{{
		ID: "main", On: ":8003", ResponseStrategy: AlwaysTargetID,
		Targets: []TargetConfig{{ID: "A", URL: "http://x"}},
	}}}
	err := validateAndApplyDefaults(cfg)
	require.Error(t, err)
}

func TestValidateRejectsErrorStatusMismatch(t *testing.T) {
	cfg := &Config{Listeners: []ListenerConfig{{
		ID: "main", On: ":8004", ResponseStrategy: FailedThenOk,
		Targets: []TargetConfig{{ID: "A", URL: "http://x", ErrorStatus: 503}},
	}}}
	err := validateAndApplyDefaults(cfg)
	require.Error(t, err)
}

func TestParseListenOnForms(t *testing.T) {
	cases := map[string]string{
		"8001":            "0.0.0.0:8001",
		":8001":           "0.0.0.0:8001",
		"*:8001":          "0.0.0.0:8001",
		"0.0.0.0:8001":    "0.0.0.0:8001",
		"127.0.0.1:8001":  "127.0.0.1:8001",
	}
	for in, want := range cases {
		got, err := ParseListenOn(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}
