package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dragonfly/internal/condition"
	"dragonfly/internal/headers"
)

// Config is the top-level decoded shape of the YAML config file (spec.md 6).
type Config struct {
	Listeners []ListenerConfig `yaml:"listeners"`
}

// ListenerConfig is spec.md 3 "Listener Config".
type ListenerConfig struct {
	ID               string              `yaml:"id"`
	On               string              `yaml:"on"`
	Timeout          time.Duration       `yaml:"timeout"`
	Methods          []string            `yaml:"methods"`
	Headers          []headers.Transform `yaml:"headers"`
	Targets          []TargetConfig      `yaml:"targets"`
	ResponseStrategy ResponseStrategy    `yaml:"response_strategy"`
	Response         ResponseConfig      `yaml:"response"`
	TLS              TLSConfig           `yaml:"tls"`

	// BindAddr is derived from On during validation.
	BindAddr string `yaml:"-"`
}

// AllowsMethod reports whether method is permitted; an empty Methods list
// means "all methods allowed" per spec.md 3.
func (l ListenerConfig) AllowsMethod(method string) bool {
	if len(l.Methods) == 0 {
		return true
	}
	for _, m := range l.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// OnErrorAction is the per-target error-handling policy.
type OnErrorAction string

const (
	OnErrorPropagate OnErrorAction = "propagate"
	OnErrorStatus    OnErrorAction = "status"
	OnErrorDrop      OnErrorAction = "drop"
)

// TargetConfig is spec.md 3 "Target Config".
type TargetConfig struct {
	ID          string              `yaml:"id"`
	URL         string              `yaml:"url"`
	Headers     []headers.Transform `yaml:"headers"`
	Body        string              `yaml:"body"`
	HasBody     bool                `yaml:"-"`
	Timeout     time.Duration       `yaml:"timeout"`
	OnError     OnErrorAction       `yaml:"on_error"`
	ErrorStatus int                 `yaml:"error_status"`
	Condition   string              `yaml:"condition"`
	TLS         *TLSConfig          `yaml:"tls"`

	// CompiledCondition is the compiled filter; it is nil for an
	// unconditional target and for a condition.Default target, which is
	// marked by IsDefaultTarget instead. Both are populated by
	// validateAndApplyDefaults; the filter is never re-parsed per request.
	CompiledCondition *condition.Filter `yaml:"-"`
	IsDefaultTarget   bool             `yaml:"-"`
}

// UnmarshalYAML captures whether "body" was present at all, distinguishing
// "no body template" from "body template that substitutes to empty".
func (t *TargetConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain TargetConfig
	var raw plain
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*t = TargetConfig(raw)

	var probe struct {
		Body *string `yaml:"body"`
	}
	if err := value.Decode(&probe); err != nil {
		return err
	}
	if probe.Body != nil {
		t.HasBody = true
		t.Body = *probe.Body
	}
	return nil
}

// TLSConfig is the TLS profile attached to a listener or target. CABundle
// names a file path to a PEM bundle; its content is read and validated once
// at config-validation time and cached in CABundlePEM.
type TLSConfig struct {
	Verify   *bool  `yaml:"verify"`
	CABundle string `yaml:"ca_bundle"`

	CABundlePEM string `yaml:"-"`
}

// VerifyOrDefault returns the effective verify flag; unset means true.
func (t TLSConfig) VerifyOrDefault() bool {
	if t.Verify == nil {
		return true
	}
	return *t.Verify
}

// ResponseConfig is spec.md 3 "Response Config".
type ResponseConfig struct {
	TargetSelector  string          `yaml:"target_selector"`
	FailedStatus    string          `yaml:"failed_status"`
	NoTargetsStatus int             `yaml:"no_targets_status"`
	Override        *OverrideConfig `yaml:"override"`
}

// OverrideConfig is the optional response-shaping block.
type OverrideConfig struct {
	Status  int                 `yaml:"status"`
	Body    string              `yaml:"body"`
	HasBody bool                `yaml:"-"`
	Headers []headers.Transform `yaml:"headers"`
}

func (o *OverrideConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain OverrideConfig
	var raw plain
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*o = OverrideConfig(raw)

	var probe struct {
		Body *string `yaml:"body"`
	}
	if err := value.Decode(&probe); err != nil {
		return err
	}
	if probe.Body != nil {
		o.HasBody = true
		o.Body = *probe.Body
	}
	return nil
}

// parsePort validates a bare numeric string is a usable TCP port.
func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	if p < 1 || p > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", p)
	}
	return p, nil
}

// ParseListenOn parses the "on" field per spec.md 6: "IP:PORT", ":PORT",
// "*:PORT", or a bare "PORT". "0.0.0.0" and "*" both mean all interfaces.
func ParseListenOn(on string) (string, error) {
	on = strings.TrimSpace(on)
	if on == "" {
		return "", fmt.Errorf("listener 'on' must not be empty")
	}

	if !strings.Contains(on, ":") {
		port, err := parsePort(on)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("0.0.0.0:%d", port), nil
	}

	host, portStr, found := strings.Cut(on, ":")
	if !found {
		return "", fmt.Errorf("invalid 'on' value %q", on)
	}
	port, err := parsePort(portStr)
	if err != nil {
		return "", err
	}
	if host == "" || host == "*" || host == "0.0.0.0" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, port), nil
}
