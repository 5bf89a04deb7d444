// Package config loads, expands, and validates the gateway's YAML
// configuration file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	mslogger "dragonfly/logger"
)

// Load reads path, expands "${VAR}" references against the process
// environment, strictly decodes the YAML, and validates the result. This
// pre-expansion of the config source is distinct from the runtime
// substitution context (internal/substitution), which templates per-request
// values and is masked by --env-mask; the config file itself is fully
// trusted, so every process env var is eligible here.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	expanded := expandShellVars(raw)

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}

	if err := validateAndApplyDefaults(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	mslogger.LogSuccess(fmt.Sprintf("Configuration loaded from %s (%d listener(s))", path, len(cfg.Listeners)))
	return &cfg, nil
}

var shellVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandShellVars substitutes "${VAR}" in the raw YAML source against the
// process environment before parsing, per spec.md 6. Unset variables
// expand to empty string, mirroring the runtime substitution context's own
// rule so config authors see one consistent behavior throughout.
func expandShellVars(raw []byte) []byte {
	return shellVarRe.ReplaceAllFunc(raw, func(token []byte) []byte {
		name := shellVarRe.FindSubmatch(token)[1]
		return []byte(os.Getenv(string(name)))
	})
}
