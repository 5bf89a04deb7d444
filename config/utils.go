package config

import (
	"crypto/x509"
	"fmt"
	"os"
	"regexp"
	"strings"

	"dragonfly/internal/condition"
)

func validateAndApplyDefaults(cfg *Config) error {
	if len(cfg.Listeners) == 0 {
		return fmt.Errorf("config must declare at least one listener")
	}

	seenListenerIDs := map[string]bool{}
	for i := range cfg.Listeners {
		l := &cfg.Listeners[i]

		if l.ID == "" {
			return fmt.Errorf("listener[%d]: id is required", i)
		}
		if seenListenerIDs[l.ID] {
			return fmt.Errorf("listener %q: duplicate listener id", l.ID)
		}
		seenListenerIDs[l.ID] = true

		bindAddr, err := ParseListenOn(l.On)
		if err != nil {
			return fmt.Errorf("listener %q: %w", l.ID, err)
		}
		l.BindAddr = bindAddr

		if l.Timeout <= 0 {
			l.Timeout = defaultListenerTimeout
		}

		if err := l.ResponseStrategy.Validate(); err != nil {
			return fmt.Errorf("listener %q: %w", l.ID, err)
		}

		if err := validateTargets(l); err != nil {
			return fmt.Errorf("listener %q: %w", l.ID, err)
		}

		if err := validateStrategyInvariants(l); err != nil {
			return fmt.Errorf("listener %q: %w", l.ID, err)
		}

		if l.Response.FailedStatus != "" {
			if _, err := regexp.Compile(l.Response.FailedStatus); err != nil {
				return fmt.Errorf("listener %q: invalid response.failed_status regex: %w", l.ID, err)
			}
		}

		if err := validateTLS(&l.TLS); err != nil {
			return fmt.Errorf("listener %q: tls: %w", l.ID, err)
		}
	}

	return nil
}

const defaultListenerTimeout = 5_000_000_000 // 5s, in time.Duration nanoseconds

func validateTargets(l *ListenerConfig) error {
	if len(l.Targets) == 0 {
		return fmt.Errorf("must declare at least one target")
	}

	seenIDs := map[string]bool{}
	defaultCount := 0

	for i := range l.Targets {
		t := &l.Targets[i]

		if t.ID == "" {
			t.ID = fmt.Sprintf("TARGET-%s", t.URL)
		}
		if seenIDs[t.ID] {
			return fmt.Errorf("duplicate target id %q", t.ID)
		}
		seenIDs[t.ID] = true

		if t.URL == "" {
			return fmt.Errorf("target %q: url is required", t.ID)
		}

		if t.Timeout <= 0 {
			t.Timeout = l.Timeout
		}

		switch t.OnError {
		case "":
			t.OnError = OnErrorPropagate
		case OnErrorPropagate, OnErrorStatus, OnErrorDrop:
		default:
			return fmt.Errorf("target %q: invalid on_error %q", t.ID, t.OnError)
		}

		if t.OnError == OnErrorStatus && t.ErrorStatus == 0 {
			return fmt.Errorf("target %q: on_error=status requires error_status", t.ID)
		}
		if t.OnError != OnErrorStatus && t.ErrorStatus != 0 {
			return fmt.Errorf("target %q: error_status is only valid with on_error=status", t.ID)
		}

		for _, h := range t.Headers {
			if err := h.Validate(); err != nil {
				return fmt.Errorf("target %q: %w", t.ID, err)
			}
		}

		cond := strings.TrimSpace(t.Condition)
		switch cond {
		case "":
			// unconditional: always selected by non-conditional_routing
			// strategies, installed unconditionally in conditional_routing
			// only if also marked default (it is not, here).
		case condition.Default:
			t.IsDefaultTarget = true
			defaultCount++
		default:
			f, err := condition.Compile(cond)
			if err != nil {
				return fmt.Errorf("target %q: %w", t.ID, err)
			}
			t.CompiledCondition = f
		}

		if t.TLS != nil {
			if err := validateTLS(t.TLS); err != nil {
				return fmt.Errorf("target %q: tls: %w", t.ID, err)
			}
		}
	}

	if defaultCount > 1 {
		return fmt.Errorf("at most one target may have condition: default (got %d)", defaultCount)
	}

	return nil
}

func validateStrategyInvariants(l *ListenerConfig) error {
	if l.ResponseStrategy.RequiresTargetSelector() {
		if l.Response.TargetSelector == "" {
			return fmt.Errorf("response_strategy %q requires response.target_selector", l.ResponseStrategy)
		}
		if !hasTarget(l.Targets, l.Response.TargetSelector) {
			return fmt.Errorf("response.target_selector %q does not name a declared target", l.Response.TargetSelector)
		}
	}

	if l.ResponseStrategy.IsConditionalRouting() {
		for _, t := range l.Targets {
			if !t.IsDefaultTarget && t.CompiledCondition == nil {
				return fmt.Errorf("conditional_routing requires every target to have a condition; %q has none", t.ID)
			}
		}
	}

	return nil
}

func hasTarget(targets []TargetConfig, id string) bool {
	for _, t := range targets {
		if t.ID == id {
			return true
		}
	}
	return false
}

func validateTLS(tls *TLSConfig) error {
	if tls.CABundle == "" {
		return nil
	}
	pem, err := os.ReadFile(tls.CABundle)
	if err != nil {
		return fmt.Errorf("ca_bundle %q: %w", tls.CABundle, err)
	}
	if len(strings.TrimSpace(string(pem))) == 0 {
		return fmt.Errorf("ca_bundle %q is empty", tls.CABundle)
	}
	if !x509.NewCertPool().AppendCertsFromPEM(pem) {
		return fmt.Errorf("ca_bundle %q contains no usable PEM certificates", tls.CABundle)
	}
	tls.CABundlePEM = string(pem)
	return nil
}
