// Package headers implements the ordered add/update/drop header transform
// pipeline applied to outgoing requests and overridden responses.
package headers

import (
	"fmt"

	"dragonfly/internal/substitution"
)

// Action is the tagged-variant kind of a single transform rule.
type Action string

const (
	Add    Action = "add"
	Update Action = "update"
	Drop   Action = "drop"
)

// Transform is one rule in an ordered pipeline. Add/Update carry a Value
// template; Drop forbids one. A Drop of "*" clears every header currently
// set.
type Transform struct {
	Action Action `yaml:"action" json:"action"`
	Name   string `yaml:"name" json:"name"`
	Value  string `yaml:"value,omitempty" json:"value,omitempty"`
}

// Validate enforces that add/update carry a value and drop does not,
// matching the Rust original's custom deserializer invariant.
func (t Transform) Validate() error {
	switch t.Action {
	case Add, Update:
		if t.Value == "" {
			return fmt.Errorf("header transform %s %q requires a non-empty value", t.Action, t.Name)
		}
	case Drop:
		if t.Value != "" {
			return fmt.Errorf("header transform drop %q must not carry a value", t.Name)
		}
	default:
		return fmt.Errorf("unknown header transform action %q", t.Action)
	}
	if t.Name == "" {
		return fmt.Errorf("header transform is missing a name")
	}
	return nil
}

// Header is a mutable header map keyed by Canonical name (iteration order
// over names is not defined): []string values support
// multi-value headers, lookups are case-insensitive per RFC 7230.
type Header map[string][]string

// Set replaces every existing value for name.
func (h Header) Set(name, value string) { h[Canonical(name)] = []string{value} }

// Get returns the first value for name, if any.
func (h Header) Get(name string) (string, bool) {
	vs, ok := h[Canonical(name)]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// Has reports whether name is present.
func (h Header) Has(name string) bool {
	_, ok := h[Canonical(name)]
	return ok
}

// Del removes name.
func (h Header) Del(name string) { delete(h, Canonical(name)) }

// Clear removes every header.
func (h Header) Clear() {
	for k := range h {
		delete(h, k)
	}
}

// Canonical title-cases a header name the way RFC 7230 does (e.g.
// "x-pick" -> "X-Pick"), used as the map key for every Header operation so
// lookups are case-insensitive regardless of where a header name came from.
func Canonical(name string) string {
	b := []byte(name)
	upperNext := true
	for i, c := range b {
		switch {
		case c == '-':
			upperNext = true
		case upperNext && c >= 'a' && c <= 'z':
			b[i] = c - 32
			upperNext = false
		case !upperNext && c >= 'A' && c <= 'Z':
			b[i] = c + 32
			upperNext = false
		default:
			upperNext = false
		}
	}
	return string(b)
}

// Apply runs the ordered transform list against h using ctx for value
// templating. Rules run strictly in order: drop("*") clears everything seen
// so far, and a later add in the same list re-adds only that one header —
// this is invariant 5 in the testable-properties list.
func Apply(h Header, transforms []Transform, ctx *substitution.Context) {
	for _, t := range transforms {
		switch t.Action {
		case Add:
			if !h.Has(t.Name) {
				h.Set(t.Name, ctx.Substitute(t.Value))
			}
		case Update:
			if h.Has(t.Name) {
				h.Set(t.Name, ctx.Substitute(t.Value))
			}
		case Drop:
			if t.Name == "*" {
				h.Clear()
			} else {
				h.Del(t.Name)
			}
		}
	}
}
