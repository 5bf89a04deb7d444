// Package substitution implements the hierarchical variable context used to
// resolve "${VAR}" placeholders in target URLs, header values, and bodies.
package substitution

import (
	"fmt"
	"regexp"
	"strings"
)

// Context is an immutable frame in a stack of string maps. A child frame
// borrows its parent by reference; nothing is ever copied when extending.
type Context struct {
	own    map[string]string
	parent *Context
}

// Root builds the outermost frame from the process environment, keeping only
// variables whose name matches envMask, plus the two keys that are always
// present regardless of mask: CTX_APP_NAME and CTX_APP_VERSION.
func Root(environ []string, appName, appVersion string, envMask *regexp.Regexp) *Context {
	own := make(map[string]string, len(environ)+2)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if envMask.MatchString(name) {
			own[name] = value
		}
	}
	own["CTX_APP_NAME"] = appName
	own["CTX_APP_VERSION"] = appVersion
	return &Context{own: own}
}

// Extend returns a new child frame. The parent is never mutated or copied.
func (c *Context) Extend(own map[string]string) *Context {
	if own == nil {
		own = map[string]string{}
	}
	return &Context{own: own, parent: c}
}

// Get walks own-frame first, then parent, returning the innermost binding.
func (c *Context) Get(key string) (string, bool) {
	for f := c; f != nil; f = f.parent {
		if v, ok := f.own[key]; ok {
			return v, true
		}
	}
	return "", false
}

// Flatten collects every visible binding into a single map, own-frame values
// winning over any same-named parent binding. Used to build the "env" view
// fed to the condition evaluator.
func (c *Context) Flatten() map[string]string {
	out := map[string]string{}
	frames := make([]*Context, 0, 4)
	for f := c; f != nil; f = f.parent {
		frames = append(frames, f)
	}
	for i := len(frames) - 1; i >= 0; i-- {
		for k, v := range frames[i].own {
			out[k] = v
		}
	}
	return out
}

var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Substitute performs a single substitution pass over s, replacing every
// "${NAME}" token with its innermost binding. Undefined names expand to the
// empty string. Substitution never fails and never recurses into replaced
// text.
func (c *Context) Substitute(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(token string) string {
		name := placeholderRe.FindStringSubmatch(token)[1]
		if v, ok := c.Get(name); ok {
			return v
		}
		return ""
	})
}

// HeaderKey derives the CTX_REQUEST_HEADERS_<NAME> form of a header name:
// upper-cased with every non-alphanumeric run collapsed to a single
// underscore.
func HeaderKey(prefix, name string) string {
	var b strings.Builder
	b.WriteString(prefix)
	lastUnderscore := true
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 32)
			lastUnderscore = false
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// RequestHeaderKey returns CTX_REQUEST_HEADERS_<NAME>.
func RequestHeaderKey(name string) string {
	return HeaderKey("CTX_REQUEST_HEADERS_", name)
}

// ResponseHeaderKey returns CTX_RESPONSE_HEADERS_<NAME>.
func ResponseHeaderKey(name string) string {
	return HeaderKey("CTX_RESPONSE_HEADERS_", name)
}

// TargetID / TargetHost / ListenerName / request+response scope keys, named
// exactly as spec'd so config authors and tests can rely on them.
const (
	KeyListenerName      = "CTX_LISTENER_NAME"
	KeyRequestSourceIP   = "CTX_REQUEST_SOURCE_IP"
	KeyRequestMethod     = "CTX_REQUEST_METHOD"
	KeyRequestPath       = "CTX_REQUEST_PATH"
	KeyRequestHost       = "CTX_REQUEST_HOST"
	KeyRequestQuery      = "CTX_REQUEST_QUERY"
	KeyTargetID          = "CTX_TARGET_ID"
	KeyTargetHost        = "CTX_TARGET_HOST"
	KeyResponseStatus    = "CTX_RESPONSE_STATUS"
)

// String renders a frame for debugging only.
func (c *Context) String() string {
	return fmt.Sprintf("Context(%d own, parent=%v)", len(c.own), c.parent != nil)
}
