// Package response implements the Response Builder (spec.md 4.5): override
// application, error/empty/no-target response shaping, and the pick_* family
// consumed by the strategy state machine in the dispatcher.
package response

import (
	"regexp"

	"dragonfly/internal/headers"
	"dragonfly/internal/httpmsg"
	"dragonfly/internal/outcome"
	"dragonfly/internal/substitution"
)

// Override describes the optional response-shaping config attached to a
// listener's response policy (spec.md 3 "Response Config").
type Override struct {
	Status  int
	Body    string // template; applied only when HasBody is set (an empty Body then yields an empty body)
	Headers []headers.Transform
	HasBody bool
}

var defaultFailedStatusRegex = regexp.MustCompile(`4\d{2}|5\d{2}`)

// Policy bundles the response-shaping config for one listener.
type Policy struct {
	TargetSelector    string
	FailedStatusRegex *regexp.Regexp // nil means use defaultFailedStatusRegex
	NoTargetsStatus   int            // 0 means default to 500
	Override          *Override
}

func (p Policy) failedRe() *regexp.Regexp {
	if p.FailedStatusRegex != nil {
		return p.FailedStatusRegex
	}
	return defaultFailedStatusRegex
}

func (p Policy) noTargetsStatus() int {
	if p.NoTargetsStatus == 0 {
		return 500
	}
	return p.NoTargetsStatus
}

// ApplyOverride implements spec.md 4.5 override(): status replacement,
// header transforms, and body substitution with Content-Length removal.
// Never mutates resp in place; returns a new Response.
func ApplyOverride(resp *httpmsg.Response, ov *Override, ctx *substitution.Context) *httpmsg.Response {
	out := resp.Clone()
	if out.Header == nil {
		out.Header = headers.Header{}
	}
	if ov == nil {
		return out
	}
	if ov.Status != 0 {
		out.Status = ov.Status
	}
	if len(ov.Headers) > 0 {
		headers.Apply(out.Header, ov.Headers, ctx)
	}
	if ov.HasBody {
		out.Body = []byte(ctx.SubstituteWithFakes(ov.Body))
		out.Header.Del("Content-Length")
	}
	return out
}

// ErrorResponse implements error_response(outcome, status_override):
// status_override wins, otherwise the outcome's default status mapping.
func ErrorResponse(o outcome.Outcome, statusOverride int) *httpmsg.Response {
	status := o.StatusFor()
	if statusOverride != 0 {
		status = statusOverride
	}
	return &httpmsg.Response{Status: status, Header: headers.Header{}}
}

// Empty returns a bare response with no body.
func Empty(status int) *httpmsg.Response {
	return &httpmsg.Response{Status: status, Header: headers.Header{}}
}

// OverrideEmpty is empty(status) immediately followed by ApplyOverride.
func OverrideEmpty(status int, ov *Override, ctx *substitution.Context) *httpmsg.Response {
	return ApplyOverride(Empty(status), ov, ctx)
}

// NoTargetResponse is Empty(no_targets_status) then override.
func (p Policy) NoTargetResponse(ctx *substitution.Context) *httpmsg.Response {
	return OverrideEmpty(p.noTargetsStatus(), p.Override, ctx)
}

// Candidate is one target's stored outcome, kept in declaration order.
type Candidate struct {
	TargetID string
	Response *httpmsg.Response // nil if on_error=drop excluded this target
}

// FindFirstOk returns the first candidate (in declaration order) whose
// response does NOT match the failed-status regex.
func (p Policy) FindFirstOk(candidates []Candidate) (string, bool) {
	re := p.failedRe()
	for _, c := range candidates {
		if c.Response == nil {
			continue
		}
		if !re.MatchString(statusString(c.Response.Status)) {
			return c.TargetID, true
		}
	}
	return "", false
}

// FindFirstFailed returns the first candidate whose response matches the
// failed-status regex.
func (p Policy) FindFirstFailed(candidates []Candidate) (string, bool) {
	re := p.failedRe()
	for _, c := range candidates {
		if c.Response == nil {
			continue
		}
		if re.MatchString(statusString(c.Response.Status)) {
			return c.TargetID, true
		}
	}
	return "", false
}

func statusString(status int) string {
	// three-digit status codes only; fast manual itoa avoids strconv import
	// churn across a hot path exercised per request.
	if status < 100 || status > 999 {
		return ""
	}
	digits := [3]byte{}
	digits[0] = byte('0' + status/100)
	digits[1] = byte('0' + (status/10)%10)
	digits[2] = byte('0' + status%10)
	return string(digits[:])
}

// responseScope extends ctx with the picked candidate's own response-scope
// frame (spec.md 3's root <- request <- target <- response stack):
// CTX_RESPONSE_STATUS plus one CTX_RESPONSE_HEADERS_<NAME> per response
// header, so an override body/header template can reference the response it
// is overriding.
func responseScope(ctx *substitution.Context, resp *httpmsg.Response) *substitution.Context {
	frame := map[string]string{
		substitution.KeyResponseStatus: statusString(resp.Status),
	}
	for name, vs := range resp.Header {
		if len(vs) > 0 {
			frame[substitution.ResponseHeaderKey(name)] = vs[0]
		}
	}
	return ctx.Extend(frame)
}

func lookup(candidates []Candidate, id string) (*httpmsg.Response, bool) {
	if id == "" {
		return nil, false
	}
	for _, c := range candidates {
		if c.TargetID == id && c.Response != nil {
			return c.Response, true
		}
	}
	return nil, false
}

// PickOneOrOverride: if id is present with a stored response, override it;
// else override_empty(200, ctx).
func (p Policy) PickOneOrOverride(id string, candidates []Candidate, ctx *substitution.Context) *httpmsg.Response {
	if resp, ok := lookup(candidates, id); ok {
		return ApplyOverride(resp, p.Override, responseScope(ctx, resp))
	}
	return OverrideEmpty(200, p.Override, ctx)
}

// PickOneOrError: if id is present with a stored response, override it;
// else no_target_response(ctx).
func (p Policy) PickOneOrError(id string, candidates []Candidate, ctx *substitution.Context) *httpmsg.Response {
	if resp, ok := lookup(candidates, id); ok {
		return ApplyOverride(resp, p.Override, responseScope(ctx, resp))
	}
	return p.NoTargetResponse(ctx)
}

// PickTwo: try a, then b, else no_target_response.
func (p Policy) PickTwo(a, b string, candidates []Candidate, ctx *substitution.Context) *httpmsg.Response {
	if resp, ok := lookup(candidates, a); ok {
		return ApplyOverride(resp, p.Override, responseScope(ctx, resp))
	}
	if resp, ok := lookup(candidates, b); ok {
		return ApplyOverride(resp, p.Override, responseScope(ctx, resp))
	}
	return p.NoTargetResponse(ctx)
}
