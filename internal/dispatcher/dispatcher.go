// Package dispatcher implements the Request Dispatcher (spec.md 4.7), the
// heart of the gateway: per inbound request it selects targets, fans the
// work out to independent goroutines, fans the results back in, and runs
// the strategy state machine to produce one final response.
package dispatcher

import (
	"context"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"dragonfly/config"
	mslogger "dragonfly/logger"

	"dragonfly/internal/condition"
	"dragonfly/internal/headers"
	"dragonfly/internal/httpmsg"
	"dragonfly/internal/outcome"
	"dragonfly/internal/response"
	"dragonfly/internal/substitution"
	"dragonfly/internal/target"
)

// Dispatcher handles every inbound request accepted by one listener.
type Dispatcher struct {
	listener config.ListenerConfig
	executor *target.Executor
	policy   response.Policy
	root     *substitution.Context
}

// New builds a Dispatcher bound to one listener config. root is the
// process-wide root substitution frame (app name/version + masked env).
func New(l config.ListenerConfig, executor *target.Executor, root *substitution.Context) *Dispatcher {
	var policy response.Policy
	policy.TargetSelector = l.Response.TargetSelector
	policy.NoTargetsStatus = l.Response.NoTargetsStatus
	if l.Response.FailedStatus != "" {
		// already validated as a compilable regex during config load.
		policy.FailedStatusRegex, _ = regexp.Compile(l.Response.FailedStatus)
	}
	if l.Response.Override != nil {
		policy.Override = &response.Override{
			Status:  l.Response.Override.Status,
			Body:    l.Response.Override.Body,
			HasBody: l.Response.Override.HasBody,
			Headers: l.Response.Override.Headers,
		}
	}

	return &Dispatcher{listener: l, executor: executor, policy: policy, root: root}
}

// InboundRequest is the admitted request's immutable parts (spec.md 3
// "per-request working set"). Body is materialized once by the caller
// (Listener / C8) before Handle is invoked.
type InboundRequest struct {
	Method   string
	Path     string
	Host     string
	Query    string
	SourceIP string
	Headers  headers.Header
	Body     []byte
}

// Handle runs Phases A-F and returns the final response.
func (d *Dispatcher) Handle(req InboundRequest) *httpmsg.Response {
	start := time.Now()

	// Phase A — admit.
	if !d.listener.AllowsMethod(req.Method) {
		return &httpmsg.Response{Status: 405, Header: headers.Header{}}
	}
	requestID := uuid.NewString()

	reqCtx := d.buildRequestContext(requestID, req)

	outHeaders := cloneHeader(req.Headers)
	outHeaders.Del("Host")
	headers.Apply(outHeaders, d.listener.Headers, reqCtx)

	// Phase B — select targets.
	selected, condID, ambiguous := d.selectTargets(req, reqCtx)
	if ambiguous {
		resp := d.policy.NoTargetResponse(reqCtx)
		d.logResult(requestID, req, "-", resp, start)
		return resp
	}

	// Phase C — fan out.
	type result struct {
		id       string
		response *httpmsg.Response
	}
	results := make([]result, len(selected))
	var wg sync.WaitGroup
	for i, t := range selected {
		wg.Add(1)
		go func(i int, t config.TargetConfig) {
			defer wg.Done()
			targetCtx := d.buildTargetContext(reqCtx, t)
			o := d.executor.Dispatch(context.Background(), req.Method, outHeaders, req.Body, t, d.listener.TLS, targetCtx)
			results[i] = result{id: t.ID, response: d.classify(o, t)}
		}(i, t)
	}
	wg.Wait()

	candidates := make([]response.Candidate, len(results))
	for i, r := range results {
		candidates[i] = response.Candidate{TargetID: r.id, Response: r.response}
	}

	// Phase E — strategy state machine.
	finalResp := d.runStrategy(candidates, condID, reqCtx)

	// Phase F — emit.
	pickedID := d.pickedTargetID(candidates, condID)
	d.logResult(requestID, req, pickedID, finalResp, start)
	return finalResp
}

// classify implements Phase D: map an outcome to a stored response (or nil
// for on_error=drop) according to the target's on_error policy.
func (d *Dispatcher) classify(o outcome.Outcome, t config.TargetConfig) *httpmsg.Response {
	if o.Kind == outcome.KindOk {
		return o.Response
	}
	switch t.OnError {
	case config.OnErrorDrop:
		return nil
	case config.OnErrorStatus:
		return response.ErrorResponse(o, t.ErrorStatus)
	default: // propagate
		return response.ErrorResponse(o, 0)
	}
}

func (d *Dispatcher) selectTargets(req InboundRequest, reqCtx *substitution.Context) (selected []config.TargetConfig, condID string, ambiguous bool) {
	if d.listener.ResponseStrategy.IsConditionalRouting() {
		chosenID := ""
		chosenIsDefault := false
		var chosenTarget config.TargetConfig

		for _, t := range d.listener.Targets {
			if t.IsDefaultTarget {
				if chosenID == "" {
					chosenID = t.ID
					chosenIsDefault = true
					chosenTarget = t
				}
				continue
			}
			if t.CompiledCondition == nil {
				continue
			}
			if d.evalCondition(t, req, reqCtx) {
				switch {
				case chosenID == "":
					chosenID, chosenIsDefault, chosenTarget = t.ID, false, t
				case chosenIsDefault:
					chosenID, chosenIsDefault, chosenTarget = t.ID, false, t
				default:
					// a second filter target matched: ambiguous.
					return nil, "", true
				}
			}
		}

		if chosenID == "" {
			return nil, "", false
		}
		return []config.TargetConfig{chosenTarget}, chosenID, false
	}

	for _, t := range d.listener.Targets {
		switch {
		case t.CompiledCondition == nil && !t.IsDefaultTarget:
			selected = append(selected, t)
		case t.IsDefaultTarget:
			selected = append(selected, t)
		case t.CompiledCondition != nil:
			if d.evalCondition(t, req, reqCtx) {
				selected = append(selected, t)
			}
		}
	}
	if len(selected) == 0 {
		mslogger.LogWarn("listener " + d.listener.ID + ": no target selected for this request")
	}
	return selected, "", false
}

func (d *Dispatcher) evalCondition(t config.TargetConfig, req InboundRequest, reqCtx *substitution.Context) bool {
	targetCtx := d.buildTargetContext(reqCtx, t)
	view := condition.BuildView(req.Body, targetCtx.Flatten(), req.Headers, req.Host+req.Path, req.Host, req.Path, req.Query)
	return t.CompiledCondition.Eval(view)
}

func (d *Dispatcher) runStrategy(candidates []response.Candidate, condID string, reqCtx *substitution.Context) *httpmsg.Response {
	switch d.listener.ResponseStrategy {
	case config.AlwaysOverride:
		return response.OverrideEmpty(200, d.policy.Override, reqCtx)
	case config.OkThenOverride:
		okID, _ := d.policy.FindFirstOk(candidates)
		return d.policy.PickOneOrOverride(okID, candidates, reqCtx)
	case config.FailedThenOverride:
		failedID, _ := d.policy.FindFirstFailed(candidates)
		return d.policy.PickOneOrOverride(failedID, candidates, reqCtx)
	case config.OkThenTargetID:
		okID, _ := d.policy.FindFirstOk(candidates)
		return d.policy.PickTwo(okID, d.policy.TargetSelector, candidates, reqCtx)
	case config.FailedThenTargetID:
		failedID, _ := d.policy.FindFirstFailed(candidates)
		return d.policy.PickTwo(failedID, d.policy.TargetSelector, candidates, reqCtx)
	case config.OkThenFailed:
		okID, _ := d.policy.FindFirstOk(candidates)
		failedID, _ := d.policy.FindFirstFailed(candidates)
		return d.policy.PickTwo(okID, failedID, candidates, reqCtx)
	case config.FailedThenOk:
		failedID, _ := d.policy.FindFirstFailed(candidates)
		okID, _ := d.policy.FindFirstOk(candidates)
		return d.policy.PickTwo(failedID, okID, candidates, reqCtx)
	case config.AlwaysTargetID:
		return d.policy.PickOneOrError(d.policy.TargetSelector, candidates, reqCtx)
	case config.ConditionalRouting:
		return d.policy.PickOneOrError(condID, candidates, reqCtx)
	default:
		return d.policy.NoTargetResponse(reqCtx)
	}
}

// pickedTargetID recomputes the strategy's first-choice id, purely for the
// final log line: the first ok / first failed id, the target selector, or
// the conditional-routing id. It returns "-" when an ok/failed first choice
// is absent, even where a pick_two fallback then supplied the response; the
// fallback id is not reported.
func (d *Dispatcher) pickedTargetID(candidates []response.Candidate, condID string) string {
	switch d.listener.ResponseStrategy {
	case config.OkThenOverride, config.OkThenTargetID, config.OkThenFailed:
		id, ok := d.policy.FindFirstOk(candidates)
		if ok {
			return id
		}
	case config.FailedThenOverride, config.FailedThenTargetID, config.FailedThenOk:
		id, ok := d.policy.FindFirstFailed(candidates)
		if ok {
			return id
		}
	case config.AlwaysTargetID:
		return d.policy.TargetSelector
	case config.ConditionalRouting:
		return condID
	}
	return "-"
}

func (d *Dispatcher) buildRequestContext(requestID string, req InboundRequest) *substitution.Context {
	frame := map[string]string{
		substitution.KeyListenerName:    d.listener.ID,
		substitution.KeyRequestSourceIP: req.SourceIP,
		substitution.KeyRequestMethod:   req.Method,
		substitution.KeyRequestPath:     req.Path,
	}
	if req.Host != "" {
		frame[substitution.KeyRequestHost] = req.Host
	}
	if req.Query != "" {
		frame[substitution.KeyRequestQuery] = req.Query
	}
	for name, vs := range req.Headers {
		if len(vs) > 0 {
			frame[substitution.RequestHeaderKey(name)] = vs[0]
		}
	}
	return d.root.Extend(frame)
}

func (d *Dispatcher) buildTargetContext(reqCtx *substitution.Context, t config.TargetConfig) *substitution.Context {
	host := ""
	if u, err := url.Parse(reqCtx.Substitute(t.URL)); err == nil {
		host = u.Host
	}
	return reqCtx.Extend(map[string]string{
		substitution.KeyTargetID:   t.ID,
		substitution.KeyTargetHost: host,
	})
}

func (d *Dispatcher) logResult(requestID string, req InboundRequest, targetID string, resp *httpmsg.Response, start time.Time) {
	mslogger.LogRequest(requestID, req.Method, req.Path, targetID, resp.Status, time.Since(start))
}

func cloneHeader(h headers.Header) headers.Header {
	out := make(headers.Header, len(h))
	for k, vs := range h {
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[k] = cp
	}
	return out
}
