// Package target implements the Target Executor (spec.md 4.6): building one
// upstream request from a target config and the current substitution
// context, then dispatching it under a per-target deadline.
package target

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"dragonfly/config"
	"dragonfly/internal/headers"
	"dragonfly/internal/httpmsg"
	"dragonfly/internal/httpsclient"
	"dragonfly/internal/outcome"
	"dragonfly/internal/substitution"
)

// Executor dispatches one target at a time; it is stateless beyond the
// shared client cache and is safe for concurrent use by every fan-out task.
type Executor struct {
	clients *httpsclient.Cache
}

func New(clients *httpsclient.Cache) *Executor {
	return &Executor{clients: clients}
}

// Dispatch implements spec.md 4.6 steps 1-6. method/inboundHeaders/
// inboundBody come from the admitted request (Phase A); inboundHeaders is
// expected to already have listener-level transforms and Host stripped, per
// spec.md 4.2's "applied twice" rule — the dispatcher owns that ordering.
func (e *Executor) Dispatch(
	ctx context.Context,
	method string,
	inboundHeaders headers.Header,
	inboundBody []byte,
	t config.TargetConfig,
	listenerTLS config.TLSConfig,
	reqCtx *substitution.Context,
) outcome.Outcome {
	rawURL := reqCtx.SubstituteWithFakes(t.URL)
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return outcome.HyperError(outcome.ErrorKindOther)
	}

	outHeaders := cloneHeaders(inboundHeaders)
	headers.Apply(outHeaders, t.Headers, reqCtx)
	if !outHeaders.Has("Host") {
		outHeaders.Set("Host", parsed.Host)
	}

	var body []byte
	if t.HasBody {
		body = []byte(reqCtx.SubstituteWithFakes(t.Body))
	} else {
		body = inboundBody
	}

	profile := effectiveTLSProfile(t, listenerTLS)
	client, err := e.clients.Get(t.Timeout, profile)
	if err != nil {
		return outcome.HyperError(outcome.ErrorKindOther)
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(deadlineCtx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return outcome.HyperError(outcome.ErrorKindOther)
	}
	applyRequestHeaders(req, outHeaders)

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(deadlineCtx.Err(), context.DeadlineExceeded) {
			return outcome.Timeout()
		}
		return outcome.HyperError(classifyError(err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return outcome.HyperError(outcome.ErrorKindClosed)
	}

	// Keyed through Header.Set so lookups later (e.g. a response override's
	// update/add rules) key off the same canonical(name) form used
	// everywhere else in internal/headers, instead of an ad hoc all-caps key
	// that Header.Has/Get/Set would never match.
	respHeaders := headers.Header{}
	for k, vs := range resp.Header {
		for _, v := range vs {
			respHeaders[headers.Canonical(k)] = append(respHeaders[headers.Canonical(k)], v)
		}
	}

	return outcome.Ok(&httpmsg.Response{
		Status: resp.StatusCode,
		Header: respHeaders,
		Body:   respBody,
	})
}

func effectiveTLSProfile(t config.TargetConfig, listenerTLS config.TLSConfig) httpsclient.TLSProfile {
	tls := listenerTLS
	if t.TLS != nil {
		tls = *t.TLS
	}
	return httpsclient.TLSProfile{Verify: tls.VerifyOrDefault(), CABundle: tls.CABundlePEM}
}

func cloneHeaders(h headers.Header) headers.Header {
	out := make(headers.Header, len(h))
	for k, vs := range h {
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[k] = cp
	}
	return out
}

func applyRequestHeaders(req *http.Request, h headers.Header) {
	for k, vs := range h {
		if strings.EqualFold(k, "Host") {
			if len(vs) > 0 {
				req.Host = vs[0]
			}
			continue
		}
		req.Header[k] = vs
	}
}

// classifyError maps a transport error to an ErrorKind. Any error that
// satisfies net.Error is reported as ErrorKindConnect; this includes the
// *url.Error that http.Client.Do returns, so every Do failure other than a
// deadline (handled by the caller) maps to ErrorKindConnect (502). The
// message checks below apply only to errors outside the net.Error family.
func classifyError(err error) outcome.ErrorKind {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return outcome.ErrorKindConnect
	}
	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF") {
		return outcome.ErrorKindClosed
	}
	return outcome.ErrorKindOther
}
