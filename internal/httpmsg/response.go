// Package httpmsg holds the plain-data response shape shared by the target
// executor, the response builder, and the dispatcher, kept dependency-free
// so none of those packages need to import one another just for this type.
package httpmsg

import "dragonfly/internal/headers"

// Response is a fully materialized HTTP response: the body has already been
// read to completion, never a stream, so it can cross goroutine boundaries
// freely and be read more than once.
type Response struct {
	Status int
	Header headers.Header
	Body   []byte
}

// Clone makes a shallow-safe copy suitable for independent mutation by the
// response builder (so overriding one candidate response never mutates the
// map of collected per-target outcomes).
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	h := make(headers.Header, len(r.Header))
	for k, vs := range r.Header {
		cp := make([]string, len(vs))
		copy(cp, vs)
		h[k] = cp
	}
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	return &Response{Status: r.Status, Header: h, Body: body}
}
