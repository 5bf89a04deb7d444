package condition

import (
	"encoding/json"
	"strings"

	"dragonfly/internal/headers"
)

// View is the synthesized JSON document condition filters run against,
// exactly the shape spec.md 4.3 names:
//
//	{ "body": <JSON or {}>, "env": {...},
//	  "request": {"headers": {...}, "uri": {"full","host","path","query"}} }
type View struct {
	Body    json.RawMessage   `json:"body"`
	Env     map[string]string `json:"env"`
	Request ViewRequest       `json:"request"`
}

type ViewRequest struct {
	Headers map[string]string `json:"headers"`
	URI     ViewURI           `json:"uri"`
}

type ViewURI struct {
	Full  string `json:"full"`
	Host  string `json:"host"`
	Path  string `json:"path"`
	Query string `json:"query"`
}

// BuildView assembles the view and marshals it once; callers pass the raw
// inbound body bytes (possibly empty), the flattened context, the inbound
// headers, and URI parts. If body does not parse as JSON, it becomes {},
// per spec — the filter evaluator must never fail because of the body.
func BuildView(body []byte, env map[string]string, h headers.Header, full, host, path, query string) []byte {
	var bodyJSON json.RawMessage
	if json.Valid(body) {
		bodyJSON = json.RawMessage(body)
	} else {
		bodyJSON = json.RawMessage(`{}`)
	}

	// Header names are lowercased here so a condition's bracket path (e.g.
	// `.request.headers["x-pick"]`) matches regardless of how the inbound
	// transport canonicalized the wire header (fasthttp title-cases to
	// "X-Pick"); toGjsonPath lowercases the same way on the lookup side.
	flatHeaders := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			flatHeaders[strings.ToLower(k)] = vs[0]
		}
	}

	v := View{
		Body: bodyJSON,
		Env:  env,
		Request: ViewRequest{
			Headers: flatHeaders,
			URI:     ViewURI{Full: full, Host: host, Path: path, Query: query},
		},
	}
	out, err := json.Marshal(v)
	if err != nil {
		// body was already validated as either valid JSON or replaced with
		// {}, env/headers are plain string maps: marshaling cannot fail.
		return []byte(`{}`)
	}
	return out
}
