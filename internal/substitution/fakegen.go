package substitution

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
)

// fakeFuncRe matches "${fake:name}" and "${fake:name arg=val}" tokens, a
// supplement to plain context lookups for targets/overrides that want a
// fresh synthetic value on every request rather than a stable binding.
var fakeFuncRe = regexp.MustCompile(`\$\{fake:([a-zA-Z0-9_]+)(?:\s+([^}]*))?\}`)

// SubstituteWithFakes runs the ordinary Substitute pass and additionally
// resolves "${fake:...}" generator tokens via gofakeit. Ordinary "${VAR}"
// tokens are resolved first so a fake directive can never shadow a real
// binding.
func (c *Context) SubstituteWithFakes(s string) string {
	s = c.Substitute(s)
	if !strings.Contains(s, "${fake:") {
		return s
	}
	return fakeFuncRe.ReplaceAllStringFunc(s, func(token string) string {
		m := fakeFuncRe.FindStringSubmatch(token)
		name, args := m[1], m[2]
		return evalFake(name, args)
	})
}

func evalFake(name, rawArgs string) string {
	args := parseFakeArgs(rawArgs)
	switch name {
	case "uuid":
		return gofakeit.UUID()
	case "request_id":
		return gofakeit.UUID()
	case "name":
		return gofakeit.Name()
	case "email":
		return gofakeit.Email()
	case "bool":
		return strconv.FormatBool(gofakeit.Bool())
	case "date":
		return gofakeit.Date().Format("2006-01-02T15:04:05Z07:00")
	case "number":
		min, max := 0, 1000
		if v, ok := args["min"]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				min = n
			}
		}
		if v, ok := args["max"]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				max = n
			}
		}
		return strconv.Itoa(gofakeit.Number(min, max))
	default:
		return ""
	}
}

func parseFakeArgs(raw string) map[string]string {
	out := map[string]string{}
	for _, field := range strings.Fields(raw) {
		name, value, ok := strings.Cut(field, "=")
		if ok {
			out[name] = value
		}
	}
	return out
}
