package substitution

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootEnvMask(t *testing.T) {
	environ := []string{"UPSTREAM_HOST=example.com", "SECRET_KEY=hunter2", "PATH=/bin"}
	root := Root(environ, "dragonfly", "1.0.0", regexp.MustCompile(`^UPSTREAM_`))

	v, ok := root.Get("UPSTREAM_HOST")
	assert.True(t, ok)
	assert.Equal(t, "example.com", v)

	_, ok = root.Get("SECRET_KEY")
	assert.False(t, ok, "env vars not matching the mask must not leak into the context")

	v, ok = root.Get("CTX_APP_NAME")
	assert.True(t, ok)
	assert.Equal(t, "dragonfly", v)
}

func TestExtendShadowsParent(t *testing.T) {
	root := Root(nil, "app", "1.0.0", regexp.MustCompile(`.+`))
	child := root.Extend(map[string]string{"CTX_APP_NAME": "overridden"})

	v, _ := child.Get("CTX_APP_NAME")
	assert.Equal(t, "overridden", v)

	v, _ = root.Get("CTX_APP_NAME")
	assert.Equal(t, "app", v, "extending must not mutate the parent frame")
}

func TestSubstituteUndefinedIsEmpty(t *testing.T) {
	root := Root(nil, "app", "1.0.0", regexp.MustCompile(`.+`))
	got := root.Substitute("hello ${CTX_APP_NAME}, ${MISSING}!")
	assert.Equal(t, "hello app, !", got)
}

func TestSubstituteInnermostWins(t *testing.T) {
	root := Root(nil, "app", "1.0.0", regexp.MustCompile(`.+`))
	target := root.Extend(map[string]string{KeyTargetID: "GOOD"})
	response := target.Extend(map[string]string{KeyTargetID: "SHADOW"})

	assert.Equal(t, "SHADOW", response.Substitute("${"+KeyTargetID+"}"))
	assert.Equal(t, "GOOD", target.Substitute("${"+KeyTargetID+"}"))
}

func TestRequestHeaderKey(t *testing.T) {
	assert.Equal(t, "CTX_REQUEST_HEADERS_X_PICK", RequestHeaderKey("x-pick"))
	assert.Equal(t, "CTX_REQUEST_HEADERS_CONTENT_TYPE", RequestHeaderKey("Content-Type"))
}

func TestFlattenMergesFrames(t *testing.T) {
	root := Root(nil, "app", "1.0.0", regexp.MustCompile(`.+`))
	req := root.Extend(map[string]string{KeyRequestMethod: "GET"})
	flat := req.Flatten()
	assert.Equal(t, "GET", flat[KeyRequestMethod])
	assert.Equal(t, "app", flat["CTX_APP_NAME"])
}
