package headers

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dragonfly/internal/substitution"
)

func ctx() *substitution.Context {
	return substitution.Root(nil, "app", "1.0.0", regexp.MustCompile(`.+`))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Transform{Action: Add, Name: "x-a", Value: "1"}.Validate())
	require.NoError(t, Transform{Action: Drop, Name: "x-a"}.Validate())
	require.Error(t, Transform{Action: Add, Name: "x-a"}.Validate())
	require.Error(t, Transform{Action: Drop, Name: "x-a", Value: "1"}.Validate())
}

func TestApplyAddNoopWhenPresent(t *testing.T) {
	h := Header{}
	h.Set("X-A", "orig")
	Apply(h, []Transform{{Action: Add, Name: "x-a", Value: "new"}}, ctx())
	v, _ := h.Get("x-a")
	assert.Equal(t, "orig", v)
}

func TestApplyUpdateNoopWhenAbsent(t *testing.T) {
	h := Header{}
	Apply(h, []Transform{{Action: Update, Name: "x-a", Value: "new"}}, ctx())
	assert.False(t, h.Has("x-a"))
}

func TestApplyDropStarThenReAdd(t *testing.T) {
	h := Header{}
	h.Set("X-A", "1")
	h.Set("X-B", "2")
	Apply(h, []Transform{
		{Action: Drop, Name: "*"},
		{Action: Add, Name: "x-a", Value: "fresh"},
	}, ctx())

	assert.False(t, h.Has("x-b"))
	v, ok := h.Get("x-a")
	require.True(t, ok)
	assert.Equal(t, "fresh", v)
	assert.Len(t, h, 1)
}

func TestApplySubstitutesValue(t *testing.T) {
	h := Header{}
	Apply(h, []Transform{{Action: Add, Name: "x-target-id", Value: "${" + substitution.KeyTargetID + "}"}},
		ctx().Extend(map[string]string{substitution.KeyTargetID: "GOOD"}))
	v, _ := h.Get("x-target-id")
	assert.Equal(t, "GOOD", v)
}

func TestCaseInsensitiveLookup(t *testing.T) {
	h := Header{}
	h.Set("content-type", "application/json")
	v, ok := h.Get("Content-Type")
	require.True(t, ok)
	assert.Equal(t, "application/json", v)
}
