package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_RegisterGetRemove(t *testing.T) {
	r := New[int]()
	r.Register("a", 1)
	r.Register("b", 2)

	v, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b"}, r.List())
	assert.Equal(t, 2, r.Count())

	r.Remove("a")
	_, ok = r.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := New[string]()
	r.Register("k", "first")
	r.Register("k", "second")
	v, _ := r.Get("k")
	assert.Equal(t, "second", v)
}

func TestRegistry_MustGetPanicsWhenMissing(t *testing.T) {
	r := New[int]()
	assert.Panics(t, func() { r.MustGet("nope") })
}

func TestRegistry_Clear(t *testing.T) {
	r := New[int]()
	r.Register("a", 1)
	r.Clear()
	assert.Equal(t, 0, r.Count())
}
