package errcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	e := New(11, 1, "demo", "demo.a", "a")

	assert.Same(t, e, r.Register(e))
	assert.NotPanics(t, func() { r.Register(New(11, 1, "demo", "demo.a", "again")) }, "same key is idempotent")
	assert.Equal(t, map[int]string{110001: "demo:demo.a"}, r.GetAll())

	assert.PanicsWithValue(t,
		"error code conflict: code 110001 is already registered as demo:demo.a, cannot register as demo:demo.b",
		func() { r.Register(New(11, 1, "demo", "demo.b", "b")) })
}

func TestRegistry_Lock(t *testing.T) {
	r := NewRegistry()
	r.Lock()

	assert.True(t, r.IsLocked())
	assert.Panics(t, func() { r.Register(New(11, 2, "demo", "demo.c", "c")) })
}

func TestGlobalRegistry_HasAdmissionCodes(t *testing.T) {
	codes := GetAllRegisteredCodes()
	assert.Equal(t, "admission:admission.rate_limited", codes[ErrRateLimited.Code()])
	assert.Equal(t, "admission:admission.queue_full", codes[ErrQueueFull.Code()])
	assert.Len(t, codes, 5)
}
