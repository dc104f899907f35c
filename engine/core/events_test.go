package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventFireNotifiesListeners(t *testing.T) {
	require.True(t, EventSystemInitialize())

	var got EventContext
	calls := 0
	EventRegister(EVENT_CODE_RESIZED, func(code SystemEventCode, context EventContext) bool {
		calls++
		got = context
		return false
	})

	consumed := EventFire(EVENT_CODE_RESIZED, EventContext{Width: 800, Height: 600})
	assert.False(t, consumed)
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint32(800), got.Width)
	assert.Equal(t, uint32(600), got.Height)
}

func TestEventFireStopsOnConsume(t *testing.T) {
	require.True(t, EventSystemInitialize())

	order := []int{}
	EventRegister(EVENT_CODE_SHADER_CHANGED, func(code SystemEventCode, context EventContext) bool {
		order = append(order, 1)
		return true
	})
	EventRegister(EVENT_CODE_SHADER_CHANGED, func(code SystemEventCode, context EventContext) bool {
		order = append(order, 2)
		return false
	})

	consumed := EventFire(EVENT_CODE_SHADER_CHANGED, EventContext{Path: "shaders/scene.frag.spv"})
	assert.True(t, consumed)
	assert.Equal(t, []int{1}, order, "second listener must not run")
}

func TestEventFireNoListeners(t *testing.T) {
	require.True(t, EventSystemInitialize())
	assert.False(t, EventFire(MAX_EVENT_CODE, EventContext{}))
}
