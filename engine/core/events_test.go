package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventFireStopsAtFirstHandler(t *testing.T) {
	EventInitialize()
	defer EventShutdown()

	calls := 0
	handler := func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls++
		return data.Data.U16[0] == 7
	}
	first, second := &struct{ n int }{1}, &struct{ n int }{2}
	assert.True(t, EventRegister(EVENT_CODE_RESIZED, first, handler))
	assert.True(t, EventRegister(EVENT_CODE_RESIZED, second, handler))
	assert.False(t, EventRegister(EVENT_CODE_RESIZED, first, handler))

	ctx := EventContext{}
	ctx.Data.U16[0] = 7
	assert.True(t, EventFire(EVENT_CODE_RESIZED, nil, ctx))
	assert.Equal(t, 1, calls)

	assert.True(t, EventUnregister(EVENT_CODE_RESIZED, first))
	assert.False(t, EventFire(EVENT_CODE_RESIZED, nil, EventContext{}))
	assert.Equal(t, 2, calls)
}

func TestFrameMetricsAverages(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < AVG_COUNT*2; i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 0.0001)

	ready := false
	for i := 0; i < 200 && !ready; i++ {
		ready = m.Update(0.010)
	}
	assert.True(t, ready)
	assert.Greater(t, m.FPS(), 0.0)
}
