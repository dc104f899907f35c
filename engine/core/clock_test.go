package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockElapsed(t *testing.T) {
	c := NewClock()

	// A non-started clock never accumulates.
	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	time.Sleep(5 * time.Millisecond)
	c.Update()
	assert.Greater(t, c.Elapsed(), float64(0))

	// Stop freezes the elapsed time.
	elapsed := c.Elapsed()
	c.Stop()
	c.Update()
	assert.Equal(t, elapsed, c.Elapsed())
}

func TestClockDelta(t *testing.T) {
	c := NewClock()
	c.Start()

	time.Sleep(2 * time.Millisecond)
	first := c.Delta()
	assert.Greater(t, first, 0.0)
	assert.Less(t, first, 1.0)

	// The second call only measures from the previous one.
	second := c.Delta()
	assert.Less(t, second, first)
}
