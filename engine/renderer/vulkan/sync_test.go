package vulkan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimelineCounter(t *testing.T) {
	var tc TimelineCounter
	assert.Zero(t, tc.Signaled())

	assert.Equal(t, uint64(1), tc.Advance())
	assert.Equal(t, uint64(1), tc.Signaled())
	assert.Equal(t, uint64(2), tc.Advance())
	assert.Equal(t, uint64(3), tc.Advance())
	assert.Equal(t, uint64(3), tc.Signaled())
}

func TestTimelineCounterPerSlot(t *testing.T) {
	// Three slots cycled over ten frames: each slot signals once per
	// visit, so after frame n slot s has signaled ceil((n-s)/3) times.
	counters := make([]TimelineCounter, MaxFramesInFlight)
	for frame := 0; frame < 10; frame++ {
		counters[frame%MaxFramesInFlight].Advance()
	}
	assert.Equal(t, uint64(4), counters[0].Signaled())
	assert.Equal(t, uint64(3), counters[1].Signaled())
	assert.Equal(t, uint64(3), counters[2].Signaled())
}
