package vulkan

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(5, 0, 10))
	assert.Equal(t, 0, Clamp(-3, 0, 10))
	assert.Equal(t, 10, Clamp(42, 0, 10))
	assert.Equal(t, uint32(800), Clamp(uint32(800), uint32(1), uint32(4096)))
	assert.Equal(t, 1.5, Clamp(1.5, 1.0, 2.0))
}

func TestMipLevelCount(t *testing.T) {
	tests := []struct {
		width, height uint32
		want          uint32
	}{
		{1, 1, 1},
		{2, 2, 2},
		{2, 1, 2},
		{256, 256, 9},
		{512, 512, 10},
		{2048, 2048, 12},
		{1920, 1080, 11},
		{128, 1, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MipLevelCount(tt.width, tt.height),
			"mip count for %dx%d", tt.width, tt.height)
	}
}

func TestFloatsToBytes(t *testing.T) {
	floats := []float32{0, 1, -2.5, math.Pi}
	data := floatsToBytes(floats)

	assert.Len(t, data, len(floats)*4)
	for i, f := range floats {
		got := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		assert.Equal(t, f, got)
	}
}
