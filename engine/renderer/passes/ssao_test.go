package passes

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSAONoisePixels(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pixels := ssaoNoisePixels(rng)

	require.Len(t, pixels, ssaoNoiseDim*ssaoNoiseDim*4)
	for i := 0; i < len(pixels); i += 4 {
		assert.GreaterOrEqual(t, pixels[i+0], float32(-1))
		assert.LessOrEqual(t, pixels[i+0], float32(1))
		assert.GreaterOrEqual(t, pixels[i+1], float32(-1))
		assert.LessOrEqual(t, pixels[i+1], float32(1))
		assert.Zero(t, pixels[i+2])
		assert.Zero(t, pixels[i+3])
	}
}

func TestSSAONoisePixelsVary(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pixels := ssaoNoisePixels(rng)

	first := [2]float32{pixels[0], pixels[1]}
	varied := false
	for i := 4; i < len(pixels); i += 4 {
		if pixels[i] != first[0] || pixels[i+1] != first[1] {
			varied = true
			break
		}
	}
	assert.True(t, varied, "noise tile should not be constant")
}
