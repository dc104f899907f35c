package ibl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefilterRoughnessProgression(t *testing.T) {
	want := []float32{0, 0.25, 0.5, 0.75, 1}
	for mip := 0; mip < PrefilterMipLevels; mip++ {
		roughness := float32(mip) / float32(PrefilterMipLevels-1)
		assert.InDelta(t, want[mip], roughness, 1e-6)
	}
}

func TestPrefilterMipExtents(t *testing.T) {
	// Every authored roughness level must keep a nonzero extent.
	for mip := 0; mip < PrefilterMipLevels; mip++ {
		extent := uint32(PrefilterSize) >> uint(mip)
		assert.Greater(t, extent, uint32(0), "mip %d", mip)
	}
}
