package vulkan

import (
	"math"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwizzleApplyBytes(t *testing.T) {
	t.Run("identity leaves pixels untouched", func(t *testing.T) {
		pixels := []byte{10, 20, 30, 40, 50, 60, 70, 80}
		SwizzleIdentity.ApplyBytes(pixels)
		assert.Equal(t, []byte{10, 20, 30, 40, 50, 60, 70, 80}, pixels)
	})

	t.Run("channel permutation", func(t *testing.T) {
		pixels := []byte{10, 20, 30, 40}
		Swizzle{SwizzleB, SwizzleG, SwizzleR, SwizzleA}.ApplyBytes(pixels)
		assert.Equal(t, []byte{30, 20, 10, 40}, pixels)
	})

	t.Run("fillers", func(t *testing.T) {
		pixels := []byte{10, 20, 30, 40}
		Swizzle{SwizzleZero, SwizzleOne, SwizzleMax, SwizzleA}.ApplyBytes(pixels)
		assert.Equal(t, []byte{0, 255, 255, 40}, pixels)
	})

	t.Run("inverse permutation round-trips", func(t *testing.T) {
		original := []byte{10, 20, 30, 40, 50, 60, 70, 80}
		pixels := append([]byte(nil), original...)

		forward := Swizzle{SwizzleG, SwizzleB, SwizzleA, SwizzleR}
		inverse := Swizzle{SwizzleA, SwizzleR, SwizzleG, SwizzleB}
		forward.ApplyBytes(pixels)
		inverse.ApplyBytes(pixels)
		assert.Equal(t, original, pixels)
	})

	t.Run("multiple pixels", func(t *testing.T) {
		pixels := []byte{1, 2, 3, 4, 5, 6, 7, 8}
		Swizzle{SwizzleG, SwizzleR, SwizzleB, SwizzleA}.ApplyBytes(pixels)
		assert.Equal(t, []byte{2, 1, 3, 4, 6, 5, 7, 8}, pixels)
	})
}

func TestSwizzleApplyFloats(t *testing.T) {
	pixels := []float32{0.1, 0.2, 0.3, 0.4}
	Swizzle{SwizzleA, SwizzleZero, SwizzleOne, SwizzleR}.ApplyFloats(pixels)
	assert.Equal(t, []float32{0.4, 0, 1, 0.1}, pixels)

	pixels = []float32{0.5, 0.5, 0.5, 0.5}
	Swizzle{SwizzleMax, SwizzleG, SwizzleB, SwizzleA}.ApplyFloats(pixels)
	assert.Equal(t, float32(math.MaxFloat32), pixels[0])
}

func TestTextureBuilderValidate(t *testing.T) {
	t.Run("no source", func(t *testing.T) {
		err := NewTextureBuilder().validate()
		assert.Error(t, err)
	})

	t.Run("both source and uninitialized", func(t *testing.T) {
		err := NewTextureBuilder().
			FromPaths("a.png").
			Uninitialized(4, 4).
			validate()
		assert.Error(t, err)
	})

	t.Run("single path", func(t *testing.T) {
		err := NewTextureBuilder().FromPaths("a.png").validate()
		assert.NoError(t, err)
	})

	t.Run("uninitialized extent", func(t *testing.T) {
		err := NewTextureBuilder().Uninitialized(512, 512).validate()
		assert.NoError(t, err)
	})

	t.Run("cubemap path count", func(t *testing.T) {
		err := NewTextureBuilder().AsCubemap().FromPaths("a", "b", "c").validate()
		assert.Error(t, err)

		err = NewTextureBuilder().AsCubemap().
			FromPaths("px", "nx", "py", "ny", "pz", "nz").
			validate()
		assert.NoError(t, err)
	})

	t.Run("cubemap excludes separate channels", func(t *testing.T) {
		err := NewTextureBuilder().AsCubemap().AsSeparateChannels().
			FromPaths("a", "b", "c", "d", "e", "f").
			validate()
		assert.Error(t, err)
	})

	t.Run("separate channels path count", func(t *testing.T) {
		err := NewTextureBuilder().AsSeparateChannels().
			WithFormat(vk.FormatR8g8b8a8Unorm).
			FromPaths("ao.png", "rough.png").
			validate()
		assert.Error(t, err)
	})

	t.Run("separate channels format", func(t *testing.T) {
		err := NewTextureBuilder().AsSeparateChannels().
			WithFormat(vk.FormatR32g32b32a32Sfloat).
			FromPaths("ao.png", "rough.png", "metal.png").
			validate()
		assert.Error(t, err)
	})

	t.Run("empty channel needs filler swizzle", func(t *testing.T) {
		b := NewTextureBuilder().AsSeparateChannels().
			WithFormat(vk.FormatR8g8b8a8Unorm).
			FromPaths("", "rough.png", "metal.png")
		require.Error(t, b.validate())

		b = NewTextureBuilder().AsSeparateChannels().
			WithFormat(vk.FormatR8g8b8a8Unorm).
			FromPaths("", "rough.png", "metal.png").
			WithSwizzle(Swizzle{SwizzleOne, SwizzleG, SwizzleB, SwizzleA})
		assert.NoError(t, b.validate())
	})
}

func TestTextureBuilderBytesPerPixel(t *testing.T) {
	assert.Equal(t, uint32(4), NewTextureBuilder().bytesPerPixel())
	assert.Equal(t, uint32(16), NewTextureBuilder().AsHDR().bytesPerPixel())
}
