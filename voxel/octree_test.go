package voxel

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferSize(t *testing.T) {
	assert.Equal(t, 1, BufferSize(1))
	assert.Equal(t, 9, BufferSize(2))
	assert.Equal(t, 73, BufferSize(3))
	assert.Equal(t, 585, BufferSize(4))
}

func TestLevelOffset(t *testing.T) {
	assert.Equal(t, 0, LevelOffset(0))
	assert.Equal(t, 1, LevelOffset(1))
	assert.Equal(t, 9, LevelOffset(2))
}

func TestNewRejectsBadDepth(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
	_, err = New(-2)
	assert.Error(t, err)

	tree, err := New(3)
	require.NoError(t, err)
	assert.Equal(t, 3, tree.Depth())
	assert.Len(t, tree.Buffer(), 73)
}

func TestMortonEncode(t *testing.T) {
	assert.Equal(t, uint32(0), mortonEncode(0, 0, 0))
	assert.Equal(t, uint32(1), mortonEncode(1, 0, 0))
	assert.Equal(t, uint32(2), mortonEncode(0, 1, 0))
	assert.Equal(t, uint32(4), mortonEncode(0, 0, 1))
	assert.Equal(t, uint32(7), mortonEncode(1, 1, 1))

	// The eight children of the cell at (x,y,z) on the coarser level are
	// contiguous: indices 8i..8i+7.
	parent := mortonEncode(2, 1, 3)
	for dz := uint32(0); dz < 2; dz++ {
		for dy := uint32(0); dy < 2; dy++ {
			for dx := uint32(0); dx < 2; dx++ {
				child := mortonEncode(4+dx, 2+dy, 6+dz)
				assert.Equal(t, parent, child>>3)
			}
		}
	}
}

func TestInsertPropagatesToRoot(t *testing.T) {
	tree, err := New(4)
	require.NoError(t, err)

	tree.Insert(mgl32.Vec3{0.9, 0.1, 0.4})

	assert.Equal(t, byte(1), tree.Buffer()[0], "root must be marked")

	// Exactly one voxel per level is set.
	for level := 0; level < 4; level++ {
		start := LevelOffset(level)
		end := LevelOffset(level + 1)
		marked := 0
		for _, v := range tree.Buffer()[start:end] {
			marked += int(v)
		}
		assert.Equal(t, 1, marked, "level %d", level)
	}

	assert.Equal(t, byte(1), tree.Leaf(7, 0, 3))
	assert.Equal(t, byte(0), tree.Leaf(0, 0, 0))
}

func TestInsertClampsOutOfRange(t *testing.T) {
	tree, err := New(3)
	require.NoError(t, err)

	tree.Insert(mgl32.Vec3{-5, 0.5, 2})
	assert.Equal(t, byte(1), tree.Leaf(0, 2, 3))

	tree.Insert(mgl32.Vec3{1, 1, 1})
	assert.Equal(t, byte(1), tree.Leaf(3, 3, 3))
}

func TestEncode(t *testing.T) {
	points := []mgl32.Vec3{
		{0.1, 0.1, 0.1},
		{0.9, 0.9, 0.9},
	}
	tree, err := Encode(points, 3)
	require.NoError(t, err)

	assert.Equal(t, byte(1), tree.Leaf(0, 0, 0))
	assert.Equal(t, byte(1), tree.Leaf(3, 3, 3))
	assert.Equal(t, byte(0), tree.Leaf(2, 0, 1))
}

func TestPropagate(t *testing.T) {
	tree, err := New(3)
	require.NoError(t, err)

	// Mark a single leaf directly, then rebuild the interior levels.
	leafStart := LevelOffset(2)
	tree.Buffer()[leafStart+int(mortonEncode(1, 2, 3))] = 1
	tree.Propagate()

	assert.Equal(t, byte(1), tree.Buffer()[0])

	midStart := LevelOffset(1)
	mid := tree.Buffer()[midStart : midStart+8]
	marked := 0
	for _, v := range mid {
		marked += int(v)
	}
	assert.Equal(t, 1, marked)
	assert.Equal(t, byte(1), mid[mortonEncode(0, 1, 1)])
}
