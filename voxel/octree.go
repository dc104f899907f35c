// Package voxel provides a flat Morton-order density octree. The tree is a
// single buffer holding every level contiguously: level 0 is the root voxel,
// level L holds 8^L voxels, and the children of the voxel at linear index i
// within level L sit at indices 8i..8i+7 within level L+1.
package voxel

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Octree is a density tree over the unit cube [0,1)^3. A voxel is 1 when any
// point falls inside it; every interior voxel is the OR of its children.
type Octree struct {
	depth  int
	voxels []byte
}

// BufferSize returns the total voxel count of a tree with the given number
// of levels.
func BufferSize(depth int) int {
	size := 0
	for level := 0; level < depth; level++ {
		size += 1 << (3 * level)
	}
	return size
}

// LevelOffset returns the index of the first voxel of a level in the flat
// buffer.
func LevelOffset(level int) int {
	return BufferSize(level)
}

// New allocates an empty tree with the given number of levels.
func New(depth int) (*Octree, error) {
	if depth < 1 {
		return nil, fmt.Errorf("octree depth must be at least 1, got %d", depth)
	}
	return &Octree{
		depth:  depth,
		voxels: make([]byte, BufferSize(depth)),
	}, nil
}

func (o *Octree) Depth() int { return o.depth }

// Buffer exposes the flat voxel storage, levels concatenated root-first.
func (o *Octree) Buffer() []byte { return o.voxels }

// Leaf reads the finest-level voxel at integer coordinates. Coordinates run
// 0..2^(depth-1)-1 per axis.
func (o *Octree) Leaf(x, y, z uint32) byte {
	level := o.depth - 1
	return o.voxels[LevelOffset(level)+int(mortonEncode(x, y, z))]
}

// mortonEncode interleaves the low 10 bits of each coordinate into a Z-order
// index, x in the lowest bit position.
func mortonEncode(x, y, z uint32) uint32 {
	return spreadBits(x) | spreadBits(y)<<1 | spreadBits(z)<<2
}

func spreadBits(v uint32) uint32 {
	v &= 0x3ff
	v = (v | v<<16) & 0x030000ff
	v = (v | v<<8) & 0x0300f00f
	v = (v | v<<4) & 0x030c30c3
	v = (v | v<<2) & 0x09249249
	return v
}

// Insert marks the leaf containing the point and propagates the density up
// to the root. Points outside the unit cube are clamped onto its boundary
// voxels.
func (o *Octree) Insert(point mgl32.Vec3) {
	leafLevel := o.depth - 1
	extent := uint32(1) << uint(leafLevel)

	x := clampCoord(point.X(), extent)
	y := clampCoord(point.Y(), extent)
	z := clampCoord(point.Z(), extent)

	index := mortonEncode(x, y, z)
	for level := leafLevel; level >= 0; level-- {
		o.voxels[LevelOffset(level)+int(index)] = 1
		index >>= 3
	}
}

func clampCoord(v float32, extent uint32) uint32 {
	scaled := int64(v * float32(extent))
	if scaled < 0 {
		return 0
	}
	if scaled >= int64(extent) {
		return extent - 1
	}
	return uint32(scaled)
}

// Encode builds a tree of the given depth from a point set.
func Encode(points []mgl32.Vec3, depth int) (*Octree, error) {
	tree, err := New(depth)
	if err != nil {
		return nil, err
	}
	for _, point := range points {
		tree.Insert(point)
	}
	return tree, nil
}

// Propagate recomputes every interior level bottom-up so each voxel is the
// OR of its children. Useful after mutating the leaf level directly.
func (o *Octree) Propagate() {
	for level := o.depth - 2; level >= 0; level-- {
		offset := LevelOffset(level)
		childOffset := LevelOffset(level + 1)
		count := 1 << (3 * level)
		for i := 0; i < count; i++ {
			var acc byte
			for c := 0; c < 8; c++ {
				acc |= o.voxels[childOffset+8*i+c]
			}
			o.voxels[offset+i] = acc
		}
	}
}
