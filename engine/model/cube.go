package model

import "github.com/go-gl/mathgl/mgl32"

// CubeVertices is the unit cube as 36 counter-clockwise triangle-list
// vertices, used for the skybox and the environment capture draws.
var CubeVertices = []SkyboxVertex{
	// -Z
	{Position: mgl32.Vec3{-1, -1, -1}},
	{Position: mgl32.Vec3{1, 1, -1}},
	{Position: mgl32.Vec3{1, -1, -1}},
	{Position: mgl32.Vec3{1, 1, -1}},
	{Position: mgl32.Vec3{-1, -1, -1}},
	{Position: mgl32.Vec3{-1, 1, -1}},
	// +Z
	{Position: mgl32.Vec3{-1, -1, 1}},
	{Position: mgl32.Vec3{1, -1, 1}},
	{Position: mgl32.Vec3{1, 1, 1}},
	{Position: mgl32.Vec3{1, 1, 1}},
	{Position: mgl32.Vec3{-1, 1, 1}},
	{Position: mgl32.Vec3{-1, -1, 1}},
	// -X
	{Position: mgl32.Vec3{-1, 1, 1}},
	{Position: mgl32.Vec3{-1, 1, -1}},
	{Position: mgl32.Vec3{-1, -1, -1}},
	{Position: mgl32.Vec3{-1, -1, -1}},
	{Position: mgl32.Vec3{-1, -1, 1}},
	{Position: mgl32.Vec3{-1, 1, 1}},
	// +X
	{Position: mgl32.Vec3{1, 1, 1}},
	{Position: mgl32.Vec3{1, -1, -1}},
	{Position: mgl32.Vec3{1, 1, -1}},
	{Position: mgl32.Vec3{1, -1, -1}},
	{Position: mgl32.Vec3{1, 1, 1}},
	{Position: mgl32.Vec3{1, -1, 1}},
	// -Y
	{Position: mgl32.Vec3{-1, -1, -1}},
	{Position: mgl32.Vec3{1, -1, -1}},
	{Position: mgl32.Vec3{1, -1, 1}},
	{Position: mgl32.Vec3{1, -1, 1}},
	{Position: mgl32.Vec3{-1, -1, 1}},
	{Position: mgl32.Vec3{-1, -1, -1}},
	// +Y
	{Position: mgl32.Vec3{-1, 1, -1}},
	{Position: mgl32.Vec3{1, 1, 1}},
	{Position: mgl32.Vec3{1, 1, -1}},
	{Position: mgl32.Vec3{1, 1, 1}},
	{Position: mgl32.Vec3{-1, 1, -1}},
	{Position: mgl32.Vec3{-1, 1, 1}},
}

// QuadVertices covers the full screen as two triangles in NDC, positions
// only. Screen-space passes generate UVs in the shader.
var QuadVertices = []SkyboxVertex{
	{Position: mgl32.Vec3{-1, -1, 0}},
	{Position: mgl32.Vec3{1, -1, 0}},
	{Position: mgl32.Vec3{1, 1, 0}},
	{Position: mgl32.Vec3{1, 1, 0}},
	{Position: mgl32.Vec3{-1, 1, 0}},
	{Position: mgl32.Vec3{-1, -1, 0}},
}
