//go:build mage

package main

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles every GLSL shader under shaders/ to SPIR-V with glslc.
func (Build) Shaders() error {
	sources, err := filepath.Glob("shaders/*.vert")
	if err != nil {
		return err
	}
	frags, err := filepath.Glob("shaders/*.frag")
	if err != nil {
		return err
	}
	sources = append(sources, frags...)

	if len(sources) == 0 {
		return fmt.Errorf("no shader sources found under shaders/")
	}

	for _, src := range sources {
		out := src + ".spv"
		if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}

// Builds the viewer binary.
func (Build) Viewer() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", binaryName(), "."), withStream())
	return err
}

func binaryName() string {
	name := "pbr-model-viewer"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return name
}
