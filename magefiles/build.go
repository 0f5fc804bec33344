//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// shaderSources lists the GLSL stage sources compiled to SPIR-V by
// Build.Shaders, keyed by the glslc -fshader-stage value. Unlike the
// teacher's hardcoded Builtin.* shader list, this one is just the demo
// program's own sources under assets/shaders — add an entry here for
// any new .glsl file that needs compiling.
var shaderSources = map[string]string{
	"vert": "assets/shaders/demo.vert.glsl",
	"frag": "assets/shaders/demo.frag.glsl",
}

func buildShaders() error {
	fmt.Println("Build shaders...")
	vkSDKPath := os.Getenv("VULKAN_SDK")
	glslc := fmt.Sprintf("%s/bin/glslc", vkSDKPath)

	for stage, src := range shaderSources {
		out := strings.TrimSuffix(src, filepath.Ext(src)) + ".spv"
		if _, err := executeCmd(glslc, withArgs(fmt.Sprintf("-fshader-stage=%s", stage), src, "-o", out), withStream()); err != nil {
			return fmt.Errorf("compile %s: %w", src, err)
		}
	}
	return nil
}

// Compiles every shaderSources entry to SPIR-V with glslc.
func (Build) Shaders() error {
	return buildShaders()
}
