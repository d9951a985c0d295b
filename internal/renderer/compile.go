package renderer

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

// ShaderSource names a WGSL module.
type ShaderSource struct {
	Name string
	WGSL string
}

// Shaders lists the WGSL modules of both pipelines.
func Shaders() []ShaderSource {
	return []ShaderSource{
		{Name: "map", WGSL: MapShader},
		{Name: "text", WGSL: TextShader},
	}
}

// CompileSPIRV compiles WGSL source to SPIR-V words.
func CompileSPIRV(wgsl string) ([]uint32, error) {
	spirv, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("compile shader: SPIR-V length %d is not word aligned", len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	return words, nil
}
