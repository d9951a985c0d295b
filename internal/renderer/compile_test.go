package renderer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spirvMagic = 0x07230203

func TestShadersCompile(t *testing.T) {
	for _, src := range Shaders() {
		t.Run(src.Name, func(t *testing.T) {
			words, err := CompileSPIRV(src.WGSL)
			require.NoError(t, err)
			require.NotEmpty(t, words)
			assert.Equal(t, uint32(spirvMagic), words[0])
		})
	}
}

func TestShaderEntryPoints(t *testing.T) {
	for _, src := range Shaders() {
		assert.True(t, strings.Contains(src.WGSL, "fn "+VertexEntry+"("), src.Name)
		assert.True(t, strings.Contains(src.WGSL, "fn "+FragmentEntry+"("), src.Name)
	}
	assert.Contains(t, TextShader, "discard;")
	assert.NotContains(t, MapShader, "discard")
}

func TestCompileSPIRVRejectsInvalid(t *testing.T) {
	_, err := CompileSPIRV("fn broken( {")
	assert.Error(t, err)
}
