package renderer

import (
	"encoding/binary"
	"math"

	"golang.org/x/image/math/f32"

	"tileview/internal/camera"
)

// TexelLoader is an unfiltered integer texture read at mip level 0.
type TexelLoader interface {
	Load(x, y int32) [4]uint32
}

// LayerSampler is a layered texture bound to a sampler.
type LayerSampler interface {
	Sample(uv f32.Vec2, layer int32) f32.Vec4
	Dimensions() (width, height uint32)
}

// MapResources are the read-only inputs of one map draw.
type MapResources struct {
	Camera    camera.Camera
	TileIndex TexelLoader
	Atlas     LayerSampler
}

// Globals carries the text pipeline's frame inputs. They are bound and
// handed to the fragment stage but do not affect its output.
type Globals struct {
	ScreenResolution f32.Vec2
	Time             float32
}

// GlobalsSize is the uniform block size of Globals.
const GlobalsSize = 16

// TextResources are the read-only inputs of one text draw.
type TextResources struct {
	Camera  camera.Camera
	Globals Globals
	Glyphs  LayerSampler
}

// Bytes returns the uniform buffer encoding of g.
func (g Globals) Bytes() []byte {
	buf := make([]byte, GlobalsSize)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(g.ScreenResolution[0]))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(g.ScreenResolution[1]))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(g.Time))
	return buf
}
