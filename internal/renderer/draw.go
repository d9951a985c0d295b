package renderer

import (
	"golang.org/x/image/math/f32"

	"tileview/internal/logging"
	"tileview/internal/raster"
)

// MapState is the fixed-function state of the map pipeline.
func MapState(depth bool) raster.State {
	return raster.State{Blend: raster.BlendAlpha, DepthTest: depth, DepthWrite: depth}
}

// TextState is the fixed-function state of the text pipeline.
func TextState(depth bool) raster.State {
	return raster.State{Blend: raster.BlendAlpha, DepthTest: depth, DepthWrite: depth}
}

// DrawMap runs the map pipeline over an indexed triangle list.
func DrawMap(t *raster.Target, res *MapResources, st raster.State, vertices []MapVertex, indices []uint32) (raster.Stats, error) {
	prog := raster.Program[MapVertex, MapVarying]{
		Vertex: func(v MapVertex) (f32.Vec4, MapVarying) {
			out := MapVertexStage(res, v)
			return out.Clip, out
		},
		Fragment: func(in MapVarying) (f32.Vec4, bool) {
			return MapFragmentStage(res, in).Color()
		},
	}
	stats, err := raster.Draw(t, st, vertices, indices, prog)
	if err == nil {
		logDraw("map", stats)
	}
	return stats, err
}

// DrawText runs the text pipeline over an indexed triangle list.
func DrawText(t *raster.Target, res *TextResources, st raster.State, vertices []TextVertex, indices []uint32) (raster.Stats, error) {
	prog := raster.Program[TextVertex, TextVarying]{
		Vertex: func(v TextVertex) (f32.Vec4, TextVarying) {
			out := TextVertexStage(res, v)
			return out.Clip, out
		},
		Fragment: func(in TextVarying) (f32.Vec4, bool) {
			return TextFragmentStage(res, in).Color()
		},
	}
	stats, err := raster.Draw(t, st, vertices, indices, prog)
	if err == nil {
		logDraw("text", stats)
	}
	return stats, err
}

func logDraw(pipeline string, s raster.Stats) {
	logging.Logger().Debug("draw",
		"pipeline", pipeline,
		"triangles", s.Triangles,
		"culled", s.Culled,
		"shaded", s.Shaded,
		"written", s.Written,
		"discarded", s.Discarded,
		"depth_rejected", s.DepthRejected,
	)
}
