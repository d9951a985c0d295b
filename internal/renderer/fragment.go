package renderer

import "golang.org/x/image/math/f32"

// Fragment is the result of a fragment stage: either a color to emit or
// a discard. The zero value is a discard.
type Fragment struct {
	color f32.Vec4
	emit  bool
}

// Emit returns a fragment that writes c.
func Emit(c f32.Vec4) Fragment {
	return Fragment{color: c, emit: true}
}

// Discard returns a fragment that writes nothing, neither color nor depth.
func Discard() Fragment {
	return Fragment{}
}

// Color returns the emitted color and whether the fragment was emitted.
func (f Fragment) Color() (f32.Vec4, bool) {
	return f.color, f.emit
}

// Discarded reports whether the fragment writes nothing.
func (f Fragment) Discarded() bool {
	return !f.emit
}
