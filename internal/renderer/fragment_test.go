package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/image/math/f32"
)

func TestFragment(t *testing.T) {
	c, ok := Emit(f32.Vec4{1, 2, 3, 4}).Color()
	assert.True(t, ok)
	assert.Equal(t, f32.Vec4{1, 2, 3, 4}, c)

	assert.True(t, Discard().Discarded())
	assert.True(t, Fragment{}.Discarded())
	assert.False(t, Emit(f32.Vec4{}).Discarded())
}
