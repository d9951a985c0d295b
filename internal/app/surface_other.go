//go:build !darwin && (!linux || wayland)

package app

import (
	"errors"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/rajveermalviya/go-webgpu/wgpu"
)

var instanceBackends = wgpu.InstanceBackend_Vulkan

// CreateSurface is implemented for the macOS Metal layer and X11.
func CreateSurface(instance *wgpu.Instance, window *glfw.Window) (*wgpu.Surface, error) {
	return nil, errors.New("window surfaces are only supported on macOS and X11")
}
