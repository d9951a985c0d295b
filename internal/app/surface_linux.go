//go:build linux && !wayland

package app

import (
	"errors"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/rajveermalviya/go-webgpu/wgpu"

	"tileview/internal/logging"
)

var instanceBackends = wgpu.InstanceBackend_Vulkan

// CreateSurface creates a WebGPU surface for the window's X11 handle.
func CreateSurface(instance *wgpu.Instance, window *glfw.Window) (*wgpu.Surface, error) {
	display := glfw.GetX11Display()
	if display == nil {
		return nil, errors.New("GetX11Display returned nil")
	}
	xw := window.GetX11Window()
	logging.Logger().Debug("x11 window resolved", "window", uint32(xw))

	surface := instance.CreateSurface(&wgpu.SurfaceDescriptor{
		Label: "MainSurface",
		XlibWindow: &wgpu.SurfaceDescriptorFromXlibWindow{
			Display: unsafe.Pointer(display),
			Window:  uint32(xw),
		},
	})
	if surface == nil {
		return nil, errors.New("CreateSurface returned nil")
	}
	return surface, nil
}
