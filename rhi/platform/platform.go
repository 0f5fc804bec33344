// Package platform wraps the GLFW windowing layer, an out-of-scope
// external collaborator per the core's purpose statement — the RHI
// only ever reaches through this package's narrow surface (required
// instance extensions, surface creation, resize callback).
package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
)

func init() {
	// GLFW must run its event loop on the main OS thread.
	runtime.LockOSThread()
}

// ResizeFunc is invoked whenever GLFW reports a framebuffer size
// change; the Device wires this to its own Resized handler.
type ResizeFunc func(width, height int)

type Window struct {
	handle   *glfw.Window
	onResize ResizeFunc
}

func NewWindow(applicationName string, width, height int) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, err
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.Visible, glfw.False)

	handle, err := glfw.CreateWindow(width, height, applicationName, nil, nil)
	if err != nil {
		return nil, err
	}

	w := &Window{handle: handle}
	handle.SetFramebufferSizeCallback(func(_ *glfw.Window, fbw, fbh int) {
		if w.onResize != nil {
			w.onResize(fbw, fbh)
		}
	})
	handle.Show()
	return w, nil
}

func (w *Window) SetOnResize(f ResizeFunc) { w.onResize = f }

func (w *Window) ShouldClose() bool { return w.handle.ShouldClose() }

func (w *Window) PollEvents() { glfw.PollEvents() }

func (w *Window) FramebufferSize() (int, int) { return w.handle.GetFramebufferSize() }

func (w *Window) Destroy() {
	w.handle.Destroy()
	glfw.Terminate()
}

// RequiredInstanceExtensions returns the VK_KHR_surface family of
// extensions GLFW needs for this platform. The teacher repo called a
// method of this name that was never defined anywhere in its tree;
// this is the fix, backed directly by glfw.GetRequiredInstanceExtensions.
func (w *Window) RequiredInstanceExtensions() []string {
	exts := glfw.GetRequiredInstanceExtensions()
	out := make([]string, len(exts))
	copy(out, exts)
	return out
}

// CreateWindowSurface creates a VkSurfaceKHR for this window using the
// given VkInstance, returning the raw surface handle as a uintptr
// (mirrors the teacher's glfw CreateWindowSurface usage in backend.go).
func (w *Window) CreateWindowSurface(instance uintptr) (uintptr, error) {
	surface, err := w.handle.CreateWindowSurface(instance, nil)
	if err != nil {
		corex.LogError("failed to create window surface: %s", err)
		return 0, err
	}
	return surface, nil
}
