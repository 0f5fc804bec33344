// This is a minimal demo harness exercising the RHI device and the
// render dependency graph builder directly, with no engine/game-object
// layer in between.
package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/liyanliang-auto/monster-rhi/rhi"
	"github.com/liyanliang-auto/monster-rhi/rhi/config"
	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
	"github.com/liyanliang-auto/monster-rhi/rhi/platform"
	"github.com/liyanliang-auto/monster-rhi/rhi/rdg"
	"github.com/liyanliang-auto/monster-rhi/rhi/shaderwatch"
	"github.com/liyanliang-auto/monster-rhi/rhi/vulkan"
)

func main() {
	cfg := config.Default()
	cfg.ApplicationName = "monster-rhi-demo"
	cfg.ShaderWatchDir = "assets/shaders"

	window, err := platform.NewWindow(cfg.ApplicationName, int(cfg.WindowWidth), int(cfg.WindowHeight))
	if err != nil {
		corex.LogFatal("failed to create window: %s", err)
	}

	device, err := vulkan.NewDevice(window, cfg)
	if err != nil {
		corex.LogFatal("failed to create device: %s", err)
	}
	window.SetOnResize(func(w, h int) {
		device.Resized(uint32(w), uint32(h))
	})

	// shaderHandles maps a watched .spv's base name to the handle it
	// was loaded as; populated below wherever the demo calls
	// CreateVertexShader/CreatePixelShader with a watched path's initial
	// bytecode, so a later hot-reload event knows which handle to
	// recreate in place.
	var shaderHandlesMu sync.Mutex
	shaderHandles := map[string]rhi.ShaderHandle{}

	loadWatchedShader := func(spvPath string, create func([]byte) (rhi.ShaderHandle, error)) {
		bytecode, err := os.ReadFile(spvPath)
		if err != nil {
			corex.LogWarn("demo shader not compiled, skipping: %s", spvPath)
			return
		}
		h, err := create(bytecode)
		if err != nil {
			corex.LogWarn("failed to load demo shader %s: %s", spvPath, err)
			return
		}
		shaderHandlesMu.Lock()
		shaderHandles[filepath.Base(spvPath)] = h
		shaderHandlesMu.Unlock()
	}
	loadWatchedShader("assets/shaders/demo.vert.spv", device.CreateVertexShader)
	loadWatchedShader("assets/shaders/demo.frag.spv", device.CreatePixelShader)

	if texturePath := "assets/textures/demo.png"; fileExists(texturePath) {
		if _, err := device.LoadTextureFromFile(texturePath); err != nil {
			corex.LogWarn("failed to load demo texture %s: %s", texturePath, err)
		}
	}

	if cfg.ShaderWatchDir != "" {
		watcher, err := shaderwatch.New(cfg.ShaderWatchDir, func(path string, bytecode []byte) {
			name := filepath.Base(path)
			shaderHandlesMu.Lock()
			h, known := shaderHandles[name]
			shaderHandlesMu.Unlock()
			if !known {
				corex.LogDebug("shader hot reload: %s not loaded yet, ignoring", path)
				return
			}
			if err := device.ReloadShader(h, bytecode); err != nil {
				corex.LogWarn("shader hot reload: failed to reload %s: %s", path, err)
				return
			}
			corex.LogInfo("shader hot reload: reloaded %s", path)
		})
		if err != nil {
			corex.LogWarn("shader hot reload disabled: %s", err)
		} else {
			defer watcher.Close()
		}
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	quit := make(chan struct{})
	go func() {
		<-sigCh
		close(quit)
	}()

loop:
	for !window.ShouldClose() {
		select {
		case <-quit:
			break loop
		default:
		}
		window.PollEvents()

		if _, err := device.PrepareFrame(); err != nil {
			corex.LogError("PrepareFrame: %s", err)
			continue
		}

		if err := runFrameGraph(device); err != nil {
			corex.LogError("render graph execute: %s", err)
		}

		if err := device.Present(); err != nil {
			corex.LogError("Present: %s", err)
		}
		device.CollectGarbage()
	}

	if err := device.Shutdown(); err != nil {
		corex.LogError("device shutdown: %s", err)
	}
	window.Destroy()
}

// runFrameGraph builds and executes one frame's render dependency
// graph: an offscreen target is cleared, then read by a pass kept
// alive only by PassFlagNeverCull, since nothing downstream consumes
// it yet. Swapchain presentation itself still goes through the
// device's own PrepareFrame/Present path — the swapchain image isn't
// a resource the graph's resourceRegistry tracks.
func runFrameGraph(device *vulkan.Device) error {
	builder := rdg.NewBuilder(device)

	scratch := builder.CreateTexture("scratch-color", rdg.TextureDesc{
		TextureDesc: rhi.TextureDesc{
			Width: 256, Height: 256, Depth: 1,
			MipLevels:   1,
			ArrayLayers: 1,
			Format:      rhi.FormatR8G8B8A8Unorm,
			SampleCount: 1,
			Usage:       rhi.TextureUsageColorAttachment | rhi.TextureUsageSampled,
			DebugName:   "scratch-color",
		},
	})

	builder.AddPass("clear-scratch", rdg.PassFlagRaster, func(pb *rdg.PassBuilder) {
		pb.WriteTexture(scratch, rhi.AccessRTV)
	}, func(recorder rhi.Recorder) error {
		return recorder.ClearColor(builder.NativeTexture(scratch), 0.02, 0.02, 0.05, 1)
	})

	builder.AddPass("resolve", rdg.PassFlagRaster|rdg.PassFlagNeverCull, func(pb *rdg.PassBuilder) {
		pb.ReadTexture(scratch, rhi.AccessSRVGraphics)
	}, func(recorder rhi.Recorder) error {
		return nil
	})

	return builder.Execute(device.ImmediateRecorder())
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
