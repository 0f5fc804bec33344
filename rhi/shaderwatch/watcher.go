// Package shaderwatch hot-reloads compiled SPIR-V modules off disk
// whenever a config.DeviceConfig.ShaderWatchDir is set (spec §6
// "Persisted state"). Grounded on the teacher's engine/assets asset
// manager, narrowed down from its general-purpose asset index to just
// the .spv reload path the RHI cares about.
package shaderwatch

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
)

// ReloadFunc is invoked with a shader's path and freshly-read bytecode
// whenever the watched directory reports a write to a .spv file.
type ReloadFunc func(path string, bytecode []byte)

// Watcher recursively watches a directory for .spv writes and invokes
// a reload callback on each one. It owns no Vulkan state itself — the
// caller's ReloadFunc is responsible for recreating whatever shader
// module and pipelines depend on the changed bytecode.
type Watcher struct {
	fsw    *fsnotify.Watcher
	onLoad ReloadFunc
	done   chan struct{}
}

// New starts watching dir (and its subdirectories) for .spv writes.
// The returned Watcher's Close stops the background goroutine.
func New(dir string, onLoad ReloadFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fsw: fsw, onLoad: onLoad, done: make(chan struct{})}
	if err := w.addRecursive(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	go w.run()
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	entries, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return err
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	for _, e := range entries {
		if isDir(e) {
			if err := w.addRecursive(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case e, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Ext(e.Name) != ".spv" {
				continue
			}
			bytecode, err := readSPIRV(e.Name)
			if err != nil {
				corex.LogWarn("shader hot reload: failed to read %s: %s", e.Name, err)
				continue
			}
			w.onLoad(e.Name, bytecode)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			corex.LogError("shader watcher error: %s", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher's background goroutine and releases its
// underlying OS watch handles.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func readSPIRV(path string) ([]byte, error) {
	return os.ReadFile(path)
}
