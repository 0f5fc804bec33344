package shaderwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	spvPath := filepath.Join(dir, "triangle.frag.spv")
	if err := os.WriteFile(spvPath, []byte{0, 1, 2, 3}, 0o644); err != nil {
		t.Fatalf("seed file: %s", err)
	}

	reloaded := make(chan []byte, 1)
	w, err := New(dir, func(path string, bytecode []byte) {
		if path == spvPath {
			reloaded <- bytecode
		}
	})
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	defer w.Close()

	want := []byte{9, 9, 9, 9}
	if err := os.WriteFile(spvPath, want, 0o644); err != nil {
		t.Fatalf("rewrite file: %s", err)
	}

	select {
	case got := <-reloaded:
		if len(got) != len(want) {
			t.Fatalf("got %v bytes, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload callback")
	}
}

func TestWatcherIgnoresNonSPIRVFiles(t *testing.T) {
	dir := t.TempDir()
	txtPath := filepath.Join(dir, "notes.txt")

	reloaded := make(chan struct{}, 1)
	w, err := New(dir, func(path string, bytecode []byte) {
		reloaded <- struct{}{}
	})
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	defer w.Close()

	if err := os.WriteFile(txtPath, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write file: %s", err)
	}

	select {
	case <-reloaded:
		t.Fatal("watcher should not fire for a non-.spv file")
	case <-time.After(300 * time.Millisecond):
	}
}
