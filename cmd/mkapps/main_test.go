//go:build !tinygo

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tickos/kernel/loader"
)

func TestPackDirSortsByName(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"02_b.bin": "bbbb",
		"01_a.bin": "aaaaaaaa",
		".hidden":  "x",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	blob, err := packDir(dir)
	if err != nil {
		t.Fatalf("packDir() error = %v", err)
	}
	tab, err := loader.Parse(blob)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if tab.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tab.Len())
	}
	if got := string(tab.Image(0)); got != "aaaaaaaa" {
		t.Fatalf("Image(0) = %q, want aaaaaaaa", got)
	}
	if got := string(tab.Image(1)); got != "bbbb" {
		t.Fatalf("Image(1) = %q, want bbbb", got)
	}
}

func TestPackDirRejects(t *testing.T) {
	if _, err := packDir(t.TempDir()); err == nil {
		t.Fatal("packDir(empty) error = nil")
	}

	dir := t.TempDir()
	big := make([]byte, loader.SlotSize+1)
	if err := os.WriteFile(filepath.Join(dir, "big"), big, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := packDir(dir); !errors.Is(err, loader.ErrImageTooLarge) {
		t.Fatalf("packDir(big) error = %v, want %v", err, loader.ErrImageTooLarge)
	}
}

func TestPackBuiltin(t *testing.T) {
	blob, err := packBuiltin("all")
	if err != nil {
		t.Fatalf("packBuiltin(all) error = %v", err)
	}
	var names bytes.Buffer
	listBuiltins(&names)
	want := len(strings.Fields(names.String()))

	tab, err := loader.Parse(blob)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if tab.Len() != want {
		t.Fatalf("Len() = %d, want %d", tab.Len(), want)
	}

	blob, err = packBuiltin("hello, task_info")
	if err != nil {
		t.Fatalf("packBuiltin(list) error = %v", err)
	}
	if tab, _ = loader.Parse(blob); tab.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tab.Len())
	}

	if _, err := packBuiltin("hello,nope"); err == nil {
		t.Fatal("packBuiltin(unknown) error = nil")
	}
	if _, err := packBuiltin(","); err == nil {
		t.Fatal("packBuiltin(empty) error = nil")
	}
}
