//go:build !tinygo

// Command mkapps packs application images into the app table blob the
// kernel boots from.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tickos/kernel/loader"
	"tickos/user"
)

const defaultOutPath = "apps.bin"

func main() {
	var srcDir, builtin, outPath string
	var list bool
	flag.StringVar(&srcDir, "src", "", "Directory of flat binary images, packed in name order.")
	flag.StringVar(&builtin, "builtin", "", "Comma-separated built-in programs, or \"all\" for the batch.")
	flag.StringVar(&outPath, "out", defaultOutPath, "Output blob path.")
	flag.BoolVar(&list, "list", false, "List built-in programs and exit.")
	flag.Parse()

	if list {
		listBuiltins(os.Stdout)
		return
	}
	if (srcDir == "") == (builtin == "") {
		fmt.Fprintln(os.Stderr, "error: exactly one of -src and -builtin is required")
		os.Exit(2)
	}
	if outPath == "" {
		fmt.Fprintln(os.Stderr, "error: -out is required")
		os.Exit(2)
	}

	var blob []byte
	var err error
	if srcDir != "" {
		blob, err = packDir(srcDir)
	} else {
		blob, err = packBuiltin(builtin)
	}
	if err == nil {
		err = os.WriteFile(outPath, blob, 0o644)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func listBuiltins(w io.Writer) {
	for _, p := range user.Batch() {
		fmt.Fprintln(w, p.Name)
	}
}

func packDir(dir string) ([]byte, error) {
	dir = filepath.Clean(dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read src %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("src %q has no images", dir)
	}
	sort.Strings(names)

	imgs := make([][]byte, 0, len(names))
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if uint64(len(b)) > loader.SlotSize {
			return nil, fmt.Errorf("%s: %w", name, loader.ErrImageTooLarge)
		}
		imgs = append(imgs, b)
	}
	return loader.Pack(imgs)
}

func packBuiltin(names string) ([]byte, error) {
	if names == "all" {
		return user.Pack(user.Batch()...)
	}
	var progs []user.Program
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p, ok := user.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown built-in %q", name)
		}
		progs = append(progs, p)
	}
	if len(progs) == 0 {
		return nil, errors.New("no built-in programs named")
	}
	return user.Pack(progs...)
}
