package main

import (
	"os"
	"path/filepath"

	"github.com/backkem/cardlock/pkg/doorlock"
)

// fileSignals stands in for the lock's input pins on a host. An input is
// held while a file of its name exists in dir: "wipe", "reset" and "open".
// The open input is momentary, so its file is consumed when seen.
type fileSignals struct {
	dir string
}

func (f fileSignals) path(name string) string {
	return filepath.Join(f.dir, name)
}

func (f fileSignals) held(name string) bool {
	_, err := os.Stat(f.path(name))
	return err == nil
}

func (f fileSignals) WipeHeld() bool  { return f.held("wipe") }
func (f fileSignals) ResetHeld() bool { return f.held("reset") }

func (f fileSignals) OpenRequested() bool {
	return os.Remove(f.path("open")) == nil
}

var _ doorlock.Signals = fileSignals{}
