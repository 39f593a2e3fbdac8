// Package state owns the on-disk layout under the data directory.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Paths struct {
	DB        string
	Store     string
	State     string
	Retention string
	Tel       string
	Logs      string
	Tmp       string
}

func PathsFor(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		DB:    dbPath,
		Store: filepath.Join(dbPath, "store"),

		State:     statePath,
		Retention: filepath.Join(statePath, "retention"),
		Tel:       filepath.Join(statePath, "telemetry"),
		Logs:      filepath.Join(statePath, "logs"),
		Tmp:       filepath.Join(statePath, "tmp"),
	}
}

// EnsureStateDirs creates the layout under dbPath. Every directory must be a
// real directory (not a symlink) and writable.
func EnsureStateDirs(dbPath string) error {
	p := PathsFor(dbPath)
	for _, dir := range []string{p.Store, p.Retention, p.Tel, p.Logs, p.Tmp} {
		if err := ensureDir(dir); err != nil {
			return err
		}
	}
	return nil
}

func ensureDir(p string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("cannot create parent for %s: %w", p, err)
	}
	if fi, err := os.Lstat(p); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("path is a symlink: %s", p)
		}
		if !fi.IsDir() {
			return fmt.Errorf("path exists and is not a directory: %s", p)
		}
	}
	if err := os.MkdirAll(p, 0o700); err != nil {
		return fmt.Errorf("cannot create path %s: %w", p, err)
	}

	tmp, err := os.CreateTemp(p, ".validate-*")
	if err != nil {
		return fmt.Errorf("path not writable: %s: %w", p, err)
	}
	tmp.Close()
	_ = os.Remove(tmp.Name())
	return nil
}

var (
	PathsVar Paths
	initOnce sync.Once
	initErr  error
)

// Init resolves the layout once per process and ensures it exists.
func Init(dbPath string) error {
	initOnce.Do(func() {
		path := strings.TrimSpace(dbPath)
		if path == "" {
			path = "./.chatstream"
		}
		path = filepath.Clean(path)
		PathsVar = PathsFor(path)
		initErr = EnsureStateDirs(path)
	})
	return initErr
}
