// Package configloader loads YAML configuration from a directory or an
// embedded filesystem.
package configloader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader is a unified configuration loader for YAML files.
type Loader struct {
	baseDir string
	fsys    fs.FS
	strict  bool
	cache   sync.Map
}

// NewLoader creates a loader reading from baseDir on the OS filesystem.
func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: baseDir}
}

// NewFSLoader creates a loader reading from fsys, typically an embed.FS.
func NewFSLoader(fsys fs.FS) *Loader {
	return &Loader{fsys: fsys}
}

// Strict makes Load reject keys that do not map to a field of the target.
func (l *Loader) Strict() *Loader {
	l.strict = true
	return l
}

// Load loads a single YAML file and unmarshals it into target.
func (l *Loader) Load(subPath string, target any) error {
	data, err := l.ReadFile(subPath)
	if err != nil {
		return fmt.Errorf("read file %s: %w", subPath, err)
	}
	if err := l.decode(data, target); err != nil {
		return fmt.Errorf("unmarshal YAML %s: %w", subPath, err)
	}
	return nil
}

func (l *Loader) decode(data []byte, target any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(l.strict)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadCached loads a configuration with caching.
// If the file is already cached, returns the cached value.
// Otherwise, calls factory to create the target and caches it.
func (l *Loader) LoadCached(subPath string, factory func() any) (any, error) {
	if cached, ok := l.cache.Load(subPath); ok {
		return cached, nil
	}

	target := factory()
	if err := l.Load(subPath, target); err != nil {
		return nil, err
	}

	actual, _ := l.cache.LoadOrStore(subPath, target)
	return actual, nil
}

// LoadDir loads all YAML files from a directory.
// The factory function is called for each file to create the target struct.
func (l *Loader) LoadDir(subDir string, factory func(path string) (any, error)) (map[string]any, error) {
	entries, err := l.readDir(subDir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", subDir, err)
	}

	result := make(map[string]any)
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		filePath := l.join(subDir, entry.Name())
		target, err := factory(filePath)
		if err != nil {
			return nil, fmt.Errorf("create target for %s: %w", filePath, err)
		}
		if err := l.Load(filePath, target); err != nil {
			return nil, fmt.Errorf("load %s: %w", filePath, err)
		}
		result[filePath] = target
	}
	return result, nil
}

// ReadFile reads a file from the loader's filesystem. For OS loaders a path
// that is missing under baseDir is retried next to the executable.
func (l *Loader) ReadFile(p string) ([]byte, error) {
	if l.fsys != nil {
		return fs.ReadFile(l.fsys, p)
	}

	data, err := os.ReadFile(filepath.Join(l.baseDir, p))
	if err == nil || filepath.IsAbs(p) {
		return data, err
	}

	execPath, execErr := os.Executable()
	if execErr != nil {
		return nil, err
	}
	fallback, fallbackErr := os.ReadFile(filepath.Join(filepath.Dir(execPath), l.baseDir, p))
	if fallbackErr != nil {
		return nil, err
	}
	return fallback, nil
}

func (l *Loader) readDir(dir string) ([]fs.DirEntry, error) {
	if l.fsys != nil {
		return fs.ReadDir(l.fsys, dir)
	}
	return os.ReadDir(filepath.Join(l.baseDir, dir))
}

func (l *Loader) join(elem ...string) string {
	if l.fsys != nil {
		return path.Join(elem...)
	}
	return filepath.Join(elem...)
}

// ClearCache clears the configuration cache.
func (l *Loader) ClearCache() {
	l.cache.Range(func(key, _ any) bool {
		l.cache.Delete(key)
		return true
	})
}
