package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"

	"github.com/natefinch/atomic"
)

const fileExt = ".json"

// File is a Backend that keeps one file per key in a directory. Writes are
// atomic (temp file + rename), so a crash never leaves a torn value behind.
type File struct {
	dir      string
	maxBytes int64

	mu sync.Mutex
}

// NewFile returns a File backend rooted at dir, creating it if needed.
// maxBytes ≤ 0 means unlimited.
func NewFile(dir string, maxBytes int64) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", dir, err)
	}
	return &File{dir: dir, maxBytes: maxBytes}, nil
}

// Get implements Backend.
func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Set implements Backend.
func (f *File) Set(_ context.Context, key string, val []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(key)
	if f.maxBytes > 0 {
		used, err := f.usage()
		if err != nil {
			return err
		}
		if fi, err := os.Stat(path); err == nil {
			used -= fi.Size()
		}
		if used+int64(len(val)) > f.maxBytes {
			return ErrQuotaExceeded
		}
	}
	err := atomic.WriteFile(path, bytes.NewReader(val))
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

// Delete implements Backend.
func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Keys implements Backend. Keys are returned sorted.
func (f *File) Keys(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		key, ok := decodeName(e.Name())
		if !ok || e.IsDir() || !strings.HasPrefix(key, prefix) {
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys, nil
}

// Close implements Backend.
func (f *File) Close() error { return nil }

func (f *File) path(key string) string {
	return filepath.Join(f.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+fileExt)
}

// usage sums the size of every value file in the directory.
func (f *File) usage() (int64, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if _, ok := decodeName(e.Name()); !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		total += fi.Size()
	}
	return total, nil
}

// decodeName maps a value file name back to its key. Temp files left by
// in-progress writes do not carry the extension and are skipped.
func decodeName(name string) (string, bool) {
	enc, ok := strings.CutSuffix(name, fileExt)
	if !ok {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", false
	}
	return string(raw), true
}
