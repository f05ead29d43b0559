// Package soundbank loads instrument sample banks as read-only memory
// mappings, serving the synth engine's offset-addressed reads without
// copying the file into the heap.
package soundbank

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrEmpty is returned when the bank file has zero length.
var ErrEmpty = errors.New("soundbank: empty file")

// Bank is a memory-mapped sample bank. Safe for concurrent reads; the
// mapping is read-only.
type Bank struct {
	path string
	data []byte
}

// Load maps the bank at path. When the exact path does not exist, the
// containing directory is searched for a case-insensitive filename
// match before giving up; bank files frequently arrive from systems
// that do not preserve case.
func Load(path string) (*Bank, error) {
	resolved, err := resolve(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("soundbank: open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("soundbank: stat: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, resolved)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("soundbank: mmap: %w", err)
	}

	slog.Info("soundbank: loaded", "path", resolved, "size", info.Size())
	return &Bank{path: resolved, data: data}, nil
}

// resolve returns path if it exists, otherwise the first
// case-insensitive filename match in its directory.
func resolve(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	dir := filepath.Dir(path)
	want := strings.ToLower(filepath.Base(path))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("soundbank: %s not found", path)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.ToLower(e.Name()) == want {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("soundbank: %s not found", path)
}

// ReadAt returns size bytes starting at off, clamped to the bank
// bounds. Reads past the end return a shorter slice; reads entirely
// outside return nil. The slice aliases the mapping and must not be
// modified.
func (b *Bank) ReadAt(off, size int) []byte {
	if off < 0 || size <= 0 || off >= len(b.data) {
		return nil
	}
	end := off + size
	if end > len(b.data) {
		end = len(b.data)
	}
	return b.data[off:end]
}

// Size returns the bank length in bytes.
func (b *Bank) Size() int {
	return len(b.data)
}

// Path returns the resolved file path.
func (b *Bank) Path() string {
	return b.path
}

// Close unmaps the bank. The bank is unusable afterwards.
func (b *Bank) Close() error {
	if b.data == nil {
		return nil
	}
	data := b.data
	b.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("soundbank: munmap: %w", err)
	}
	return nil
}
