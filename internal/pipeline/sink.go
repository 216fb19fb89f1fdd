package pipeline

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrUnsafePath is returned for output paths that would leave the output
// root.
var ErrUnsafePath = errors.New("unsafe output path")

// Sink receives rendered files. Paths are slash-separated and relative.
type Sink interface {
	Write(path string, data []byte) error
}

func cleanRelative(p string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(p))
	if p == "" || filepath.IsAbs(clean) || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, p)
	}
	return clean, nil
}

// DirSink writes files below Root, creating directories as needed.
type DirSink struct {
	Root string
}

func (s DirSink) Write(p string, data []byte) error {
	rel, err := cleanRelative(p)
	if err != nil {
		return err
	}
	full := filepath.Join(s.Root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return os.WriteFile(full, data, 0o644)
}

// MemSink keeps files in memory. It is safe for concurrent use.
type MemSink struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewMemSink() *MemSink {
	return &MemSink{files: make(map[string][]byte)}
}

func (s *MemSink) Write(p string, data []byte) error {
	rel, err := cleanRelative(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[filepath.ToSlash(rel)] = append([]byte(nil), data...)
	return nil
}

// Get returns the content written at p.
func (s *MemSink) Get(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[p]
	return data, ok
}

// Paths returns every written path in sorted order.
func (s *MemSink) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// WriteZip writes every file into a zip archive on w.
func (s *MemSink) WriteZip(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, p := range s.Paths() {
		data, _ := s.Get(p)
		fw, err := zw.Create(p)
		if err != nil {
			return fmt.Errorf("zip create %s: %w", p, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("zip write %s: %w", p, err)
		}
	}
	return zw.Close()
}
