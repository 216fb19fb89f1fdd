package pipeline

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dgallion1/notegest/internal/parser"
)

// MaxPageBytes bounds a single page export.
const MaxPageBytes = 32 << 20

// ReadArchive reads a zip of "<Section>/<page>.xml" entries. The section of
// an entry is its parent directory name; entries at the archive root belong
// to defaultSection. Unsupported files are skipped.
func ReadArchive(data []byte, defaultSection string) ([]PageInput, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	var inputs []PageInput
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") || !parser.IsSupportedExtension(f.Name) {
			continue
		}
		if f.UncompressedSize64 > MaxPageBytes {
			return nil, fmt.Errorf("entry %s exceeds %d bytes", f.Name, MaxPageBytes)
		}
		body, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		section := path.Base(path.Dir(f.Name))
		if section == "." || section == "/" {
			section = defaultSection
		}
		inputs = append(inputs, PageInput{Section: section, Name: path.Base(f.Name), Data: body})
	}
	return inputs, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(io.LimitReader(rc, MaxPageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if len(body) > MaxPageBytes {
		return nil, fmt.Errorf("entry %s exceeds %d bytes", f.Name, MaxPageBytes)
	}
	return body, nil
}

// ReadDir reads an export directory laid out as "<root>/<Section>/*.xml".
// Supported files directly under root belong to defaultSection.
func ReadDir(root, defaultSection string) ([]PageInput, error) {
	var inputs []PageInput
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !parser.IsSupportedExtension(p) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > MaxPageBytes {
			return fmt.Errorf("%s exceeds %d bytes", p, MaxPageBytes)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		section := defaultSection
		if dir := filepath.Dir(p); filepath.Clean(dir) != filepath.Clean(root) {
			section = filepath.Base(dir)
		}
		inputs = append(inputs, PageInput{Section: section, Name: filepath.Base(p), Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read export %s: %w", root, err)
	}
	return inputs, nil
}
