package pipeline

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirSink_WritesNestedFiles(t *testing.T) {
	root := t.TempDir()
	s := DirSink{Root: root}
	require.NoError(t, s.Write("daily/2024-03-15.md", []byte("hi")))

	got, err := os.ReadFile(filepath.Join(root, "daily", "2024-03-15.md"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))
}

func TestSinks_RejectEscapingPaths(t *testing.T) {
	for _, p := range []string{"", "../x.md", "a/../../x.md", "/etc/passwd"} {
		err := DirSink{Root: t.TempDir()}.Write(p, nil)
		assert.True(t, errors.Is(err, ErrUnsafePath), "DirSink %q: %v", p, err)

		err = NewMemSink().Write(p, nil)
		assert.True(t, errors.Is(err, ErrUnsafePath), "MemSink %q: %v", p, err)
	}
}

func TestMemSink_ZipRoundTrip(t *testing.T) {
	s := NewMemSink()
	require.NoError(t, s.Write("pages/B.md", []byte("b")))
	require.NoError(t, s.Write("pages/A.md", []byte("a")))
	require.NoError(t, s.Write("./logseq/config.edn", []byte("{}")))

	assert.Equal(t, []string{"logseq/config.edn", "pages/A.md", "pages/B.md"}, s.Paths())

	var buf bytes.Buffer
	require.NoError(t, s.WriteZip(&buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)
	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "pages/A.md", zr.File[1].Name)
	assert.Equal(t, "a", string(body))
}

func TestMemSink_CopiesInput(t *testing.T) {
	s := NewMemSink()
	data := []byte("original")
	require.NoError(t, s.Write("a.md", data))
	data[0] = 'X'
	got, _ := s.Get("a.md")
	assert.Equal(t, "original", string(got))
}
