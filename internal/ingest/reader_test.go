package ingest

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const readerInput = "{\"a\": 1}\n\n   \n{\"b\": 2}\r\n{\"c\": 3}"

func readAll(t *testing.T, path string) ([]RawPage, int64) {
	t.Helper()
	pr, err := OpenPages(path)
	require.NoError(t, err)
	defer pr.Close()

	var out []RawPage
	for {
		p, err := pr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		out = append(out, p)
	}
	return out, pr.BytesRead()
}

func TestPageReaderFormats(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, wrap func(io.Writer) io.WriteCloser) string {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		require.NoError(t, err)
		w := wrap(f)
		_, err = io.WriteString(w, readerInput)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		require.NoError(t, f.Close())
		return path
	}
	plain := func(w io.Writer) io.WriteCloser { return nopCloser{w} }

	tests := []struct {
		name string
		path string
	}{
		{"plain", write("pages.jsonl", plain)},
		{"gzip", write("pages.jsonl.gz", func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) })},
		{"zstd", write("pages.jsonl.zst", func(w io.Writer) io.WriteCloser {
			enc, err := zstd.NewWriter(w)
			require.NoError(t, err)
			return enc
		})},
		{"lz4", write("pages.JSONL.LZ4", func(w io.Writer) io.WriteCloser { return lz4.NewWriter(w) })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, read := readAll(t, tt.path)
			fi, err := os.Stat(tt.path)
			require.NoError(t, err)
			if tt.name == "plain" {
				assert.Equal(t, fi.Size(), read)
			} else {
				assert.Positive(t, read)
			}
			require.Len(t, pages, 3)
			assert.Equal(t, `{"a": 1}`, string(pages[0].Data))
			assert.Equal(t, 1, pages[0].Line)
			assert.Equal(t, `{"b": 2}`, string(pages[1].Data))
			assert.Equal(t, 4, pages[1].Line)
			assert.Equal(t, `{"c": 3}`, string(pages[2].Data))
			assert.Equal(t, 5, pages[2].Line)
			assert.Equal(t, tt.path, pages[2].Source)
		})
	}
}

func TestOpenPagesErrors(t *testing.T) {
	_, err := OpenPages(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "broken.gz")
	require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0o644))
	_, err = OpenPages(path)
	assert.Error(t, err)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
