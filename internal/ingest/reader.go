package ingest

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// RawPage is one undecoded API page and where it came from.
type RawPage struct {
	Source string
	Line   int
	Data   []byte
}

// PageReader yields the non-blank lines of a JSONL input file as pages.
type PageReader struct {
	source string
	file   *os.File
	dec    io.Closer
	r      *bufio.Reader
	line   int
	read   atomic.Int64
}

// OpenPages opens path for reading, decompressing it when the extension says
// so (.gz, .zst, .zstd, .lz4).
func OpenPages(path string) (*PageReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	pr := &PageReader{source: path, file: f}
	counted := &countingReader{r: f, n: &pr.read}

	var src io.Reader = counted
	switch ext := strings.ToLower(path); {
	case strings.HasSuffix(ext, ".gz"):
		zr, err := gzip.NewReader(counted)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "open gzip %s", path)
		}
		src, pr.dec = zr, zr
	case strings.HasSuffix(ext, ".zst"), strings.HasSuffix(ext, ".zstd"):
		zr, err := zstd.NewReader(counted)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "open zstd %s", path)
		}
		rc := zr.IOReadCloser()
		src, pr.dec = rc, rc
	case strings.HasSuffix(ext, ".lz4"):
		src = lz4.NewReader(counted)
	}
	pr.r = bufio.NewReaderSize(src, 1<<20)
	return pr, nil
}

// Next returns the next non-blank line. It returns io.EOF once the input is
// exhausted. Lines of any length are supported.
func (pr *PageReader) Next() (RawPage, error) {
	for {
		line, err := pr.r.ReadBytes('\n')
		if len(line) > 0 {
			pr.line++
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				return RawPage{Source: pr.source, Line: pr.line, Data: trimmed}, nil
			}
		}
		if err == io.EOF {
			return RawPage{}, io.EOF
		}
		if err != nil {
			return RawPage{}, errors.Wrapf(err, "read %s after line %d", pr.source, pr.line)
		}
	}
}

// BytesRead is the number of bytes consumed from the underlying file,
// compressed bytes for compressed inputs.
func (pr *PageReader) BytesRead() int64 {
	return pr.read.Load()
}

func (pr *PageReader) Close() error {
	if pr.dec != nil {
		pr.dec.Close()
	}
	return pr.file.Close()
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
