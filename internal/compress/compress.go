// Package compress wraps writers for the database dump files. Archive
// compression runs through external gzip/xz processes; this package
// only covers the dump staging files written locally before upload.
package compress

import (
	"compress/gzip"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

type Algorithm string

const (
	Gzip Algorithm = "gzip"
	Lz4  Algorithm = "lz4"
	Zstd Algorithm = "zstd"
	None Algorithm = "none"
)

// Parse maps a config value to an Algorithm. The empty string means no
// compression.
func Parse(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(s)) {
	case "", None:
		return None, nil
	case Gzip:
		return Gzip, nil
	case Lz4:
		return Lz4, nil
	case Zstd:
		return Zstd, nil
	}
	return None, ErrUnsupportedAlgo(s)
}

// Ext returns the filename suffix for the algorithm, empty for None.
func (a Algorithm) Ext() string {
	switch a {
	case Gzip:
		return ".gz"
	case Lz4:
		return ".lz4"
	case Zstd:
		return ".zst"
	}
	return ""
}

// NewWriter layers the chosen compressor over w. Closing the returned
// writer flushes the compressor but leaves w open for the caller.
func NewWriter(w io.Writer, algo Algorithm) (io.WriteCloser, error) {
	switch algo {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Lz4:
		return lz4.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	}
	return nil, ErrUnsupportedAlgo(algo)
}

// NewReader undoes NewWriter.
func NewReader(r io.Reader, algo Algorithm) (io.ReadCloser, error) {
	switch algo {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Lz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{zr}, nil
	}
	return nil, ErrUnsupportedAlgo(algo)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

type ErrUnsupportedAlgo Algorithm

func (e ErrUnsupportedAlgo) Error() string {
	return "unsupported compression algorithm: " + string(e)
}
