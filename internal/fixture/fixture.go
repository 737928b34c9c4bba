// Package fixture reads pulsereplay's raw sample captures, transparently
// decompressing zstd-compressed fixtures the same way the teacher's
// spectrum/audio payload path uses klauspost/compress.
package fixture

import (
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Open returns a ReadCloser over path, decompressing on the fly if the
// file name ends in ".zst".
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &zstdReadCloser{dec: dec, f: f}, nil
}

type zstdReadCloser struct {
	dec *zstd.Decoder
	f   *os.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.f.Close()
}

// Compress writes src to dst as a zstd stream, for producing regression
// fixtures from a live capture.
func Compress(dst io.Writer, src io.Reader) error {
	enc, err := zstd.NewWriter(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
