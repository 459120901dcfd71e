package snapshot

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
)

// decompressingReader sniffs the leading magic bytes of r and returns a
// reader that transparently decompresses zstd or gzip input, so Import can
// read both current exports and the gzip archives older tooling produced.
func decompressingReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("snapshot: peek archive header: %w", err)
	}

	switch {
	case len(magic) >= 4 && bytes.Equal(magic[:4], zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("snapshot: new zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	case len(magic) >= 2 && bytes.Equal(magic[:2], gzipMagic):
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("snapshot: new gzip reader: %w", err)
		}
		return gr, nil
	default:
		return nil, fmt.Errorf("snapshot: unrecognized archive format")
	}
}
