package compress

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// ZSTDCodec implements Codec with zstd.
type ZSTDCodec struct{}

// Name returns "zstd".
func (c *ZSTDCodec) Name() string { return ZSTD }

// Extension returns ".zst".
func (c *ZSTDCodec) Extension() string { return ".zst" }

// NewWriter returns a zstd encoder over w.
func (c *ZSTDCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	// WithZeroFrames keeps an empty segment a valid zstd stream
	return zstd.NewWriter(w, zstd.WithZeroFrames(true))
}

// NewReader returns a zstd decoder over r.
func (c *ZSTDCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}
