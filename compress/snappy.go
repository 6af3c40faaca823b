package compress

import (
	"io"

	"github.com/golang/snappy"
)

// SnappyCodec implements Codec with the snappy framing format.
type SnappyCodec struct{}

// Name returns "snappy".
func (c *SnappyCodec) Name() string { return SNAPPY }

// Extension returns ".snappy".
func (c *SnappyCodec) Extension() string { return ".snappy" }

// NewWriter returns a buffered snappy stream writer over w.
func (c *SnappyCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}

// NewReader returns a snappy stream reader over r.
func (c *SnappyCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}
