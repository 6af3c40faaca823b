package compress

import (
	"io"
	"sync"

	log "github.com/CefBoud/monsink/logging"
	"github.com/pierrec/lz4/v4"
)

// LZ4WriterPool reuses lz4 writers across segments.
var LZ4WriterPool = sync.Pool{
	New: func() any {
		return lz4.NewWriter(nil)
	},
}

// LZ4Codec implements Codec with the lz4 frame format.
type LZ4Codec struct{}

// Name returns "lz4".
func (c *LZ4Codec) Name() string { return LZ4 }

// Extension returns ".lz4".
func (c *LZ4Codec) Extension() string { return ".lz4" }

// NewWriter returns a pooled lz4 writer over w.
func (c *LZ4Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	lw := LZ4WriterPool.Get().(*lz4.Writer)
	lw.Reset(w)
	return &pooledLZ4Writer{Writer: lw}, nil
}

// NewReader returns an lz4 reader over r.
func (c *LZ4Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

type pooledLZ4Writer struct {
	*lz4.Writer
	released bool
}

func (w *pooledLZ4Writer) Close() error {
	if w.released {
		return nil
	}
	if err := w.Writer.Close(); err != nil {
		log.Error("Failed to close LZ4 writer: %v", err)
		return err
	}
	w.released = true
	LZ4WriterPool.Put(w.Writer)
	return nil
}
