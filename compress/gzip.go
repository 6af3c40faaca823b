package compress

import (
	"io"
	"sync"

	log "github.com/CefBoud/monsink/logging"
	"github.com/klauspost/compress/gzip"
)

var gzipWriterPool = sync.Pool{
	New: func() any {
		return gzip.NewWriter(nil)
	},
}

// GzipCodec implements Codec with gzip. TODO: expose compression levels in the config.
type GzipCodec struct{}

// Name returns "gzip".
func (c *GzipCodec) Name() string { return GZIP }

// Extension returns ".gz".
func (c *GzipCodec) Extension() string { return ".gz" }

// NewWriter returns a pooled gzip writer over w.
func (c *GzipCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	gw := gzipWriterPool.Get().(*gzip.Writer)
	gw.Reset(w)
	return &pooledGzipWriter{Writer: gw}, nil
}

// NewReader returns a gzip reader over r.
func (c *GzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

type pooledGzipWriter struct {
	*gzip.Writer
	released bool
}

func (w *pooledGzipWriter) Close() error {
	if w.released {
		return nil
	}
	err := w.Writer.Close()
	if err != nil {
		log.Error("Failed to close GZIP writer: %v", err)
		return err
	}
	w.released = true
	gzipWriterPool.Put(w.Writer)
	return nil
}
