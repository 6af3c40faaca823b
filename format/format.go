// Package format builds the record writers segments are written through.
package format

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/CefBoud/monsink/compress"
	log "github.com/CefBoud/monsink/logging"
	"github.com/CefBoud/monsink/serde"
	"github.com/CefBoud/monsink/storage"
	"github.com/CefBoud/monsink/types"
)

// RecordWriter writes rows into one destination.
type RecordWriter interface {
	Write(row types.Row) error
	// Close flushes and finalizes the destination.
	Close() error
	// Abort discards the writer after a failure. Nothing buffered is published
	// and the writer cannot be used again.
	Abort()
}

// Provider opens record writers for destination paths.
type Provider interface {
	NewWriter(path string) (RecordWriter, error)
	// Extension is the suffix of the files this provider produces.
	Extension() string
}

const defaultBufSize = 64 * 1024

// TextProvider writes line-oriented text segments on a Storage, optionally compressed.
type TextProvider struct {
	storage storage.Storage
	encoder serde.Encoder
	codec   compress.Codec
	bufSize int
}

// NewTextProvider returns a provider for the given format and compression names.
func NewTextProvider(st storage.Storage, formatName, compression string) (*TextProvider, error) {
	enc, err := serde.GetEncoder(formatName)
	if err != nil {
		return nil, err
	}
	codec, err := compress.GetCodec(compression)
	if err != nil {
		return nil, err
	}
	return &TextProvider{storage: st, encoder: enc, codec: codec, bufSize: defaultBufSize}, nil
}

// NewCSVProvider returns an uncompressed CSV provider.
func NewCSVProvider(st storage.Storage) *TextProvider {
	return &TextProvider{storage: st, encoder: serde.CSVEncoder{}, codec: mustCodec(compress.NONE), bufSize: defaultBufSize}
}

func mustCodec(name string) compress.Codec {
	c, err := compress.GetCodec(name)
	if err != nil {
		log.Panic("codec %v: %v", name, err)
	}
	return c
}

var _ Provider = (*TextProvider)(nil)

// Extension returns the encoder extension followed by the codec one, e.g. ".csv.gz".
func (p *TextProvider) Extension() string {
	return p.encoder.Extension() + p.codec.Extension()
}

// NewWriter creates path and returns a writer over it.
func (p *TextProvider) NewWriter(path string) (RecordWriter, error) {
	file, err := p.storage.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %v: %w", path, err)
	}
	cw, err := p.codec.NewWriter(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("open %v writer for %v: %w", p.codec.Name(), path, err)
	}
	log.Debug("opened segment %v", path)
	return &textWriter{
		path:    path,
		file:    file,
		codec:   cw,
		buf:     bufio.NewWriterSize(cw, p.bufSize),
		encoder: p.encoder,
	}, nil
}

type textWriter struct {
	path    string
	file    io.WriteCloser
	codec   io.WriteCloser
	buf     *bufio.Writer
	encoder serde.Encoder
	line    bytes.Buffer
	closed  bool
}

// Write encodes row and buffers it.
func (w *textWriter) Write(row types.Row) error {
	if w.closed {
		return fmt.Errorf("write %v: writer closed", w.path)
	}
	w.line.Reset()
	if err := w.encoder.Encode(&w.line, row); err != nil {
		return fmt.Errorf("encode row for %v: %w", w.path, err)
	}
	if _, err := w.buf.Write(w.line.Bytes()); err != nil {
		return fmt.Errorf("write %v: %w", w.path, err)
	}
	return nil
}

// Close flushes the buffer, ends the codec frame and closes the file.
func (w *textWriter) Close() error {
	if w.closed {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush %v: %w", w.path, err)
	}
	if err := w.codec.Close(); err != nil {
		return fmt.Errorf("close codec for %v: %w", w.path, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close %v: %w", w.path, err)
	}
	w.closed = true
	log.Debug("closed segment %v", w.path)
	return nil
}

// Abort releases the codec and discards the file. Errors are logged, the
// destination is rewritten or abandoned by the caller.
func (w *textWriter) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	if err := w.codec.Close(); err != nil {
		log.Debug("discarding codec of %v: %v", w.path, err)
	}
	var err error
	if a, ok := w.file.(storage.Aborter); ok {
		err = a.Abort()
	} else {
		err = w.file.Close()
	}
	if err != nil {
		log.Warn("abort %v: %v", w.path, err)
	}
	log.Debug("aborted segment %v", w.path)
}

// ReadSegment returns the decompressed content of a segment written by a provider with the given codec.
func ReadSegment(st storage.Storage, path, compression string) ([]byte, error) {
	codec, err := compress.GetCodec(compression)
	if err != nil {
		return nil, err
	}
	file, err := st.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	r, err := codec.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
