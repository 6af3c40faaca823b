// Package compress provides stream codecs applied to segment files.
package compress

import (
	"fmt"
	"io"
	"sort"
)

// Codec compresses a segment stream. Closing a writer returned by NewWriter
// flushes the codec frame but leaves the underlying writer open.
type Codec interface {
	Name() string
	// Extension is appended to the segment file name, e.g. ".gz".
	Extension() string
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// codec names
const (
	NONE   = "none"
	GZIP   = "gzip"
	SNAPPY = "snappy"
	LZ4    = "lz4"
	ZSTD   = "zstd"
)

var codecs = map[string]Codec{
	NONE:   noneCodec{},
	"":     noneCodec{},
	GZIP:   &GzipCodec{},
	SNAPPY: &SnappyCodec{},
	LZ4:    &LZ4Codec{},
	ZSTD:   &ZSTDCodec{},
}

// GetCodec returns the codec registered under name. An empty name means no compression.
func GetCodec(name string) (Codec, error) {
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("unknown compression %q", name)
	}
	return c, nil
}

// Names lists the supported codec names.
func Names() []string {
	var names []string
	for n := range codecs {
		if n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

type noneCodec struct{}

func (noneCodec) Name() string      { return NONE }
func (noneCodec) Extension() string { return "" }

func (noneCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (noneCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
