package publish

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression algorithm names accepted by the HTTP publisher config.
const (
	CompressionNone   = "none"
	CompressionGzip   = "gzip"
	CompressionZstd   = "zstd"
	CompressionZlib   = "zlib"
	CompressionSnappy = "snappy"
)

// compressor compresses request bodies using a configured algorithm.
// A zstd encoder is created once and reused since it is expensive to build.
type compressor struct {
	algorithm string
	encoder   *zstd.Encoder
}

func newCompressor(algorithm string) (*compressor, error) {
	c := &compressor{algorithm: algorithm}

	if algorithm == CompressionZstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}

		c.encoder = enc
	}

	return c, nil
}

func (c *compressor) compress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case CompressionNone, "":
		return data, nil
	case CompressionGzip:
		var buf bytes.Buffer

		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip write: %w", err)
		}

		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}

		return buf.Bytes(), nil
	case CompressionZstd:
		return c.encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
	case CompressionZlib:
		var buf bytes.Buffer

		w := zlib.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("zlib write: %w", err)
		}

		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("zlib close: %w", err)
		}

		return buf.Bytes(), nil
	case CompressionSnappy:
		return snappy.Encode(nil, data), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}
}

// contentEncoding returns the Content-Encoding header value for the algorithm,
// or "" when the body is sent uncompressed.
func (c *compressor) contentEncoding() string {
	switch c.algorithm {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionZlib:
		return "deflate"
	case CompressionSnappy:
		return "snappy"
	default:
		return ""
	}
}

func (c *compressor) close() error {
	if c.encoder != nil {
		return c.encoder.Close()
	}

	return nil
}

func validCompression(algorithm string) bool {
	switch algorithm {
	case "", CompressionNone, CompressionGzip, CompressionZstd,
		CompressionZlib, CompressionSnappy:
		return true
	default:
		return false
	}
}
