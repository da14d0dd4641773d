// Package compress compresses report documents for archiving and transport.
//
// ZSTD is the default algorithm; gzip is available for infrastructure that
// cannot read zstd. Archive bundles a serialized report into a compressed
// file named after the model and run.
package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// AlgorithmZSTD is Zstandard, the default.
	AlgorithmZSTD Algorithm = "zstd"

	// AlgorithmGzip is gzip, for maximum compatibility.
	AlgorithmGzip Algorithm = "gzip"

	// AlgorithmNone disables compression.
	AlgorithmNone Algorithm = "none"
)

// Level represents compression level.
type Level int

const (
	// LevelFastest prioritizes speed over ratio.
	LevelFastest Level = 1

	// LevelDefault is a good balance.
	LevelDefault Level = 3

	// LevelBest provides maximum compression (slowest).
	LevelBest Level = 9
)

// Compressor provides compression and decompression for one algorithm.
type Compressor struct {
	algorithm Algorithm
	level     Level

	// ZSTD encoder/decoder pools for reuse
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
}

// NewCompressor creates a compressor with the given algorithm and level.
func NewCompressor(algorithm Algorithm, level Level) *Compressor {
	c := &Compressor{
		algorithm: algorithm,
		level:     level,
	}

	if algorithm == AlgorithmZSTD {
		c.zstdEncoderPool = sync.Pool{
			New: func() any {
				enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(int(level))))
				return enc
			},
		}
		c.zstdDecoderPool = sync.Pool{
			New: func() any {
				dec, _ := zstd.NewReader(nil)
				return dec
			},
		}
	}

	return c
}

// Algorithm returns the compression algorithm.
func (c *Compressor) Algorithm() Algorithm {
	return c.algorithm
}

// ContentEncoding returns the HTTP Content-Encoding header value.
func (c *Compressor) ContentEncoding() string {
	switch c.algorithm {
	case AlgorithmZSTD:
		return "zstd"
	case AlgorithmGzip:
		return "gzip"
	default:
		return ""
	}
}

// Extension returns the file extension for archives in this algorithm.
func (c *Compressor) Extension() string {
	switch c.algorithm {
	case AlgorithmZSTD:
		return ".zst"
	case AlgorithmGzip:
		return ".gz"
	default:
		return ""
	}
}

// Compress compresses the input data.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case AlgorithmZSTD:
		return c.compressZSTD(data)
	case AlgorithmGzip:
		return c.compressGzip(data)
	case AlgorithmNone:
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}
}

// Decompress decompresses the input data.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case AlgorithmZSTD:
		return c.decompressZSTD(data)
	case AlgorithmGzip:
		return c.decompressGzip(data)
	case AlgorithmNone:
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}
}

func (c *Compressor) compressZSTD(data []byte) ([]byte, error) {
	enc := c.zstdEncoderPool.Get().(*zstd.Encoder)
	defer c.zstdEncoderPool.Put(enc)

	var buf bytes.Buffer
	enc.Reset(&buf)

	if _, err := enc.Write(data); err != nil {
		return nil, fmt.Errorf("zstd write error: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("zstd close error: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Compressor) decompressZSTD(data []byte) ([]byte, error) {
	dec := c.zstdDecoderPool.Get().(*zstd.Decoder)
	defer c.zstdDecoderPool.Put(dec)

	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("zstd reset error: %w", err)
	}
	result, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress error: %w", err)
	}
	return result, nil
}

func (c *Compressor) compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	level := gzip.DefaultCompression
	if c.level <= 3 {
		level = gzip.BestSpeed
	} else if c.level >= 7 {
		level = gzip.BestCompression
	}

	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer error: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write error: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip close error: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Compressor) decompressGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader error: %w", err)
	}
	defer reader.Close()

	result, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip decompress error: %w", err)
	}
	return result, nil
}

// Stats holds statistics about a compression operation.
type Stats struct {
	OriginalSize   int     `json:"original_size"`
	CompressedSize int     `json:"compressed_size"`
	Ratio          float64 `json:"ratio"`           // compressed/original
	Savings        float64 `json:"savings_percent"` // (1 - ratio) * 100
	Algorithm      string  `json:"algorithm"`
}

// CompressWithStats compresses data and returns statistics.
func (c *Compressor) CompressWithStats(data []byte) ([]byte, *Stats, error) {
	compressed, err := c.Compress(data)
	if err != nil {
		return nil, nil, err
	}

	ratio := 1.0
	if len(data) > 0 {
		ratio = float64(len(compressed)) / float64(len(data))
	}
	stats := &Stats{
		OriginalSize:   len(data),
		CompressedSize: len(compressed),
		Ratio:          ratio,
		Savings:        (1 - ratio) * 100,
		Algorithm:      string(c.algorithm),
	}
	return compressed, stats, nil
}

// Default compressors for convenience.
var (
	// DefaultZSTD is the default ZSTD compressor.
	DefaultZSTD = NewCompressor(AlgorithmZSTD, LevelDefault)

	// DefaultGzip is the default gzip compressor.
	DefaultGzip = NewCompressor(AlgorithmGzip, LevelDefault)
)
