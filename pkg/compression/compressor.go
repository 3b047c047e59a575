// Package compression provides the payload compression algorithms used by
// compressed record envelopes and the Kafka sink.
//
// # Algorithm Selection
//
//   - Snappy/S2: Best for speed, moderate compression
//   - LZ4: Extremely fast, decent compression
//   - Zstd: Best compression ratio, good speed
//   - Gzip/Deflate: Wide compatibility
//
// # Basic Usage
//
//	comp, err := compression.NewCompressor(&compression.Config{
//	    Algorithm: compression.Zstd,
//	    Level:     compression.Better,
//	})
//	compressed, err := comp.Compress(data)
//	original, err := comp.Decompress(compressed)
//
// Compressors are safe for concurrent use.
package compression

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/recordflow/pkg/errors"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	None    Algorithm = "none"
	Gzip    Algorithm = "gzip"
	Snappy  Algorithm = "snappy"
	LZ4     Algorithm = "lz4"
	Zstd    Algorithm = "zstd"
	S2      Algorithm = "s2"
	Deflate Algorithm = "deflate"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2, Deflate}

// ParseAlgorithm parses an algorithm name case-insensitively. An empty
// name means None.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	if a == "" {
		return None, nil
	}
	for _, known := range Algorithms {
		if a == known {
			return a, nil
		}
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "unsupported compression algorithm: %s", name)
}

// Level controls the trade-off between speed and ratio.
type Level int

const (
	Fastest Level = 1
	Default Level = 5
	Better  Level = 7
	Best    Level = 9
)

// MaxDecompressedSize bounds the output of Decompress.
const MaxDecompressedSize = 256 << 20

// Compressor compresses and decompresses whole payloads.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() Algorithm
	Level() Level
}

// Config represents compressor configuration.
type Config struct {
	Algorithm Algorithm
	Level     Level
}

// DefaultConfig returns Snappy at the default level.
func DefaultConfig() *Config {
	return &Config{
		Algorithm: Snappy,
		Level:     Default,
	}
}

// NewCompressor creates a compressor. A nil config uses DefaultConfig.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	level := config.Level
	if level == 0 {
		level = Default
	}
	base := baseCompressor{algorithm: config.Algorithm, level: level}

	switch config.Algorithm {
	case None, "":
		base.algorithm = None
		return &noneCompressor{base}, nil
	case Gzip:
		return newGzipCompressor(base), nil
	case Snappy:
		return &snappyCompressor{base}, nil
	case LZ4:
		return &lz4Compressor{baseCompressor: base, compressionLevel: mapLZ4Level(level)}, nil
	case Zstd:
		zc, err := newZstdCompressor(base)
		if err != nil {
			return nil, err
		}
		return zc, nil
	case S2:
		return &s2Compressor{base}, nil
	case Deflate:
		return &deflateCompressor{baseCompressor: base, flateLevel: mapFlateLevel(level)}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported compression algorithm: %s", config.Algorithm)
	}
}

type baseCompressor struct {
	algorithm Algorithm
	level     Level
}

func (bc *baseCompressor) Algorithm() Algorithm { return bc.algorithm }
func (bc *baseCompressor) Level() Level         { return bc.level }

// readAllLimited drains r, failing when the output exceeds MaxDecompressedSize.
func readAllLimited(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, MaxDecompressedSize+1))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "decompression failed")
	}
	if n > MaxDecompressedSize {
		return nil, errors.Newf(errors.ErrorTypeData, "decompressed payload exceeds %d bytes", MaxDecompressedSize)
	}
	return buf.Bytes(), nil
}

type noneCompressor struct {
	baseCompressor
}

func (nc *noneCompressor) Compress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

func (nc *noneCompressor) Decompress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

type gzipCompressor struct {
	baseCompressor
	writerPool sync.Pool
	readerPool sync.Pool
}

func newGzipCompressor(base baseCompressor) *gzipCompressor {
	level := mapFlateLevel(base.level)
	gc := &gzipCompressor{baseCompressor: base}
	gc.writerPool.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, level)
		return w
	}
	gc.readerPool.New = func() interface{} {
		return new(gzip.Reader)
	}
	return gc
}

func (gc *gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gc.writerPool.Get().(*gzip.Writer)
	defer gc.writerPool.Put(w)

	w.Reset(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gc *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	r := gc.readerPool.Get().(*gzip.Reader)
	defer gc.readerPool.Put(r)

	if err := r.Reset(bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid gzip payload")
	}
	return readAllLimited(r)
}

type snappyCompressor struct {
	baseCompressor
}

func (sc *snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (sc *snappyCompressor) Decompress(data []byte) ([]byte, error) {
	if n, err := snappy.DecodedLen(data); err == nil && n > MaxDecompressedSize {
		return nil, errors.Newf(errors.ErrorTypeData, "decompressed payload exceeds %d bytes", MaxDecompressedSize)
	}
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid snappy payload")
	}
	return out, nil
}

type lz4Compressor struct {
	baseCompressor
	compressionLevel lz4.CompressionLevel
}

func (lc *lz4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(lc.compressionLevel)); err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lc *lz4Compressor) Decompress(data []byte) ([]byte, error) {
	return readAllLimited(lz4.NewReader(bytes.NewReader(data)))
}

type zstdCompressor struct {
	baseCompressor
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// newZstdCompressor shares one encoder and decoder; EncodeAll and DecodeAll
// are safe for concurrent use.
func newZstdCompressor(base baseCompressor) (*zstdCompressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(mapZstdLevel(base.level)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "cannot create zstd encoder")
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecompressedSize))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "cannot create zstd decoder")
	}
	return &zstdCompressor{baseCompressor: base, encoder: enc, decoder: dec}, nil
}

func (zc *zstdCompressor) Compress(data []byte) ([]byte, error) {
	return zc.encoder.EncodeAll(data, nil), nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := zc.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid zstd payload")
	}
	return out, nil
}

// S2 is Snappy-compatible with better compression.
type s2Compressor struct {
	baseCompressor
}

func (sc *s2Compressor) Compress(data []byte) ([]byte, error) {
	if sc.level >= Better {
		return s2.EncodeBetter(nil, data), nil
	}
	return s2.Encode(nil, data), nil
}

func (sc *s2Compressor) Decompress(data []byte) ([]byte, error) {
	if n, err := s2.DecodedLen(data); err == nil && n > MaxDecompressedSize {
		return nil, errors.Newf(errors.ErrorTypeData, "decompressed payload exceeds %d bytes", MaxDecompressedSize)
	}
	out, err := s2.Decode(nil, data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid s2 payload")
	}
	return out, nil
}

type deflateCompressor struct {
	baseCompressor
	flateLevel int
}

func (dc *deflateCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, dc.flateLevel)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (dc *deflateCompressor) Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return readAllLimited(r)
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func mapFlateLevel(level Level) int {
	switch level {
	case Fastest:
		return flate.BestSpeed
	case Best:
		return flate.BestCompression
	default:
		return flate.DefaultCompression
	}
}

func (a Algorithm) String() string {
	return string(a)
}
