// Package serializer converts records to and from byte streams.
//
// Two codecs are provided: JSON lines and length-prefixed Avro. Both encode
// every value with its exact representation, so a record read back is Equal
// to the record written. Either codec can be wrapped in a compressed
// envelope:
//
//	codec, err := serializer.New("avro+zstd")
//	if err != nil {
//		return err
//	}
//	if err := codec.Serialize(w, r); err != nil {
//		return err
//	}
package serializer

import (
	"bufio"
	"encoding/binary"
	stderrors "errors"
	"io"
	"strings"

	"github.com/ajitpratap0/recordflow/pkg/compression"
	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/metrics"
	"github.com/ajitpratap0/recordflow/pkg/record"
)

// Format names accepted by New.
const (
	FormatJSON = "json"
	FormatAvro = "avro"
)

const (
	directionWrite = "write"
	directionRead  = "read"
)

// maxFrameSize bounds a single length-prefixed frame.
const maxFrameSize = compression.MaxDecompressedSize

// Serializer writes one record to w.
type Serializer interface {
	Serialize(w io.Writer, r *record.Record) error
}

// Deserializer reads one record from rd. It returns io.EOF when rd is
// exhausted before a record starts.
type Deserializer interface {
	Deserialize(rd io.Reader) (*record.Record, error)
}

// Codec is a named Serializer and Deserializer pair.
type Codec interface {
	Serializer
	Deserializer
	Name() string
}

// New returns the codec for name: "json", "avro", or either followed by
// "+<algorithm>" for a compressed envelope, such as "json+lz4".
func New(name string) (Codec, error) {
	format, algo, compressed := strings.Cut(strings.ToLower(strings.TrimSpace(name)), "+")

	var inner Codec
	switch format {
	case FormatJSON, "":
		inner = JSON{}
	case FormatAvro:
		inner = Avro{}
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown serialization format %q", name)
	}
	if !compressed {
		return inner, nil
	}

	a, err := compression.ParseAlgorithm(algo)
	if err != nil {
		return nil, err
	}
	if a == compression.None {
		return inner, nil
	}
	return NewCompressed(inner, &compression.Config{Algorithm: a})
}

// WriteAll serializes every record to w and stops at the first error.
func WriteAll(w io.Writer, s Serializer, records []*record.Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if err := s.Serialize(bw, r); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "cannot flush records")
	}
	return nil
}

// ReadAll deserializes records until rd is exhausted.
func ReadAll(rd io.Reader, d Deserializer) ([]*record.Record, error) {
	br, ok := rd.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(rd)
	}
	var out []*record.Record
	for {
		r, err := d.Deserialize(br)
		if stderrors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, errors.Wrap(err, errors.ErrorTypeData, "cannot read record").
				WithDetail("index", len(out))
		}
		out = append(out, r)
	}
}

func countBytes(format, direction string, n int) {
	metrics.BytesSerialized.WithLabelValues(format, direction).Add(float64(n))
}

// decoded converts n into a record and checks it is valid.
func decoded(n node) (*record.Record, error) {
	r, err := n.toRecord()
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "decoded record is invalid")
	}
	return r, nil
}

// readLine returns the next non-blank line without its terminator. A final
// line without a newline is accepted.
func readLine(rd io.Reader) ([]byte, error) {
	for {
		line, err := readRawLine(rd)
		if len(strings.TrimSpace(string(line))) > 0 {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func readRawLine(rd io.Reader) ([]byte, error) {
	if br, ok := rd.(*bufio.Reader); ok {
		line, err := br.ReadBytes('\n')
		if err == io.EOF && len(line) > 0 {
			return line, nil
		}
		if err != nil && err != io.EOF {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "cannot read line")
		}
		return line, err
	}

	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := rd.Read(buf)
		if n == 1 {
			line = append(line, buf[0])
			if buf[0] == '\n' {
				return line, nil
			}
		}
		if err == io.EOF {
			if len(line) > 0 {
				return line, nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "cannot read line")
		}
	}
}

// writeFrame writes a uvarint length followed by payload and returns the
// number of bytes written.
func writeFrame(w io.Writer, payload []byte) (int, error) {
	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], uint64(len(payload)))
	if _, err := w.Write(prefix[:n]); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConnection, "cannot write frame header")
	}
	if _, err := w.Write(payload); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConnection, "cannot write frame")
	}
	return n + len(payload), nil
}

// readFrame reads one frame written by writeFrame. It returns io.EOF when
// no byte of a new frame is available.
func readFrame(rd io.Reader) ([]byte, error) {
	br, ok := rd.(io.ByteReader)
	if !ok {
		br = &byteReader{r: rd}
	}
	size, err := binary.ReadUvarint(br)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "malformed frame header")
	}
	if size > maxFrameSize {
		return nil, errors.Newf(errors.ErrorTypeData, "frame of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(rd, payload); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "truncated frame")
	}
	return payload, nil
}

type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.buf[:]); err != nil {
		return 0, err
	}
	return b.buf[0], nil
}
