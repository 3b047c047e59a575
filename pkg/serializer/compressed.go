package serializer

import (
	"bytes"
	"io"

	"github.com/ajitpratap0/recordflow/pkg/compression"
	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/record"
)

// Compressed wraps a codec so that each record is encoded by the inner
// codec, compressed, and written as one length-prefixed frame.
type Compressed struct {
	inner      Codec
	compressor compression.Compressor
}

// NewCompressed wraps inner with the configured compressor.
func NewCompressed(inner Codec, config *compression.Config) (*Compressed, error) {
	if inner == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "compressed codec needs an inner codec")
	}
	c, err := compression.NewCompressor(config)
	if err != nil {
		return nil, err
	}
	return &Compressed{inner: inner, compressor: c}, nil
}

// Name returns the inner name and the algorithm, such as "json+lz4".
func (c *Compressed) Name() string {
	return c.inner.Name() + "+" + string(c.compressor.Algorithm())
}

// Serialize encodes r with the inner codec and writes the compressed frame.
func (c *Compressed) Serialize(w io.Writer, r *record.Record) error {
	var buf bytes.Buffer
	if err := c.inner.Serialize(&buf, r); err != nil {
		return err
	}
	payload, err := c.compressor.Compress(buf.Bytes())
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "cannot compress record")
	}
	n, err := writeFrame(w, payload)
	if err != nil {
		return err
	}
	countBytes(c.Name(), directionWrite, n)
	return nil
}

// Deserialize reads one compressed frame and decodes it with the inner
// codec.
func (c *Compressed) Deserialize(rd io.Reader) (*record.Record, error) {
	payload, err := readFrame(rd)
	if err != nil {
		return nil, err
	}
	countBytes(c.Name(), directionRead, len(payload))
	plain, err := c.compressor.Decompress(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "cannot decompress record")
	}
	r, err := c.inner.Deserialize(bytes.NewReader(plain))
	if err == io.EOF {
		return nil, errors.New(errors.ErrorTypeData, "compressed frame holds no record")
	}
	return r, err
}
