package codec

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/pkg/options"
	"github.com/c360/streamcompute/record"
)

// recordFormatVersion leads every frame written by the record codec.
const recordFormatVersion byte = 1

// RecordFactory builds the compact binary codec for record.Record. The
// frame is: version byte, uvarint key length, key, varint watermark,
// uvarint flags, uvarint data length, data.
type RecordFactory struct {
	compressor compressor
}

// Init accepts option class=record (the only supported class) and the
// compression option.
func (f *RecordFactory) Init(opts map[string]string) error {
	m := options.Map(opts)
	if _, err := m.OneOf("class", "record", "record"); err != nil {
		return err
	}
	c, err := compressorFromOptions(m)
	if err != nil {
		return err
	}
	f.compressor = c
	return nil
}

// NewCodec fails unless target is record.Record.
func (f *RecordFactory) NewCodec(name string, target reflect.Type) (Untyped, error) {
	if target != TypeOf[record.Record]() {
		return nil, errors.Config(errors.ErrIncompatibleCodec, "RecordFactory", "NewCodec",
			fmt.Sprintf("record codec cannot serialize %s", target))
	}
	return &recordCodec{base{name: name, target: target, compressor: f.compressor}}, nil
}

type recordCodec struct {
	base
}

func (c *recordCodec) Encode(v any) ([]byte, error) {
	var r record.Record
	switch t := v.(type) {
	case record.Record:
		r = t
	case *record.Record:
		if t == nil {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "Codec["+c.name+"]", "Encode", "nil record")
		}
		r = *t
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: got %T, codec targets %s", errors.ErrInvalidData, v, c.target),
			"Codec["+c.name+"]", "Encode", "type check")
	}
	return c.compressor.compress(AppendRecord(nil, r))
}

func (c *recordCodec) Decode(data []byte) (any, error) {
	raw, err := c.unpack(data)
	if err != nil {
		return nil, err
	}
	r, err := ReadRecord(raw)
	if err != nil {
		return nil, decodeFailed(c.name, err)
	}
	return r, nil
}

// AppendRecord appends the binary frame of r to dst.
func AppendRecord(dst []byte, r record.Record) []byte {
	dst = append(dst, recordFormatVersion)
	dst = binary.AppendUvarint(dst, uint64(len(r.Key)))
	dst = append(dst, r.Key...)
	dst = binary.AppendVarint(dst, r.Watermark)
	dst = binary.AppendUvarint(dst, uint64(r.Flags))
	dst = binary.AppendUvarint(dst, uint64(len(r.Data)))
	return append(dst, r.Data...)
}

// ReadRecord parses a frame written by AppendRecord. The returned data
// slice is a copy.
func ReadRecord(b []byte) (record.Record, error) {
	var r record.Record
	if len(b) == 0 {
		return r, fmt.Errorf("empty frame")
	}
	if b[0] != recordFormatVersion {
		return r, fmt.Errorf("unsupported frame version %d", b[0])
	}
	b = b[1:]

	keyLen, n := binary.Uvarint(b)
	if n <= 0 || uint64(len(b)-n) < keyLen {
		return r, fmt.Errorf("truncated key")
	}
	b = b[n:]
	r.Key = string(b[:keyLen])
	b = b[keyLen:]

	wm, n := binary.Varint(b)
	if n <= 0 {
		return r, fmt.Errorf("truncated watermark")
	}
	r.Watermark = wm
	b = b[n:]

	flags, n := binary.Uvarint(b)
	if n <= 0 {
		return r, fmt.Errorf("truncated flags")
	}
	r.Flags = record.Flag(flags)
	b = b[n:]

	dataLen, n := binary.Uvarint(b)
	if n <= 0 || uint64(len(b)-n) != dataLen {
		return r, fmt.Errorf("truncated data")
	}
	if dataLen > 0 {
		r.Data = append([]byte(nil), b[n:]...)
	}
	return r, nil
}
