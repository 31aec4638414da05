package codec

import (
	"bytes"
	"encoding/gob"
	"reflect"

	"github.com/c360/streamcompute/pkg/options"
)

// GobFactory builds encoding/gob codecs. Interface-typed fields need their
// concrete types registered with gob.Register by the caller.
type GobFactory struct {
	compressor compressor
}

// Init reads the compression option.
func (f *GobFactory) Init(opts map[string]string) error {
	c, err := compressorFromOptions(options.Map(opts))
	if err != nil {
		return err
	}
	f.compressor = c
	return nil
}

// NewCodec accepts every target type.
func (f *GobFactory) NewCodec(name string, target reflect.Type) (Untyped, error) {
	return &gobCodec{base{name: name, target: target, compressor: f.compressor}}, nil
}

type gobCodec struct {
	base
}

func (c *gobCodec) Encode(v any) ([]byte, error) {
	if err := c.checkValue(v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(v)
	return c.pack(buf.Bytes(), err)
}

func (c *gobCodec) Decode(data []byte) (any, error) {
	raw, err := c.unpack(data)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(c.target)
	if err := gob.NewDecoder(bytes.NewReader(raw)).DecodeValue(ptr); err != nil {
		return nil, decodeFailed(c.name, err)
	}
	return ptr.Elem().Interface(), nil
}
