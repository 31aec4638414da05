package codec

import (
	"fmt"
	"reflect"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/pkg/options"
)

// NoneFactory is the legacy pass-through codec: the value is the payload.
// Only []byte targets are supported.
type NoneFactory struct {
	compressor compressor
}

// Init reads the compression option.
func (f *NoneFactory) Init(opts map[string]string) error {
	c, err := compressorFromOptions(options.Map(opts))
	if err != nil {
		return err
	}
	f.compressor = c
	return nil
}

// NewCodec fails for anything but []byte.
func (f *NoneFactory) NewCodec(name string, target reflect.Type) (Untyped, error) {
	if target != TypeOf[[]byte]() {
		return nil, errors.Config(errors.ErrIncompatibleCodec, "NoneFactory", "NewCodec",
			fmt.Sprintf("pass-through codec cannot serialize %s", target))
	}
	return &noneCodec{base{name: name, target: target, compressor: f.compressor}}, nil
}

type noneCodec struct {
	base
}

func (c *noneCodec) Encode(v any) ([]byte, error) {
	data, ok := v.([]byte)
	if !ok && v != nil {
		return nil, c.checkValue(v)
	}
	return c.compressor.compress(append([]byte(nil), data...))
}

func (c *noneCodec) Decode(data []byte) (any, error) {
	raw, err := c.unpack(data)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), raw...), nil
}
