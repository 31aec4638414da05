package codec

import (
	"encoding/json"
	"reflect"

	"github.com/c360/streamcompute/pkg/options"
)

// JSONFactory builds encoding/json codecs for any target type.
type JSONFactory struct {
	compressor compressor
}

// Init reads the compression option.
func (f *JSONFactory) Init(opts map[string]string) error {
	c, err := compressorFromOptions(options.Map(opts))
	if err != nil {
		return err
	}
	f.compressor = c
	return nil
}

// NewCodec accepts every target type.
func (f *JSONFactory) NewCodec(name string, target reflect.Type) (Untyped, error) {
	return &jsonCodec{base{name: name, target: target, compressor: f.compressor}}, nil
}

type jsonCodec struct {
	base
}

func (c *jsonCodec) Encode(v any) ([]byte, error) {
	if err := c.checkValue(v); err != nil {
		return nil, err
	}
	return c.pack(json.Marshal(v))
}

func (c *jsonCodec) Decode(data []byte) (any, error) {
	raw, err := c.unpack(data)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(c.target)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, decodeFailed(c.name, err)
	}
	return ptr.Elem().Interface(), nil
}
