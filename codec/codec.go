package codec

import (
	"fmt"
	"reflect"

	"github.com/c360/streamcompute/errors"
)

// ExtensionPoint is the only contribution point the codec service accepts.
const ExtensionPoint = "codecs"

// Codec serializes values of type T. Implementations are safe for
// concurrent use.
type Codec[T any] interface {
	Name() string
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// Untyped is the type-erased codec a Factory produces. Decode returns a
// value whose dynamic type is the target type the codec was built for.
type Untyped interface {
	Name() string
	Target() reflect.Type
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// Factory builds codecs from contribution options.
type Factory interface {
	// Init reads options. Missing options take their defaults.
	Init(options map[string]string) error
	// NewCodec returns the codec registered as name for target, or a
	// configuration error when the factory cannot serialize that type.
	NewCodec(name string, target reflect.Type) (Untyped, error)
}

// Descriptor is a declarative codec contribution.
type Descriptor struct {
	Name    string            `json:"name" yaml:"name"`
	Factory string            `json:"factory" yaml:"factory"`
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// TypeOf returns the reflect.Type of T, interface types included.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Typed adapts an untyped codec to Codec[T]. It fails when u was built for
// another target type.
func Typed[T any](u Untyped) (Codec[T], error) {
	if want := TypeOf[T](); u.Target() != want {
		return nil, errors.Config(errors.ErrIncompatibleCodec, "codec", "Typed",
			fmt.Sprintf("codec %s targets %s, not %s", u.Name(), u.Target(), want))
	}
	return typed[T]{u: u}, nil
}

type typed[T any] struct {
	u Untyped
}

func (c typed[T]) Name() string { return c.u.Name() }

func (c typed[T]) Encode(v T) ([]byte, error) { return c.u.Encode(v) }

func (c typed[T]) Decode(data []byte) (T, error) {
	var zero T
	v, err := c.u.Decode(data)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, errors.WrapInvalid(fmt.Errorf("%w: decoded %T", errors.ErrInvalidData, v),
			"Codec["+c.u.Name()+"]", "Decode", "type assertion")
	}
	return t, nil
}

// base carries what every built-in codec shares: its name, target type
// and compression.
type base struct {
	name       string
	target     reflect.Type
	compressor compressor
}

func (b base) Name() string         { return b.name }
func (b base) Target() reflect.Type { return b.target }

func (b base) pack(data []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, errors.WrapInvalid(err, "Codec["+b.name+"]", "Encode", "serialize value")
	}
	return b.compressor.compress(data)
}

func (b base) unpack(data []byte) ([]byte, error) {
	out, err := b.compressor.decompress(data)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Codec["+b.name+"]", "Decode", "decompress payload")
	}
	return out, nil
}

// checkValue rejects values whose type is not the codec target.
func (b base) checkValue(v any) error {
	if v == nil {
		return nil
	}
	if t := reflect.TypeOf(v); !t.AssignableTo(b.target) {
		return errors.WrapInvalid(fmt.Errorf("%w: got %s, codec targets %s", errors.ErrInvalidData, t, b.target),
			"Codec["+b.name+"]", "Encode", "type check")
	}
	return nil
}

func decodeFailed(name string, err error) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Codec["+name+"]", "Decode", "deserialize value")
}
