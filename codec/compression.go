package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/DataDog/zstd"
	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/pkg/options"
)

// Compression tags. A compressed payload starts with its tag byte; with
// compression "none" the encoded bytes are emitted as is.
const (
	tagSnappy byte = 's'
	tagLZ4    byte = 'l'
	tagZstd   byte = 'z'
)

type compressor struct {
	kind string
	tag  byte
}

func compressorFromOptions(opts options.Map) (compressor, error) {
	kind, err := opts.OneOf("compression", "none", "none", "snappy", "lz4", "zstd")
	if err != nil {
		return compressor{}, err
	}
	switch kind {
	case "snappy":
		return compressor{kind: kind, tag: tagSnappy}, nil
	case "lz4":
		return compressor{kind: kind, tag: tagLZ4}, nil
	case "zstd":
		return compressor{kind: kind, tag: tagZstd}, nil
	}
	return compressor{kind: "none"}, nil
}

func (c compressor) compress(data []byte) ([]byte, error) {
	var body []byte
	switch c.tag {
	case 0:
		return data, nil
	case tagSnappy:
		body = snappy.Encode(nil, data)
	case tagLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, errors.Wrap(err, "compressor", "compress", "lz4 write")
		}
		if err := w.Close(); err != nil {
			return nil, errors.Wrap(err, "compressor", "compress", "lz4 close")
		}
		body = buf.Bytes()
	case tagZstd:
		out, err := zstd.Compress(nil, data)
		if err != nil {
			return nil, errors.Wrap(err, "compressor", "compress", "zstd")
		}
		body = out
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, c.tag)
	return append(out, body...), nil
}

func (c compressor) decompress(data []byte) ([]byte, error) {
	if c.tag == 0 {
		return data, nil
	}
	if len(data) == 0 || data[0] != c.tag {
		return nil, fmt.Errorf("%w: payload is not %s compressed", errors.ErrDataCorrupted, c.kind)
	}
	body := data[1:]
	switch c.tag {
	case tagSnappy:
		return snappy.Decode(nil, body)
	case tagLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(body)))
	default:
		return zstd.Decompress(nil, body)
	}
}
