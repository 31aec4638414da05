// Package codec provides named serializers resolved through a registry.
//
// Codecs are contributed declaratively as a Descriptor naming a factory
// kind and its options:
//
//	svc := codec.NewService(codec.WithLogger(logger))
//	err := svc.RegisterContribution(codec.ExtensionPoint, codec.Descriptor{
//		Name:    "default",
//		Factory: "json",
//		Options: map[string]string{"compression": "snappy"},
//	})
//	c, err := codec.GetCodec[record.Record](svc, "default")
//
// Built-in factory kinds are json, record (binary framing of record.Record),
// gob and none (pass-through for []byte). Every kind accepts the compression
// option: none, snappy, lz4 or zstd.
//
// GetCodec returns nil, nil for an unknown name. Callers decide whether a
// missing codec is an error.
package codec
