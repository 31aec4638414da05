// Package config loads the streamcompute process configuration.
//
// A configuration declares the physical streams, the codec contributions,
// the blob stores used by external-store filters and the computations to
// run. Files may be JSON or YAML; the format follows the file extension.
//
// Loading merges layers over Defaults key by key, then applies
// STREAMCOMPUTE_* environment overrides:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.json")
//	cfg, err := loader.Load()
//
// Validation checks cross references: every computation names a declared
// codec, every physical stream it reads or writes is declared, and no stream
// is both an input and an output of the same computation. Failures are
// configuration errors (errors.IsConfigError) and are never retried.
//
// SafeConfig wraps a Config for concurrent readers. Get returns a deep copy.
package config
