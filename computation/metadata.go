package computation

import (
	"fmt"
	"sort"

	"github.com/c360/streamcompute/errors"
)

// Metadata declares a computation's streams and the mapping from the
// logical names used in processing code to physical stream names. It is
// built once with the topology and only read afterwards.
type Metadata struct {
	Name    string            `json:"name" yaml:"name"`
	Inputs  []string          `json:"inputs" yaml:"inputs"`
	Outputs []string          `json:"outputs" yaml:"outputs"`
	Mapping map[string]string `json:"mapping,omitempty" yaml:"mapping,omitempty"`
}

// NewMetadata returns metadata without a mapping: logical and physical
// names are the same.
func NewMetadata(name string, inputs, outputs []string) Metadata {
	return Metadata{
		Name:    name,
		Inputs:  append([]string(nil), inputs...),
		Outputs: append([]string(nil), outputs...),
	}
}

// WithMapping returns a copy of m using the given logical to physical
// mapping. Names absent from the mapping resolve to themselves.
func (m Metadata) WithMapping(mapping map[string]string) Metadata {
	out := m
	out.Mapping = make(map[string]string, len(mapping))
	for k, v := range mapping {
		out.Mapping[k] = v
	}
	return out
}

// Resolve maps a logical stream name to its physical name.
func (m Metadata) Resolve(stream string) string {
	if physical, ok := m.Mapping[stream]; ok {
		return physical
	}
	return stream
}

// IsOutput reports whether physical is the resolved name of a declared output.
func (m Metadata) IsOutput(physical string) bool {
	for _, out := range m.Outputs {
		if m.Resolve(out) == physical {
			return true
		}
	}
	return false
}

// PhysicalInputs returns the resolved input stream names.
func (m Metadata) PhysicalInputs() []string {
	return m.resolveAll(m.Inputs)
}

// PhysicalOutputs returns the resolved output stream names.
func (m Metadata) PhysicalOutputs() []string {
	return m.resolveAll(m.Outputs)
}

func (m Metadata) resolveAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = m.Resolve(n)
	}
	return out
}

// Validate checks the metadata is usable by a runner.
func (m Metadata) Validate() error {
	if m.Name == "" {
		return errors.Config(errors.ErrMissingConfig, "Metadata", "Validate", "computation name is required")
	}
	seen := make(map[string]bool)
	for _, in := range m.PhysicalInputs() {
		if in == "" {
			return errors.Config(errors.ErrInvalidConfig, "Metadata", "Validate",
				fmt.Sprintf("computation %s: empty input stream name", m.Name))
		}
		seen[in] = true
	}
	for _, out := range m.PhysicalOutputs() {
		if out == "" {
			return errors.Config(errors.ErrInvalidConfig, "Metadata", "Validate",
				fmt.Sprintf("computation %s: empty output stream name", m.Name))
		}
		if seen[out] {
			return errors.Config(errors.ErrInvalidConfig, "Metadata", "Validate",
				fmt.Sprintf("computation %s: stream %s is both input and output", m.Name, out))
		}
	}
	return nil
}

// String is used in logs.
func (m Metadata) String() string {
	mapping := make([]string, 0, len(m.Mapping))
	for k, v := range m.Mapping {
		mapping = append(mapping, k+"->"+v)
	}
	sort.Strings(mapping)
	return fmt.Sprintf("Metadata{name=%s, inputs=%v, outputs=%v, mapping=%v}", m.Name, m.Inputs, m.Outputs, mapping)
}
