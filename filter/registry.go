package filter

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/metric"
	"github.com/c360/streamcompute/pkg/options"
)

// Spec is the configuration of one filter in a chain.
type Spec struct {
	Kind    string            `json:"kind" yaml:"kind"`
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Dependencies are the collaborators a filter factory may need.
type Dependencies struct {
	Owner      string
	Logger     *slog.Logger
	Metrics    metric.MetricsRegistrar
	BlobStores map[string]BlobStore
}

// Factory builds a filter from its options.
type Factory func(opts options.Map, deps Dependencies) (Filter, error)

// Registry maps filter kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in filter kinds:
// idempotent, external-store and metrics.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories["idempotent"] = newIdempotentFromOptions
	r.factories["external-store"] = newExternalStoreFromOptions
	r.factories["metrics"] = newMetricsFromOptions
	return r
}

// Register adds or replaces a filter kind.
func (r *Registry) Register(kind string, factory Factory) error {
	if kind == "" || factory == nil {
		return errors.Config(errors.ErrInvalidConfig, "Registry", "Register", "filter kind and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
	return nil
}

// Kinds lists the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build creates one filter.
func (r *Registry) Build(spec Spec, deps Dependencies) (Filter, error) {
	r.mu.RLock()
	factory, ok := r.factories[spec.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Config(errors.ErrUnknownFactory, "Registry", "Build", fmt.Sprintf("filter kind %q", spec.Kind))
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return factory(options.Map(spec.Options), deps)
}

// BuildChain creates a chain from specs in order. No specs yields
// NoFilterChain.
func (r *Registry) BuildChain(specs []Spec, deps Dependencies) (Chain, error) {
	if len(specs) == 0 {
		return NoFilterChain, nil
	}
	c, _ := NewChain()
	for _, spec := range specs {
		f, err := r.Build(spec, deps)
		if err != nil {
			return nil, err
		}
		if _, err := c.AddFilter(f); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func newIdempotentFromOptions(opts options.Map, deps Dependencies) (Filter, error) {
	capacity, err := opts.Int("capacity", DefaultIdempotentCapacity)
	if err != nil {
		return nil, err
	}
	return NewIdempotent(NewIdempotentPolicy(capacity), deps.Logger), nil
}

func newExternalStoreFromOptions(opts options.Map, deps Dependencies) (Filter, error) {
	name := opts.String("store", "default")
	store, ok := deps.BlobStores[name]
	if !ok {
		return nil, errors.Config(errors.ErrMissingConfig, "Registry", "Build", fmt.Sprintf("blob store %q is not configured", name))
	}
	threshold, err := opts.Int("threshold", DefaultExternalThreshold)
	if err != nil {
		return nil, err
	}
	return NewExternalStore(store,
		WithThreshold(threshold),
		WithKeyPrefix(opts.String("prefix", "record-")),
		WithExternalLogger(deps.Logger))
}

func newMetricsFromOptions(opts options.Map, deps Dependencies) (Filter, error) {
	owner := opts.String("owner", deps.Owner)
	if owner == "" {
		owner = "filter"
	}
	return NewMetrics(deps.Metrics, owner)
}
