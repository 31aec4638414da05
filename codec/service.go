package codec

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/metric"
)

// Constructor returns a fresh, uninitialized factory.
type Constructor func() Factory

// builtinFactories maps factory kinds to constructors. Kinds are resolved
// from this table; nothing is loaded by name at runtime.
func builtinFactories() map[string]Constructor {
	return map[string]Constructor{
		"json":   func() Factory { return &JSONFactory{} },
		"record": func() Factory { return &RecordFactory{} },
		"gob":    func() Factory { return &GobFactory{} },
		"none":   func() Factory { return &NoneFactory{} },
	}
}

type registration struct {
	descriptor Descriptor
	factory    Factory

	mu     sync.Mutex
	codecs map[reflect.Type]Untyped
}

// Service is the registry of named codecs. Lookups may run concurrently
// with registration.
type Service struct {
	mu      sync.RWMutex
	kinds   map[string]Constructor
	entries map[string]*registration

	logger  *slog.Logger
	metrics *metric.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics reports the number of registered codecs.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService returns a service that knows the built-in factory kinds and
// holds no codecs.
func NewService(opts ...Option) *Service {
	s := &Service{
		kinds:   builtinFactories(),
		entries: make(map[string]*registration),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterFactoryKind adds or replaces a factory kind.
func (s *Service) RegisterFactoryKind(kind string, ctor Constructor) error {
	if kind == "" || ctor == nil {
		return errors.Config(errors.ErrInvalidConfig, "CodecService", "RegisterFactoryKind", "kind and constructor are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds[kind] = ctor
	return nil
}

// RegisterContribution registers a codec descriptor contributed to point.
// A descriptor with the name of an existing codec replaces it.
func (s *Service) RegisterContribution(point string, d Descriptor) error {
	if point != ExtensionPoint {
		return errors.Config(errors.ErrUnknownExtensionPoint, "CodecService", "RegisterContribution",
			fmt.Sprintf("extension point %q", point))
	}
	if d.Name == "" {
		return errors.Config(errors.ErrMissingConfig, "CodecService", "RegisterContribution", "codec name is required")
	}

	s.mu.RLock()
	ctor, ok := s.kinds[d.Factory]
	s.mu.RUnlock()
	if !ok {
		return errors.Config(errors.ErrUnknownFactory, "CodecService", "RegisterContribution",
			fmt.Sprintf("codec %s: factory %q", d.Name, d.Factory))
	}

	factory := ctor()
	if err := factory.Init(d.Options); err != nil {
		return errors.Wrap(err, "CodecService", "RegisterContribution", "initialize factory "+d.Factory)
	}

	s.mu.Lock()
	_, replaced := s.entries[d.Name]
	s.entries[d.Name] = &registration{
		descriptor: copyDescriptor(d),
		factory:    factory,
		codecs:     make(map[reflect.Type]Untyped),
	}
	count := len(s.entries)
	s.mu.Unlock()

	s.logger.Debug("codec registered", "name", d.Name, "factory", d.Factory, "replaced", replaced)
	if s.metrics != nil {
		s.metrics.RecordCodecCount(count)
	}
	return nil
}

// Unregister removes a codec. It reports whether the codec existed.
func (s *Service) Unregister(name string) bool {
	s.mu.Lock()
	_, ok := s.entries[name]
	delete(s.entries, name)
	count := len(s.entries)
	s.mu.Unlock()

	if ok && s.metrics != nil {
		s.metrics.RecordCodecCount(count)
	}
	return ok
}

// Names returns the registered codec names, sorted.
func (s *Service) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns the registered descriptors sorted by name.
func (s *Service) Descriptors() []Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Descriptor, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, copyDescriptor(e.descriptor))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetUntyped returns the codec name built for target. It returns nil, nil
// when no codec of that name is registered.
func (s *Service) GetUntyped(name string, target reflect.Type) (Untyped, error) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.codecs[target]; ok {
		return c, nil
	}
	c, err := e.factory.NewCodec(name, target)
	if err != nil {
		return nil, err
	}
	e.codecs[target] = c
	return c, nil
}

// GetCodec returns the codec name for values of type T. Absence is not an
// error: it returns nil, nil when the name is unregistered.
func GetCodec[T any](s *Service, name string) (Codec[T], error) {
	u, err := s.GetUntyped(name, TypeOf[T]())
	if err != nil || u == nil {
		return nil, err
	}
	return Typed[T](u)
}

func copyDescriptor(d Descriptor) Descriptor {
	if d.Options != nil {
		opts := make(map[string]string, len(d.Options))
		for k, v := range d.Options {
			opts[k] = v
		}
		d.Options = opts
	}
	return d
}
