package computation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/pkg/options"
	"github.com/c360/streamcompute/record"
)

// Computation is a named unit of stream processing driven by a runtime.
type Computation interface {
	Metadata() Metadata
	// Init runs once before the first record.
	Init(ctx Context) error
	// ProcessRecord handles one record read from the logical input stream.
	ProcessRecord(ctx Context, input string, r record.Record) error
	// ProcessTimer handles a timer that came due.
	ProcessTimer(ctx Context, key string, t int64) error
	Destroy()
}

// Base provides no-op Init, ProcessTimer and Destroy. Embed it and
// implement ProcessRecord.
type Base struct {
	metadata Metadata
}

// NewBase returns a Base for metadata.
func NewBase(metadata Metadata) Base {
	return Base{metadata: metadata}
}

// Metadata returns the computation metadata.
func (b Base) Metadata() Metadata { return b.metadata }

// Init does nothing.
func (Base) Init(Context) error { return nil }

// ProcessTimer does nothing.
func (Base) ProcessTimer(Context, string, int64) error { return nil }

// Destroy does nothing.
func (Base) Destroy() {}

// Forward copies every input record to each output stream. With option
// checkpoint-every=N it asks for a checkpoint every N records.
type Forward struct {
	Base
	checkpointEvery int
	seen            int
}

// NewForward returns a forwarding computation.
func NewForward(metadata Metadata, checkpointEvery int) *Forward {
	return &Forward{Base: NewBase(metadata), checkpointEvery: checkpointEvery}
}

// ProcessRecord produces r to every output.
func (f *Forward) ProcessRecord(ctx Context, _ string, r record.Record) error {
	for _, out := range f.metadata.Outputs {
		if err := ctx.ProduceRecord(out, r); err != nil {
			return err
		}
	}
	f.seen++
	if f.checkpointEvery > 0 && f.seen%f.checkpointEvery == 0 {
		ctx.AskForCheckpoint()
	}
	return nil
}

// Constructor builds a computation from metadata and options.
type Constructor func(metadata Metadata, opts options.Map) (Computation, error)

// Registry maps computation kinds to constructors.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns a registry holding the built-in "forward" kind.
func NewRegistry() *Registry {
	return &Registry{constructors: map[string]Constructor{
		"forward": func(metadata Metadata, opts options.Map) (Computation, error) {
			every, err := opts.Int("checkpoint-every", 0)
			if err != nil {
				return nil, err
			}
			return NewForward(metadata, every), nil
		},
	}}
}

// Register adds or replaces a kind.
func (r *Registry) Register(kind string, ctor Constructor) error {
	if kind == "" || ctor == nil {
		return errors.Config(errors.ErrInvalidConfig, "ComputationRegistry", "Register", "kind and constructor are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[kind] = ctor
	return nil
}

// Kinds lists registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.constructors))
	for k := range r.constructors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Create validates metadata and builds a computation of kind.
func (r *Registry) Create(kind string, metadata Metadata, opts map[string]string) (Computation, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Config(errors.ErrUnknownFactory, "ComputationRegistry", "Create",
			fmt.Sprintf("computation kind %q", kind))
	}
	if err := metadata.Validate(); err != nil {
		return nil, err
	}
	return ctor(metadata, options.Map(opts))
}
