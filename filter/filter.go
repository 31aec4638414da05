package filter

import (
	"context"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/record"
)

// Filter is a cross-cutting hook around log append and read.
type Filter interface {
	Name() string
	BeforeAppend(ctx context.Context, r *record.Record) (*record.Record, error)
	AfterAppend(ctx context.Context, r *record.Record, off record.LogOffset) (*record.Record, error)
	AfterRead(ctx context.Context, r *record.Record, off record.LogOffset) (*record.Record, error)
}

// Base implements every hook as a pass-through. Embed it and override the
// hooks a filter cares about.
type Base struct{}

// BeforeAppend returns r unchanged.
func (Base) BeforeAppend(_ context.Context, r *record.Record) (*record.Record, error) {
	return r, nil
}

// AfterAppend returns r unchanged.
func (Base) AfterAppend(_ context.Context, r *record.Record, _ record.LogOffset) (*record.Record, error) {
	return r, nil
}

// AfterRead returns r unchanged.
func (Base) AfterRead(_ context.Context, r *record.Record, _ record.LogOffset) (*record.Record, error) {
	return r, nil
}

// Chain is an ordered sequence of filters.
type Chain interface {
	// AddFilter appends f and returns the chain for fluent registration.
	AddFilter(f Filter) (Chain, error)
	// BeforeAppend runs filters in registration order.
	BeforeAppend(ctx context.Context, r *record.Record) (*record.Record, error)
	// AfterAppend runs filters in registration order.
	AfterAppend(ctx context.Context, r *record.Record, off record.LogOffset) (*record.Record, error)
	// AfterRead runs filters in reverse registration order.
	AfterRead(ctx context.Context, r *record.Record, off record.LogOffset) (*record.Record, error)
	// Len returns the number of filters.
	Len() int
}

type chain struct {
	filters []Filter
}

// NewChain returns an empty chain. Build it once at topology construction;
// it is not safe for concurrent mutation.
func NewChain(filters ...Filter) (Chain, error) {
	c := &chain{}
	for _, f := range filters {
		if _, err := c.AddFilter(f); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *chain) AddFilter(f Filter) (Chain, error) {
	if f == nil {
		return c, errors.Config(errors.ErrNilFilter, "Chain", "AddFilter", "cannot add a nil filter")
	}
	c.filters = append(c.filters, f)
	return c, nil
}

func (c *chain) Len() int { return len(c.filters) }

func (c *chain) BeforeAppend(ctx context.Context, r *record.Record) (*record.Record, error) {
	var err error
	for _, f := range c.filters {
		if r, err = f.BeforeAppend(ctx, r); err != nil || r == nil {
			return nil, wrapHook(err, f, "BeforeAppend")
		}
	}
	return r, nil
}

func (c *chain) AfterAppend(ctx context.Context, r *record.Record, off record.LogOffset) (*record.Record, error) {
	var err error
	for _, f := range c.filters {
		if r, err = f.AfterAppend(ctx, r, off); err != nil || r == nil {
			return nil, wrapHook(err, f, "AfterAppend")
		}
	}
	return r, nil
}

func (c *chain) AfterRead(ctx context.Context, r *record.Record, off record.LogOffset) (*record.Record, error) {
	var err error
	for i := len(c.filters) - 1; i >= 0; i-- {
		f := c.filters[i]
		if r, err = f.AfterRead(ctx, r, off); err != nil || r == nil {
			return nil, wrapHook(err, f, "AfterRead")
		}
	}
	return r, nil
}

func wrapHook(err error, f Filter, hook string) error {
	if err == nil {
		return nil
	}
	// Keep the filter's own classification.
	var ce *errors.ClassifiedError
	if errors.As(err, &ce) {
		return err
	}
	return errors.WrapTransient(err, "Filter["+f.Name()+"]", hook, "apply filter")
}

type noFilterChain struct{}

// NoFilterChain is the zero-cost chain for computations without filters.
// AddFilter is a no-op and every hook returns the record untouched.
var NoFilterChain Chain = noFilterChain{}

func (n noFilterChain) AddFilter(Filter) (Chain, error) { return n, nil }

func (noFilterChain) BeforeAppend(_ context.Context, r *record.Record) (*record.Record, error) {
	return r, nil
}

func (noFilterChain) AfterAppend(_ context.Context, r *record.Record, _ record.LogOffset) (*record.Record, error) {
	return r, nil
}

func (noFilterChain) AfterRead(_ context.Context, r *record.Record, _ record.LogOffset) (*record.Record, error) {
	return r, nil
}

func (noFilterChain) Len() int { return 0 }
