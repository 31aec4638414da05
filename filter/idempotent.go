package filter

import (
	"context"
	"log/slog"

	"github.com/c360/streamcompute/record"
)

// DefaultIdempotentCapacity is the number of recent keys remembered.
const DefaultIdempotentCapacity = 100

// IdempotentPolicy suppresses keys seen recently. It keeps the last N keys
// in a ring; there is no time based expiration, so a key repeated after N
// other insertions is no longer suppressed. This gives best-effort
// at-most-once delivery, not exactly-once.
//
// A policy belongs to one filter chain and is not safe for concurrent use.
type IdempotentPolicy struct {
	keys []string
	next int
	size int
}

// NewIdempotentPolicy returns a policy remembering capacity keys. A
// non-positive capacity uses DefaultIdempotentCapacity.
func NewIdempotentPolicy(capacity int) *IdempotentPolicy {
	if capacity <= 0 {
		capacity = DefaultIdempotentCapacity
	}
	return &IdempotentPolicy{keys: make([]string, capacity)}
}

// ShouldSkip reports whether key is among the last N keys, then records it,
// evicting the oldest key when full. The context argument is passed through
// for policies that need it and is unused here.
func (p *IdempotentPolicy) ShouldSkip(key string, _ any) bool {
	seen := p.contains(key)
	p.keys[p.next] = key
	p.next = (p.next + 1) % len(p.keys)
	if p.size < len(p.keys) {
		p.size++
	}
	return seen
}

func (p *IdempotentPolicy) contains(key string) bool {
	for i := 0; i < p.size; i++ {
		if p.keys[i] == key {
			return true
		}
	}
	return false
}

// Capacity returns the window size.
func (p *IdempotentPolicy) Capacity() int { return len(p.keys) }

// Idempotent vetoes records whose key was appended recently.
type Idempotent struct {
	Base
	policy *IdempotentPolicy
	logger *slog.Logger
}

// NewIdempotent wraps a policy into a filter.
func NewIdempotent(policy *IdempotentPolicy, logger *slog.Logger) *Idempotent {
	if policy == nil {
		policy = NewIdempotentPolicy(DefaultIdempotentCapacity)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Idempotent{policy: policy, logger: logger}
}

// Name returns "idempotent".
func (f *Idempotent) Name() string { return "idempotent" }

// BeforeAppend drops the record when its key is in the recency window.
func (f *Idempotent) BeforeAppend(ctx context.Context, r *record.Record) (*record.Record, error) {
	if f.policy.ShouldSkip(r.Key, ctx) {
		f.logger.Debug("skipping duplicate record", "key", r.Key)
		return nil, nil
	}
	return r, nil
}
