package filter

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/record"
)

// DefaultExternalThreshold is the data size above which a record payload is
// moved to the blob store.
const DefaultExternalThreshold = 1 << 20

// ExternalStore moves large record payloads out of the log. Before append, a
// record whose data exceeds the threshold gets its data written to the blob
// store and replaced by the blob key, with FlagExternalValue set. After read,
// flagged records are rehydrated.
type ExternalStore struct {
	store     BlobStore
	threshold int
	prefix    string
	logger    *slog.Logger
}

// ExternalStoreOption configures an ExternalStore filter.
type ExternalStoreOption func(*ExternalStore)

// WithThreshold sets the size above which payloads are moved.
func WithThreshold(n int) ExternalStoreOption {
	return func(f *ExternalStore) {
		if n > 0 {
			f.threshold = n
		}
	}
}

// WithKeyPrefix sets the prefix of generated blob keys.
func WithKeyPrefix(prefix string) ExternalStoreOption {
	return func(f *ExternalStore) { f.prefix = prefix }
}

// WithExternalLogger sets the logger.
func WithExternalLogger(logger *slog.Logger) ExternalStoreOption {
	return func(f *ExternalStore) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewExternalStore builds the filter. The store is required.
func NewExternalStore(store BlobStore, opts ...ExternalStoreOption) (*ExternalStore, error) {
	if store == nil {
		return nil, errors.Config(errors.ErrMissingConfig, "ExternalStore", "New", "blob store is required")
	}
	f := &ExternalStore{
		store:     store,
		threshold: DefaultExternalThreshold,
		prefix:    "record-",
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Name returns "external-store".
func (f *ExternalStore) Name() string { return "external-store" }

// BeforeAppend offloads large payloads.
func (f *ExternalStore) BeforeAppend(ctx context.Context, r *record.Record) (*record.Record, error) {
	if len(r.Data) <= f.threshold || r.Flags.Has(record.FlagExternalValue) {
		return r, nil
	}
	key := f.prefix + uuid.NewString()
	if err := f.store.Put(ctx, key, r.Data); err != nil {
		return nil, errors.WrapTransient(err, "ExternalStore", "BeforeAppend", "store payload")
	}
	f.logger.Debug("record payload moved to external store", "key", r.Key, "blob", key, "size", len(r.Data))
	out := r.WithData([]byte(key)).WithFlags(r.Flags | record.FlagExternalValue)
	return &out, nil
}

// AfterAppend passes the record through.
func (f *ExternalStore) AfterAppend(_ context.Context, r *record.Record, _ record.LogOffset) (*record.Record, error) {
	return r, nil
}

// AfterRead restores offloaded payloads.
func (f *ExternalStore) AfterRead(ctx context.Context, r *record.Record, off record.LogOffset) (*record.Record, error) {
	if !r.Flags.Has(record.FlagExternalValue) {
		return r, nil
	}
	data, err := f.store.Get(ctx, string(r.Data))
	if err != nil {
		f.logger.Error("cannot rehydrate record", "key", r.Key, "offset", off.String(), "error", err)
		return nil, err
	}
	out := r.WithData(data).WithFlags(r.Flags &^ record.FlagExternalValue)
	return &out, nil
}
