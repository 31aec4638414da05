package jslog

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/filter"
	"github.com/c360/streamcompute/natsclient"
)

// ObjectBlobStore keeps external record payloads in a JetStream object
// store.
type ObjectBlobStore struct {
	client *natsclient.Client
	store  jetstream.ObjectStore
}

var _ filter.BlobStore = (*ObjectBlobStore)(nil)

// NewObjectBlobStore opens or creates the bucket.
func NewObjectBlobStore(ctx context.Context, client *natsclient.Client, bucket string) (*ObjectBlobStore, error) {
	store, err := client.EnsureObjectStore(ctx, jetstream.ObjectStoreConfig{Bucket: sanitize(bucket)})
	if err != nil {
		return nil, err
	}
	return &ObjectBlobStore{client: client, store: store}, nil
}

// Put stores data under key.
func (s *ObjectBlobStore) Put(ctx context.Context, key string, data []byte) error {
	err := s.client.Do(ctx, "object_put", func(ctx context.Context, _ jetstream.JetStream) error {
		_, err := s.store.PutBytes(ctx, key, data)
		return err
	})
	if err != nil {
		return errors.WrapTransient(err, "ObjectBlobStore", "Put", "store object")
	}
	return nil
}

// Get loads the object stored under key.
func (s *ObjectBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.client.Do(ctx, "object_get", func(ctx context.Context, _ jetstream.JetStream) error {
		var err error
		data, err = s.store.GetBytes(ctx, key)
		return err
	})
	if stderrors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key),
			"ObjectBlobStore", "Get", "object lookup")
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "ObjectBlobStore", "Get", "load object")
	}
	return data, nil
}
