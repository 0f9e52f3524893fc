// Package objectstore provides the NATS JetStream object store holding the
// text the synthesis worker reads.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultMaxObjectBytes bounds the size of a text object the store will read.
const DefaultMaxObjectBytes = 1 << 20

// ErrObjectTooLarge is returned for text objects above the size bound.
var ErrObjectTooLarge = errors.New("text object exceeds size limit")

// TextStore implements core.TextStore on a JetStream object store bucket.
type TextStore struct {
	bucket   string
	store    nats.ObjectStore
	maxBytes int64
}

// New binds to bucketName, creating the bucket when it does not exist.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*TextStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Synthesis input text for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &TextStore{
		bucket:   bucketName,
		store:    store,
		maxBytes: DefaultMaxObjectBytes,
	}, nil
}

// SetMaxBytes changes the size bound; values below one are ignored.
func (s *TextStore) SetMaxBytes(maxBytes int64) {
	if maxBytes > 0 {
		s.maxBytes = maxBytes
	}
}

// Download retrieves the text stored under key.
func (s *TextStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := s.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, s.bucket, err)
	}

	info, infoErr := obj.Info()
	if infoErr == nil && info.Size > uint64(s.maxBytes) {
		_ = obj.Close()

		return nil, fmt.Errorf("%w: '%s' is %d bytes", ErrObjectTooLarge, key, info.Size)
	}

	data, readErr := io.ReadAll(io.LimitReader(obj, s.maxBytes+1))
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: '%s'", ErrObjectTooLarge, key)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload stores text under key. The client uses it to stage worker input.
func (s *TextStore) Upload(_ context.Context, key string, data []byte) error {
	_, err := s.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, s.bucket, err)
	}

	return nil
}
