package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/revelation/internal/errs"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const objectScheme = "nats://"

// objectStore is the subset of jetstream.ObjectStore the backend uses.
type objectStore interface {
	PutBytes(ctx context.Context, name string, data []byte) (*jetstream.ObjectInfo, error)
	Delete(ctx context.Context, name string) error
}

// ObjectStoreBackend stores images in a NATS JetStream object store bucket.
type ObjectStoreBackend struct {
	bucket string
	store  objectStore
	conn   *nats.Conn
	now    func() time.Time
}

// DialObjectStore connects to url and opens (or creates) bucket.
func DialObjectStore(ctx context.Context, url, bucket string) (*ObjectStoreBackend, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.Name("revelation-feedback"))
	if err != nil {
		return nil, errs.Wrap(errs.ErrServiceUnavailable, "feedback.DialObjectStore", fmt.Errorf("failed to connect to NATS: %w", err))
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errs.Wrap(errs.ErrServiceUnavailable, "feedback.DialObjectStore", fmt.Errorf("failed to create JetStream context: %w", err))
	}
	store, err := js.ObjectStore(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "revelation feedback images",
		})
	}
	if err != nil {
		conn.Close()
		return nil, errs.Wrap(errs.ErrServiceUnavailable, "feedback.DialObjectStore", fmt.Errorf("failed to open bucket %q: %w", bucket, err))
	}
	b := newObjectStoreBackend(bucket, store)
	b.conn = conn
	return b, nil
}

func newObjectStoreBackend(bucket string, store objectStore) *ObjectStoreBackend {
	return &ObjectStoreBackend{bucket: bucket, store: store, now: time.Now}
}

// Kind implements Backend.
func (b *ObjectStoreBackend) Kind() string { return KindObjectStore }

// Save uploads data and returns nats://bucket/YYYY-MM-DD/<uuid><ext>.
func (b *ObjectStoreBackend) Save(ctx context.Context, data []byte, filename string) (string, error) {
	key := objectName(b.now(), filename)
	if _, err := b.store.PutBytes(ctx, key, data); err != nil {
		return "", errs.IO("feedback.Save", fmt.Errorf("failed to upload feedback image: %w", err))
	}
	return objectScheme + b.bucket + "/" + key, nil
}

// Delete removes an object by the path Save returned. Missing objects are not an error.
func (b *ObjectStoreBackend) Delete(ctx context.Context, path string) error {
	key, err := b.key(path)
	if err != nil {
		return err
	}
	if err := b.store.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return errs.IO("feedback.Delete", fmt.Errorf("failed to delete feedback image: %w", err))
	}
	return nil
}

func (b *ObjectStoreBackend) key(path string) (string, error) {
	prefix := objectScheme + b.bucket + "/"
	if !strings.HasPrefix(path, prefix) || len(path) == len(prefix) {
		return "", errs.Invalid("feedback.Delete", "path %q is not in bucket %q", path, b.bucket)
	}
	return strings.TrimPrefix(path, prefix), nil
}

// Close drains the NATS connection.
func (b *ObjectStoreBackend) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Drain()
}
