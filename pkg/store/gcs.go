package store

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/ghlexport/pkg/errors"
)

// NewGCSStore stores snapshots in a Google Cloud Storage bucket. An empty
// credentialsFile uses application default credentials.
func NewGCSStore(ctx context.Context, bucketName, prefix, credentialsFile string, opts ...Option) (*ObjectStore, error) {
	if bucketName == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "gcs store requires a bucket")
	}

	var clientOpts []option.ClientOption
	if credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create GCS client")
	}
	b := &gcsBucket{client: client, handle: client.Bucket(bucketName), name: bucketName}
	return newObjectStore("gcs", b, prefix, buildOptions(opts))
}

type gcsBucket struct {
	client *storage.Client
	handle *storage.BucketHandle
	name   string
}

func (b *gcsBucket) Put(ctx context.Context, key string, body []byte) error {
	w := b.handle.Object(key).NewWriter(ctx)
	w.ContentType = contentType(key)
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (b *gcsBucket) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.handle.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, errObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *gcsBucket) URI(key string) string { return "gs://" + b.name + "/" + key }

func (b *gcsBucket) Close() error { return b.client.Close() }
