package source

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
)

// GCSClient abstracts the read side of *storage.Client so GCSSource can be
// tested without a real bucket.
type GCSClient interface {
	Bucket(name string) GCSBucketHandle
}

// GCSBucketHandle abstracts a *storage.BucketHandle.
type GCSBucketHandle interface {
	Object(name string) GCSObjectHandle
}

// GCSObjectHandle abstracts a *storage.ObjectHandle.
type GCSObjectHandle interface {
	NewReader(ctx context.Context) (GCSReader, error)
}

// GCSReader is an object body together with the metadata GCSSource needs.
type GCSReader interface {
	io.ReadCloser
	ContentType() string
	CacheControl() string
}

// NewGCSClientAdapter makes a *storage.Client conform to GCSClient.
func NewGCSClientAdapter(client *storage.Client) GCSClient {
	if client == nil {
		return nil
	}
	return &gcsClientAdapter{client: client}
}

type gcsClientAdapter struct {
	client *storage.Client
}

func (a *gcsClientAdapter) Bucket(name string) GCSBucketHandle {
	return &gcsBucketHandleAdapter{handle: a.client.Bucket(name)}
}

type gcsBucketHandleAdapter struct {
	handle *storage.BucketHandle
}

func (a *gcsBucketHandleAdapter) Object(name string) GCSObjectHandle {
	return &gcsObjectHandleAdapter{handle: a.handle.Object(name)}
}

type gcsObjectHandleAdapter struct {
	handle *storage.ObjectHandle
}

func (a *gcsObjectHandleAdapter) NewReader(ctx context.Context) (GCSReader, error) {
	r, err := a.handle.NewReader(ctx)
	if err != nil {
		return nil, err
	}
	return gcsReaderAdapter{Reader: r}, nil
}

type gcsReaderAdapter struct {
	*storage.Reader
}

func (r gcsReaderAdapter) ContentType() string  { return r.Attrs.ContentType }
func (r gcsReaderAdapter) CacheControl() string { return r.Attrs.CacheControl }
