package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	s3client "github.com/kenneth/identity-helper/internal/s3"
)

// S3Backend stores objects in a single bucket of an S3 compatible service.
type S3Backend struct {
	client s3client.Client
	bucket string
}

// NewS3Backend returns a backend for bucket.
func NewS3Backend(client s3client.Client, bucket string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket}
}

// Get implements Backend.
func (b *S3Backend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.GetObject(ctx, b.bucket, key)
	if err != nil {
		if errors.Is(err, s3client.ErrNoSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return data, nil
}

// Put implements Backend.
func (b *S3Backend) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	return b.client.PutObject(ctx, b.bucket, key, data, s3client.PutOptions{
		ContentType: opts.ContentType,
		ACL:         opts.ACL,
	})
}

// List implements Backend. Objects in nested prefixes are not direct
// children of folder and are skipped. An empty prefix lists as no objects, so
// every error here, a missing bucket included, is returned as is.
func (b *S3Backend) List(ctx context.Context, folder, namePrefix string) ([]string, error) {
	dir := ""
	if folder != "" {
		dir = folder + "/"
	}
	objects, err := b.client.ListObjects(ctx, b.bucket, dir+namePrefix)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, dir)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Ping implements Backend.
func (b *S3Backend) Ping(ctx context.Context) error {
	return b.client.HeadBucket(ctx, b.bucket)
}
