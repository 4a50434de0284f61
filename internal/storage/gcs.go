package storage

import (
	"context"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsPublicHost = "https://storage.googleapis.com"

// GCSBucket stores objects in a Google Cloud Storage bucket.
type GCSBucket struct {
	client *gcs.Client
	name   string
	base   string
}

// NewGCSBucket opens bucket name. publicBase overrides the default
// storage.googleapis.com URL (for a CDN in front of the bucket). An empty
// credentialsFile uses application default credentials.
func NewGCSBucket(ctx context.Context, name, publicBase, credentialsFile string) (*GCSBucket, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	if publicBase == "" {
		publicBase = gcsPublicHost + "/" + name
	}
	return &GCSBucket{client: client, name: name, base: publicBase}, nil
}

func (b *GCSBucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := b.client.Bucket(b.name).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=3600"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcs write %s/%s: %w", b.name, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s/%s: %w", b.name, key, err)
	}
	return nil
}

func (b *GCSBucket) PublicURL(key string) string {
	return publicURL(b.base, key)
}

func (b *GCSBucket) Close() error {
	return b.client.Close()
}
