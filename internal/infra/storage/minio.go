package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options for the MinIO artifact archive.
type Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Store archives raw engine output in a MinIO bucket.
type Store struct {
	client     *minio.Client
	bucketName string
}

// New buat koneksi MinIO dan pastikan bucket ada
func New(ctx context.Context, opts Options) (*Store, error) {
	s, err := newStore(opts)
	if err != nil {
		return nil, err
	}
	exists, err := s.client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("minio make bucket %s: %w", opts.Bucket, err)
		}
	}
	return s, nil
}

func newStore(opts Options) (*Store, error) {
	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:       opts.UseSSL,
		Region:       opts.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Store{client: cli, bucketName: opts.Bucket}, nil
}

// Archive implementasi ArtifactStore: upload data in memory under key.
func (s *Store) Archive(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("minio put %s: %w", key, err)
	}
	return s.objectURL(key), nil
}

// objectURL is the path-style URL of key. It is only fetchable when the
// bucket is public; private buckets need a presigned URL.
func (s *Store) objectURL(key string) string {
	endpoint := s.client.EndpointURL()
	u := url.URL{Scheme: endpoint.Scheme, Host: endpoint.Host, Path: "/" + s.bucketName + "/" + key}
	return u.String()
}
