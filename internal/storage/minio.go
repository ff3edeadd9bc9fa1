package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"filescdn/internal/config"
)

// DefaultObjectType is stored for versions whose MIME type was never detected.
const DefaultObjectType = "application/octet-stream"

// offloadBucket keeps offloaded file versions in one S3-compatible bucket.
type offloadBucket struct {
	client *minio.Client
	name   string
}

// NewOffloadBucket connects to the bucket that finished uploads are offloaded to,
// creating it when it does not exist yet.
func NewOffloadBucket(cfg config.MinIOConfig) (ObjectStore, error) {
	if err := validateBucketConfig(cfg); err != nil {
		return nil, err
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
	if err != nil {
		return nil, fmt.Errorf("offload bucket client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	found, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("lookup offload bucket %q: %w", cfg.Bucket, err)
	}
	if !found {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make offload bucket %q: %w", cfg.Bucket, err)
		}
	}
	return &offloadBucket{client: cli, name: cfg.Bucket}, nil
}

func validateBucketConfig(cfg config.MinIOConfig) error {
	switch {
	case cfg.Endpoint == "":
		return errors.New("offload bucket: endpoint is required")
	case cfg.AccessKey == "" || cfg.SecretKey == "":
		return errors.New("offload bucket: access and secret keys are required")
	case cfg.Bucket == "":
		return errors.New("offload bucket: bucket name is required")
	}
	return nil
}

// versionPutOptions maps a version upload to minio options. Versions without a
// detected type are stored as DefaultObjectType so downloads never get an empty header.
func versionPutOptions(opt PutObjectOptions) minio.PutObjectOptions {
	ct := opt.ContentType
	if ct == "" {
		ct = DefaultObjectType
	}
	return minio.PutObjectOptions{
		ContentType:  ct,
		UserMetadata: opt.Metadata,
	}
}

func (b *offloadBucket) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	po := versionPutOptions(opt)
	up, err := b.client.PutObject(ctx, b.name, key, r, opt.Size, po)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("offload %s: %w", key, err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         up.Size,
		ETag:         up.ETag,
		ContentType:  po.ContentType,
		LastModified: up.LastModified,
		Metadata:     opt.Metadata,
	}, nil
}

// Get streams an offloaded version. The caller closes the reader.
func (b *offloadBucket) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, ObjectInfo{}, err
	}
	ct := st.ContentType
	if ct == "" {
		ct = DefaultObjectType
	}
	return obj, ObjectInfo{
		Key:          key,
		Size:         st.Size,
		ETag:         st.ETag,
		ContentType:  ct,
		LastModified: st.LastModified,
		Metadata:     st.UserMetadata,
	}, nil
}

func (b *offloadBucket) Delete(ctx context.Context, key string) error {
	return b.client.RemoveObject(ctx, b.name, key, minio.RemoveObjectOptions{})
}

// PresignGet returns a download link for key that stops working after expiry.
func (b *offloadBucket) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := b.client.PresignedGetObject(ctx, b.name, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
