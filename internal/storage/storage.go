// Package storage contains the local disk store for uploads and the S3-compatible object store
// that finished uploads may be offloaded to.
package storage

import (
	"context"
	"io"
	"time"
)

// PutObjectOptions describe one offloaded version. Size is the version's byte count,
// or -1 when unknown.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo is what the bucket reports about a stored version.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// ObjectStore holds offloaded file versions, keyed by collection/file/version.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// PresignGet returns a credential-free download URL valid for expiry.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
