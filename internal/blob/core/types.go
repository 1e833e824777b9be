// Package core defines the blob storage abstraction used by the event
// archive. Implementations live under internal/infra/blob.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete blob storage backend.
type Driver string

const (
	// DriverFilesystem stores blobs under a local directory root.
	DriverFilesystem Driver = "fs"
	// DriverS3 stores blobs in an S3 or MinIO bucket.
	DriverS3 Driver = "s3"
	// DriverMemory stores blobs in process memory, for tests.
	DriverMemory Driver = "memory"
)

// PutOptions carries optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a minimal, S3-shaped blob interface. Archive keys are immutable:
// Put fails if the key already exists.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	// Delete reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns blobs under prefix, ordered by key ascending.
	List(ctx context.Context, prefix string) ([]Info, error)
	// SignURL returns a time-limited GET URL for the key. Drivers without
	// URL support return ErrUnsupported.
	SignURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Driver() Driver
}

// ErrUnsupported is returned when a driver lacks an optional capability.
var ErrUnsupported = errors.New("blob: unsupported operation")
