package provider

import (
	"context"
	"time"
)

// FileInfo represents the standard metadata for a file or a directory
// on the local source side.
type FileInfo interface {
	Name() string
	Size() int64
	IsDir() bool
	ModTime() time.Time
}

// Container is a handle to a remote container or bucket created for one run.
type Container struct {
	Name string
}

// ObjectRef addresses a single object inside a container.
type ObjectRef struct {
	Container Container
	Key       string
}

// UploadOptions tune a single upload.
type UploadOptions struct {
	// PartSize is the block/chunk size hint in bytes. Zero lets the backend decide.
	PartSize int64

	// PartConcurrency is the number of parts of one object uploaded in parallel.
	PartConcurrency int

	// VerifyIntegrity asks the backend to checksum the payload in transit.
	VerifyIntegrity bool

	// PreserveMetadata stores the source mode and mtime alongside the object.
	PreserveMetadata bool
}

// ObjectStore represents a remote object store backend.
// A typical ObjectStore might be S3, MinIO, Azure Blob or a local directory.
type ObjectStore interface {
	// CreateContainer creates the named container. Creating a container
	// that already exists and is owned by the caller is not an error.
	CreateContainer(ctx context.Context, name string) (Container, error)

	// ObjectRef resolves the reference of an object inside a container.
	ObjectRef(c Container, name string) ObjectRef

	// Upload copies the file at localPath to ref and returns when the
	// object is durable or the upload failed.
	Upload(ctx context.Context, ref ObjectRef, localPath string, opts UploadOptions) error

	// CountObjects returns the number of objects currently in the container.
	CountObjects(ctx context.Context, c Container) (int, error)

	// DeleteContainer removes the container and everything in it.
	DeleteContainer(ctx context.Context, c Container) error
}
