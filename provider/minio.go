package provider

import (
	"context"
	"fmt"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ensure interface is implemented
var _ ObjectStore = (*MinioStore)(nil)

// MinioConfig holds the connection settings of a MinIO (or other
// S3-compatible) endpoint reached through minio-go.
type MinioConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// MinioStore maps containers to MinIO buckets.
type MinioStore struct {
	client *minio.Client
	region string
}

// NewMinioStore returns a new MinioStore. The endpoint scheme selects TLS.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse minio endpoint: %w", err)
	}
	host := u.Host
	if host == "" {
		// bare host:port
		host = cfg.Endpoint
	}

	client, err := minio.New(host, &minio.Options{
		Region: cfg.Region,
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup minio client: %w", err)
	}

	return &MinioStore{client: client, region: cfg.Region}, nil
}

// CreateContainer creates the bucket unless it already exists.
func (m *MinioStore) CreateContainer(ctx context.Context, name string) (Container, error) {
	err := m.client.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: m.region})
	if err != nil {
		exists, existsErr := m.client.BucketExists(ctx, name)
		if existsErr != nil || !exists {
			return Container{}, fmt.Errorf("could not create bucket '%s': %w", name, err)
		}
	}
	return Container{Name: name}, nil
}

// ObjectRef resolves name inside the bucket.
func (m *MinioStore) ObjectRef(c Container, name string) ObjectRef {
	return ObjectRef{Container: c, Key: name}
}

// Upload stores the file at localPath under ref.
func (m *MinioStore) Upload(ctx context.Context, ref ObjectRef, localPath string, opts UploadOptions) error {
	putOpts := minio.PutObjectOptions{
		ContentType:    DetectContentType(localPath),
		SendContentMd5: opts.VerifyIntegrity,
	}
	if opts.PartSize > 0 {
		putOpts.PartSize = uint64(opts.PartSize)
	}
	if opts.PartConcurrency > 0 {
		putOpts.NumThreads = uint(opts.PartConcurrency)
	}
	if opts.PreserveMetadata {
		md, err := statMetadata(localPath)
		if err != nil {
			return err
		}
		putOpts.UserMetadata = md
	}

	if _, err := m.client.FPutObject(ctx, ref.Container.Name, ref.Key, localPath, putOpts); err != nil {
		return fmt.Errorf("could not store object '%s' into bucket '%s': %w", ref.Key, ref.Container.Name, err)
	}
	return nil
}

// CountObjects walks the bucket listing recursively.
func (m *MinioStore) CountObjects(ctx context.Context, c Container) (int, error) {
	count := 0
	for obj := range m.client.ListObjects(ctx, c.Name, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return 0, fmt.Errorf("could not list bucket '%s': %w", c.Name, obj.Err)
		}
		count++
	}
	return count, nil
}

// DeleteContainer removes every object and then the bucket.
func (m *MinioStore) DeleteContainer(ctx context.Context, c Container) error {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := m.client.ListObjects(listCtx, c.Name, minio.ListObjectsOptions{Recursive: true})

	// the error channel must be drained or RemoveObjects leaks its goroutine
	var firstErr error
	for rerr := range m.client.RemoveObjects(ctx, c.Name, objects, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("could not delete object '%s' from bucket '%s': %w", rerr.ObjectName, c.Name, rerr.Err)
			cancel()
		}
	}
	if firstErr != nil {
		return firstErr
	}

	if err := m.client.RemoveBucket(ctx, c.Name); err != nil {
		return fmt.Errorf("could not delete bucket '%s': %w", c.Name, err)
	}
	return nil
}
