package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// ensure interface is implemented
var _ ObjectStore = (*AzureStore)(nil)

// AzureStore maps containers to Azure Blob Storage containers.
type AzureStore struct {
	client *azblob.Client
}

// NewAzureStore connects with an account connection string
// ("DefaultEndpointsProtocol=https;AccountName=…;AccountKey=…").
func NewAzureStore(connectionString string) (*AzureStore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing azure connection string: %w", err)
	}
	return &AzureStore{client: client}, nil
}

// CreateContainer creates the container if it does not exist yet.
func (a *AzureStore) CreateContainer(ctx context.Context, name string) (Container, error) {
	if _, err := a.client.CreateContainer(ctx, name, nil); err != nil {
		if !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return Container{}, fmt.Errorf("creating container %s: %w", name, err)
		}
	}
	return Container{Name: name}, nil
}

// ObjectRef resolves the block blob name inside the container.
func (a *AzureStore) ObjectRef(c Container, name string) ObjectRef {
	return ObjectRef{Container: c, Key: name}
}

// Upload uploads localPath as a block blob. Content MD5 is never stored.
func (a *AzureStore) Upload(ctx context.Context, ref ObjectRef, localPath string, opts UploadOptions) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	contentType := DetectContentType(localPath)
	uploadOpts := &azblob.UploadFileOptions{
		BlockSize:   opts.PartSize,
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	}
	if opts.PartConcurrency > 0 {
		uploadOpts.Concurrency = uint16(opts.PartConcurrency)
	}
	if opts.PreserveMetadata {
		md, err := statMetadata(localPath)
		if err != nil {
			return err
		}
		uploadOpts.Metadata = make(map[string]*string, len(md))
		for k, v := range md {
			uploadOpts.Metadata[k] = &v
		}
	}

	if _, err := a.client.UploadFile(ctx, ref.Container.Name, ref.Key, f, uploadOpts); err != nil {
		return fmt.Errorf("uploading %s to container %s: %w", ref.Key, ref.Container.Name, err)
	}
	return nil
}

// CountObjects pages through the flat blob listing.
func (a *AzureStore) CountObjects(ctx context.Context, c Container) (int, error) {
	pager := a.client.NewListBlobsFlatPager(c.Name, nil)

	count := 0
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("listing container %s: %w", c.Name, err)
		}
		count += len(page.Segment.BlobItems)
	}
	return count, nil
}

// DeleteContainer deletes the container; Azure removes its blobs with it.
func (a *AzureStore) DeleteContainer(ctx context.Context, c Container) error {
	if _, err := a.client.DeleteContainer(ctx, c.Name, nil); err != nil {
		return fmt.Errorf("deleting container %s: %w", c.Name, err)
	}
	return nil
}
