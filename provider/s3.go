package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ensure interface is implemented
var _ ObjectStore = (*S3Store)(nil)

const defaultS3Region = "us-east-1"

// S3Config holds the connection settings of an S3-compatible endpoint.
type S3Config struct {
	Region          string
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	// KeyPrefix is prepended to every object key inside the bucket.
	KeyPrefix string
}

// s3API is the subset of the S3 client used outside of multipart uploads.
type s3API interface {
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	s3.ListObjectsV2APIClient
}

// S3Store maps containers to S3 buckets.
type S3Store struct {
	client   s3API
	uploader *manager.Uploader
	region   string
	prefix   string
}

// NewS3Store creates a new S3Store. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	region := cfg.Region
	if region == "" {
		region = defaultS3Region
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)
		}
		// Integrity checks are opt-in per upload.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		region:   region,
		prefix:   cfg.KeyPrefix,
	}, nil
}

// buildKey constructs the full S3 key based on the store's prefix
func (p *S3Store) buildKey(subPath string) string {
	subPath = strings.TrimPrefix(subPath, "/")
	if p.prefix == "" {
		return subPath
	}
	key := path.Join(p.prefix, subPath)
	return strings.TrimPrefix(key, "/")
}

// listPrefix is the prefix under which this store's objects live.
func (p *S3Store) listPrefix() *string {
	if p.prefix == "" {
		return nil
	}
	return aws.String(strings.TrimSuffix(p.buildKey(""), "/") + "/")
}

// CreateContainer creates the bucket. A bucket already owned by the caller
// is reused.
func (p *S3Store) CreateContainer(ctx context.Context, name string) (Container, error) {
	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if p.region != defaultS3Region {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(p.region),
		}
	}

	if _, err := p.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if !errors.As(err, &owned) {
			return Container{}, fmt.Errorf("creating bucket %s: %w", name, err)
		}
	}
	return Container{Name: name}, nil
}

// ObjectRef resolves name inside the bucket, applying the key prefix.
func (p *S3Store) ObjectRef(c Container, name string) ObjectRef {
	return ObjectRef{Container: c, Key: p.buildKey(name)}
}

// Upload streams localPath to S3, switching to multipart for large files.
func (p *S3Store) Upload(ctx context.Context, ref ObjectRef, localPath string, opts UploadOptions) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(ref.Container.Name),
		Key:         aws.String(ref.Key),
		Body:        f,
		ContentType: aws.String(DetectContentType(localPath)),
	}
	if opts.VerifyIntegrity {
		input.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32
	}
	if opts.PreserveMetadata {
		md, err := statMetadata(localPath)
		if err != nil {
			return err
		}
		input.Metadata = md
	}

	_, err = p.uploader.Upload(ctx, input, func(u *manager.Uploader) {
		if opts.PartSize > 0 {
			u.PartSize = max(opts.PartSize, manager.MinUploadPartSize)
		}
		if opts.PartConcurrency > 0 {
			u.Concurrency = opts.PartConcurrency
		}
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s/%s failed: %w", ref.Container.Name, ref.Key, err)
	}
	return nil
}

// CountObjects lists the bucket and counts the objects under the key prefix.
func (p *S3Store) CountObjects(ctx context.Context, c Container) (int, error) {
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.Name),
		Prefix: p.listPrefix(),
	})

	count := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("listing bucket %s: %w", c.Name, err)
		}
		count += len(page.Contents)
	}
	return count, nil
}

// DeleteContainer empties the bucket and deletes it. S3 refuses to delete
// a bucket that still holds objects.
func (p *S3Store) DeleteContainer(ctx context.Context, c Container) error {
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.Name),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing bucket %s: %w", c.Name, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}

		out, err := p.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.Name),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("emptying bucket %s: %w", c.Name, err)
		}
		if len(out.Errors) > 0 {
			return fmt.Errorf("emptying bucket %s: %d objects not deleted, first: %s",
				c.Name, len(out.Errors), aws.ToString(out.Errors[0].Message))
		}
	}

	if _, err := p.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(c.Name)}); err != nil {
		return fmt.Errorf("deleting bucket %s: %w", c.Name, err)
	}
	return nil
}
