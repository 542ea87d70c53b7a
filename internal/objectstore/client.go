// Package objectstore wraps an S3-compatible bucket client for the
// Updater's dependency-cache sync (spec §4.2): listing the environment's
// bucket and streaming matched objects to local disk.
package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fleetforge/compiler-worker/internal/config"
	"github.com/fleetforge/compiler-worker/internal/types"
)

// Client wraps an s3.Client bound to one bucket.
type Client struct {
	s3         *s3.Client
	downloader *manager.Downloader
	bucket     string
}

// New builds a Client from object-store configuration. An explicit
// Endpoint selects a non-AWS S3-compatible provider (e.g. R2, MinIO); an
// empty Endpoint uses the region's default AWS endpoint.
func New(ctx context.Context, cfg config.ObjectStoreConfig) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		s3:         client,
		downloader: manager.NewDownloader(client),
		bucket:     cfg.Bucket,
	}, nil
}

// List returns every object in the bucket, paginated transparently.
func (c *Client) List(ctx context.Context) (types.Manifest, error) {
	manifest := types.Manifest{}
	paginator := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list bucket: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			entry := types.ManifestEntry{Key: *obj.Key}
			if obj.LastModified != nil {
				entry.LastModified = obj.LastModified.UTC().Format("2006-01-02T15:04:05.000Z")
			}
			if obj.ETag != nil {
				entry.ETag = *obj.ETag
			}
			if obj.Size != nil {
				entry.Size = *obj.Size
			}
			manifest[entry.Key] = entry
		}
	}
	return manifest, nil
}

// DownloadTo streams the object at key into w.
func (c *Client) DownloadTo(ctx context.Context, key string, w io.WriterAt) (int64, error) {
	n, err := c.downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", key, err)
	}
	return n, nil
}
