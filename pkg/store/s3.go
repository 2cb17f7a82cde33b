package store

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ajitpratap0/ghlexport/pkg/errors"
)

const (
	s3PartSize    = 8 * 1024 * 1024
	s3Concurrency = 4
)

// NewS3Store stores snapshots in an S3 bucket using the default AWS
// credential chain.
func NewS3Store(ctx context.Context, bucketName, prefix, region string, opts ...Option) (*ObjectStore, error) {
	if bucketName == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "s3 store requires a bucket")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(cfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = s3PartSize
		u.Concurrency = s3Concurrency
	})
	return newObjectStore("s3", &s3Bucket{client: client, uploader: uploader, name: bucketName}, prefix, buildOptions(opts))
}

type s3Bucket struct {
	client   *s3.Client
	uploader *manager.Uploader
	name     string
}

func (b *s3Bucket) Put(ctx context.Context, key string, body []byte) error {
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType(key)),
	})
	return err
}

func (b *s3Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, errObjectNotFound
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *s3Bucket) URI(key string) string { return "s3://" + b.name + "/" + key }

func (b *s3Bucket) Close() error { return nil }

func contentType(key string) string {
	if strings.HasSuffix(key, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
