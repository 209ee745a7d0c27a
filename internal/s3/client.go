package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kenneth/identity-helper/internal/config"
)

var (
	// ErrNoSuchKey is returned when the requested object does not exist.
	ErrNoSuchKey = errors.New("s3: no such key")
	// ErrNoSuchBucket is returned when the configured bucket does not exist.
	// It is a configuration fault, never an empty result.
	ErrNoSuchBucket = errors.New("s3: no such bucket")
)

// Client is the object storage client used by the S3 document backend.
type Client interface {
	PutObject(ctx context.Context, bucket, key string, body []byte, opts PutOptions) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	HeadBucket(ctx context.Context, bucket string) error
}

// PutOptions holds per-object settings applied on upload.
type PutOptions struct {
	ContentType string
	ACL         string
}

// ObjectInfo holds information about an S3 object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified string
	ETag         string
}

// API is the subset of the AWS SDK client the wrapper depends on.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	s3.ListObjectsV2APIClient
}

// s3Client implements the Client interface using AWS SDK v2.
type s3Client struct {
	api API
}

// NewClient creates a client for the configured S3 compatible host.
func NewClient(cfg *config.ObjectStorageConfig) (Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Key,
			cfg.Secret,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Configure endpoint for non-AWS providers
	s3Options := []func(*s3.Options){}
	if cfg.Host != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Host)
		})
	}
	if cfg.UsePathStyle {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewClientFromAPI(s3.NewFromConfig(awsCfg, s3Options...)), nil
}

// NewClientFromAPI wraps an existing SDK client.
func NewClientFromAPI(api API) Client {
	return &s3Client{api: api}
}

// PutObject uploads an object to S3.
func (c *s3Client) PutObject(ctx context.Context, bucket, key string, body []byte, opts PutOptions) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.ACL != "" {
		input.ACL = types.ObjectCannedACL(opts.ACL)
	}

	if _, err := c.api.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", bucket, key, translateError(err))
	}
	return nil
}

// GetObject retrieves an object body from S3.
func (c *s3Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, translateError(err))
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// ListObjects lists every object under prefix, following continuation tokens.
func (c *s3Client) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	var objects []ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in bucket %s: %w", bucket, translateError(err))
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
				ETag: aws.ToString(obj.ETag),
			}
			if obj.LastModified != nil {
				info.LastModified = obj.LastModified.Format("2006-01-02T15:04:05.000Z")
			}
			objects = append(objects, info)
		}
	}
	return objects, nil
}

// HeadBucket checks that the bucket exists and is reachable.
func (c *s3Client) HeadBucket(ctx context.Context, bucket string) error {
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("failed to head bucket %s: %w", bucket, translateBucketError(err))
	}
	return nil
}

// translateError maps missing-object API errors onto ErrNoSuchKey and a
// missing bucket onto ErrNoSuchBucket, keeping the original error in the
// chain.
func translateError(err error) error {
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return errors.Join(ErrNoSuchBucket, err)
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return errors.Join(ErrNoSuchKey, err)
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return errors.Join(ErrNoSuchKey, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return errors.Join(ErrNoSuchBucket, err)
		case "NoSuchKey", "NotFound":
			return errors.Join(ErrNoSuchKey, err)
		}
	}
	return err
}

// translateBucketError is translateError for bucket-level calls, where a bare
// 404 means the bucket itself is missing.
func translateBucketError(err error) error {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return errors.Join(ErrNoSuchBucket, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return errors.Join(ErrNoSuchBucket, err)
	}
	return translateError(err)
}
