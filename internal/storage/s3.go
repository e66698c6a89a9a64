package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	appconfig "s3drive/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	defaultS3ListPageTimeout = 30 * time.Second
	defaultS3DeleteTimeout   = 30 * time.Second
)

type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type objectUploader interface {
	UploadObject(ctx context.Context, input *transfermanager.UploadObjectInput, optFns ...func(*transfermanager.Options)) (*transfermanager.UploadObjectOutput, error)
}

type listObjectsV2Paginator interface {
	HasMorePages() bool
	NextPage(ctx context.Context, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type awsListObjectsV2Paginator struct {
	inner *s3.ListObjectsV2Paginator
}

func (p *awsListObjectsV2Paginator) HasMorePages() bool {
	return p.inner != nil && p.inner.HasMorePages()
}

func (p *awsListObjectsV2Paginator) NextPage(ctx context.Context, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if p.inner == nil {
		return nil, errors.New("s3 paginator is not configured")
	}
	return p.inner.NextPage(ctx, optFns...)
}

func newAWSListObjectsV2Paginator(client s3.ListObjectsV2APIClient, input *s3.ListObjectsV2Input) listObjectsV2Paginator {
	return &awsListObjectsV2Paginator{inner: s3.NewListObjectsV2Paginator(client, input)}
}

// S3Client serves a bucket (optionally a prefix within it) through the AWS
// SDK. Any S3-compatible endpoint works when Endpoint is set.
type S3Client struct {
	api                       s3API
	uploader                  objectUploader
	newListObjectsV2Paginator func(s3.ListObjectsV2APIClient, *s3.ListObjectsV2Input) listObjectsV2Paginator
	bucket                    string
	prefix                    string
	listPageTimeout           time.Duration
	deleteTimeout             time.Duration
}

func NewS3Client(ctx context.Context, cfg appconfig.S3Config) (*S3Client, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		return nil, errors.New("s3 region is required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint != "" {
		if err := validateEndpoint(endpoint); err != nil {
			return nil, err
		}
	}
	prefix, err := normalizePrefix(cfg.Prefix)
	if err != nil {
		return nil, err
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{
		api:                       client,
		uploader:                  transfermanager.New(client),
		newListObjectsV2Paginator: newAWSListObjectsV2Paginator,
		bucket:                    bucket,
		prefix:                    prefix,
		listPageTimeout:           defaultS3ListPageTimeout,
		deleteTimeout:             defaultS3DeleteTimeout,
	}, nil
}

func (c *S3Client) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if c.uploader == nil {
		return errors.New("s3 uploader is not configured")
	}
	fullKey, err := c.prefixedKey(key)
	if err != nil {
		return err
	}

	input := &transfermanager.UploadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fullKey),
		Body:   body,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := c.uploader.UploadObject(ctx, input); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (c *S3Client) Get(ctx context.Context, key string) (*Object, error) {
	if c.api == nil {
		return nil, errors.New("s3 api client is not configured")
	}
	fullKey, err := c.prefixedKey(key)
	if err != nil {
		return nil, err
	}

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("get object: %w", err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return &Object{
		Body:        out.Body,
		Size:        size,
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

func (c *S3Client) Delete(ctx context.Context, key string) error {
	if c.api == nil {
		return errors.New("s3 api client is not configured")
	}
	fullKey, err := c.prefixedKey(key)
	if err != nil {
		return err
	}

	deleteCtx, cancel := c.withTimeout(ctx, c.deleteTimeout)
	defer cancel()

	_, err = c.api.DeleteObject(deleteCtx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (c *S3Client) List(ctx context.Context) ([]ObjectInfo, error) {
	if c.api == nil {
		return nil, errors.New("s3 api client is not configured")
	}
	if c.newListObjectsV2Paginator == nil {
		return nil, errors.New("s3 paginator factory is not configured")
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(c.bucket)}
	if c.prefix != "" {
		input.Prefix = aws.String(c.prefix)
	}
	paginator := c.newListObjectsV2Paginator(c.api, input)
	if paginator == nil {
		return nil, errors.New("s3 paginator is not configured")
	}

	objects := make([]ObjectInfo, 0)
	for paginator.HasMorePages() {
		page, err := c.nextListPage(ctx, paginator)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			key := strings.TrimPrefix(*obj.Key, c.prefix)
			if key == "" || !strings.HasPrefix(*obj.Key, c.prefix) {
				continue
			}
			info := ObjectInfo{Key: key, Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				info.LastModified = obj.LastModified.UTC()
			}
			objects = append(objects, info)
		}
	}

	SortByKeyFold(objects)
	return objects, nil
}

func (c *S3Client) nextListPage(ctx context.Context, paginator listObjectsV2Paginator) (*s3.ListObjectsV2Output, error) {
	pageCtx, cancel := c.withTimeout(ctx, c.listPageTimeout)
	defer cancel()
	return paginator.NextPage(pageCtx)
}

func (c *S3Client) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *S3Client) prefixedKey(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return c.prefix + key, nil
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("s3 endpoint %q must be a valid http(s) URL", endpoint)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("s3 endpoint %q must use http or https", endpoint)
	}
	return nil
}

// normalizePrefix turns a configured prefix into "a/b/" form and rejects
// absolute or traversing prefixes.
func normalizePrefix(raw string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(raw, "\\", "/"))
	if trimmed == "" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, "/") {
		return "", fmt.Errorf("prefix %q must be relative", raw)
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", fmt.Errorf("prefix %q must not contain '..'", raw)
		}
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." {
		return "", nil
	}
	return cleaned + "/", nil
}
