package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	appconfig "s3drive/internal/config"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

const (
	azureUploadBlockSize   = 4 * 1024 * 1024
	azureUploadConcurrency = 3
)

type azureBlobAPI interface {
	DownloadStream(ctx context.Context, containerName string, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
	UploadStream(ctx context.Context, containerName string, blobName string, body io.Reader, o *azblob.UploadStreamOptions) (azblob.UploadStreamResponse, error)
	DeleteBlob(ctx context.Context, containerName string, blobName string, o *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error)
}

type blobItemPager interface {
	More() bool
	NextItems(ctx context.Context) ([]*container.BlobItem, error)
}

type funcBlobItemPager struct {
	more func() bool
	next func(context.Context) ([]*container.BlobItem, error)
}

func (p funcBlobItemPager) More() bool { return p.more() }

func (p funcBlobItemPager) NextItems(ctx context.Context) ([]*container.BlobItem, error) {
	return p.next(ctx)
}

// AzureClient serves an Azure Blob Storage container as the bucket.
type AzureClient struct {
	api           azureBlobAPI
	newPager      func(prefix string) blobItemPager
	containerName string
	prefix        string
}

func NewAzureClient(cfg appconfig.AzureConfig) (*AzureClient, error) {
	containerName := strings.TrimSpace(cfg.Container)
	if containerName == "" {
		return nil, errors.New("azure container is required")
	}
	prefix, err := normalizePrefix(cfg.Prefix)
	if err != nil {
		return nil, err
	}

	var client *azblob.Client
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("create azure blob client: %w", err)
		}
	case cfg.AccountURL != "":
		credential, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("create azure credential: %w", err)
		}
		client, err = azblob.NewClient(cfg.AccountURL, credential, nil)
		if err != nil {
			return nil, fmt.Errorf("create azure blob client: %w", err)
		}
	default:
		return nil, errors.New("azure account url or connection string is required")
	}

	return &AzureClient{
		api:           client,
		newPager:      azureFlatPagerFactory(client, containerName),
		containerName: containerName,
		prefix:        prefix,
	}, nil
}

func azureFlatPagerFactory(client *azblob.Client, containerName string) func(string) blobItemPager {
	return func(prefix string) blobItemPager {
		opts := &azblob.ListBlobsFlatOptions{}
		if prefix != "" {
			opts.Prefix = &prefix
		}
		pager := client.NewListBlobsFlatPager(containerName, opts)
		return funcBlobItemPager{
			more: pager.More,
			next: func(ctx context.Context) ([]*container.BlobItem, error) {
				resp, err := pager.NextPage(ctx)
				if err != nil {
					return nil, err
				}
				if resp.Segment == nil {
					return nil, nil
				}
				return resp.Segment.BlobItems, nil
			},
		}
	}
}

func (c *AzureClient) Put(ctx context.Context, key string, body io.Reader, _ int64, contentType string) error {
	if c.api == nil {
		return errors.New("azure blob client is not configured")
	}
	name, err := c.blobName(key)
	if err != nil {
		return err
	}

	opts := &azblob.UploadStreamOptions{
		BlockSize:   azureUploadBlockSize,
		Concurrency: azureUploadConcurrency,
	}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}
	if _, err := c.api.UploadStream(ctx, c.containerName, name, body, opts); err != nil {
		return fmt.Errorf("upload blob: %w", err)
	}
	return nil
}

func (c *AzureClient) Get(ctx context.Context, key string) (*Object, error) {
	if c.api == nil {
		return nil, errors.New("azure blob client is not configured")
	}
	name, err := c.blobName(key)
	if err != nil {
		return nil, err
	}

	resp, err := c.api.DownloadStream(ctx, c.containerName, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("download blob: %w", err)
	}

	obj := &Object{Body: resp.Body, Size: -1}
	if resp.ContentLength != nil {
		obj.Size = *resp.ContentLength
	}
	if resp.ContentType != nil {
		obj.ContentType = *resp.ContentType
	}
	return obj, nil
}

func (c *AzureClient) Delete(ctx context.Context, key string) error {
	if c.api == nil {
		return errors.New("azure blob client is not configured")
	}
	name, err := c.blobName(key)
	if err != nil {
		return err
	}

	if _, err := c.api.DeleteBlob(ctx, c.containerName, name, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (c *AzureClient) List(ctx context.Context) ([]ObjectInfo, error) {
	if c.newPager == nil {
		return nil, errors.New("azure pager factory is not configured")
	}
	pager := c.newPager(c.prefix)
	if pager == nil {
		return nil, errors.New("azure pager is not configured")
	}

	objects := make([]ObjectInfo, 0)
	for pager.More() {
		items, err := pager.NextItems(ctx)
		if err != nil {
			return nil, fmt.Errorf("list blobs: %w", err)
		}
		for _, item := range items {
			if info, ok := c.objectInfo(item); ok {
				objects = append(objects, info)
			}
		}
	}

	SortByKeyFold(objects)
	return objects, nil
}

func (c *AzureClient) objectInfo(item *container.BlobItem) (ObjectInfo, bool) {
	if item == nil || item.Name == nil || !strings.HasPrefix(*item.Name, c.prefix) {
		return ObjectInfo{}, false
	}
	key := strings.TrimPrefix(*item.Name, c.prefix)
	if key == "" {
		return ObjectInfo{}, false
	}
	info := ObjectInfo{Key: key}
	if props := item.Properties; props != nil {
		if props.ContentLength != nil {
			info.Size = *props.ContentLength
		}
		if props.LastModified != nil {
			info.LastModified = props.LastModified.UTC()
		}
	}
	return info, true
}

func (c *AzureClient) blobName(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return c.prefix + key, nil
}
