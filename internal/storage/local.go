package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// LocalClient keeps objects as files below rootDir. It backs the drive when
// no cloud bucket is configured. Uploads are staged in a sibling directory so
// no object name is reserved and the final rename stays on one filesystem.
type LocalClient struct {
	rootDir    string
	stagingDir string
}

func NewLocalClient(rootDir string) *LocalClient {
	return &LocalClient{
		rootDir:    rootDir,
		stagingDir: filepath.Clean(rootDir) + ".tmp",
	}
}

func (c *LocalClient) Put(ctx context.Context, key string, body io.Reader, _ int64, _ string) error {
	fullPath, err := c.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return err
	}

	if err := os.MkdirAll(c.stagingDir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.stagingDir, "upload-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: body}); err != nil {
		tmp.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, fullPath)
}

func (c *LocalClient) Get(_ context.Context, key string) (*Object, error) {
	fullPath, err := c.objectPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return &Object{
		Body:        f,
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(fullPath)),
	}, nil
}

func (c *LocalClient) Delete(_ context.Context, key string) error {
	fullPath, pathErr := c.objectPath(key)
	if pathErr != nil {
		return pathErr
	}
	err := os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (c *LocalClient) List(_ context.Context) ([]ObjectInfo, error) {
	if _, err := os.Stat(c.rootDir); err != nil {
		if os.IsNotExist(err) {
			return []ObjectInfo{}, nil
		}
		return nil, err
	}

	objects := make([]ObjectInfo, 0)
	err := filepath.WalkDir(c.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(c.rootDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{
			Key:          filepath.ToSlash(rel),
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	SortByKeyFold(objects)
	return objects, nil
}

func (c *LocalClient) objectPath(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(cleaned) || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the bucket root", ErrInvalidKey, key)
	}
	return filepath.Join(c.rootDir, cleaned), nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
