package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"s3drive/internal/storage"

	"github.com/docker/go-units"
	"golang.org/x/crypto/bcrypt"
)

const listTimeLayout = "2006-01-02 15:04:05Z07:00"

func listObjects(ctx context.Context, store storage.ObjectStore) error {
	objects, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list objects: %w", err)
	}
	storage.SortByKeyFold(objects)
	for _, line := range formatListing(objects) {
		fmt.Println(line)
	}
	return nil
}

func formatListing(objects []storage.ObjectInfo) []string {
	lines := make([]string, 0, len(objects))
	for _, obj := range objects {
		modified := "-"
		if !obj.LastModified.IsZero() {
			modified = obj.LastModified.UTC().Format(listTimeLayout)
		}
		lines = append(lines, fmt.Sprintf("%10s  %-20s  %s", units.HumanSize(float64(obj.Size)), modified, obj.Key))
	}
	return lines
}

func getObject(ctx context.Context, store storage.ObjectStore, key string, opts getOptions) error {
	obj, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Body.Close()

	target := downloadTarget(key, opts.Output)
	if target == stdoutPath {
		if _, err := io.Copy(os.Stdout, obj.Body); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
		return nil
	}

	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	n, copyErr := io.Copy(f, obj.Body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(target)
		return fmt.Errorf("write %s: %w", target, err)
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "unknown type"
	}
	fmt.Printf("downloaded %s -> %s (%s, %s)\n", key, target, units.HumanSize(float64(n)), contentType)
	return nil
}

func downloadTarget(key string, output string) string {
	if output = strings.TrimSpace(output); output != "" {
		return output
	}
	return path.Base(key)
}

func putObject(ctx context.Context, store storage.ObjectStore, localPath string, opts putOptions) error {
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		key = filepath.Base(localPath)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", localPath)
	}

	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if err := store.Put(ctx, key, f, info.Size(), contentType); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}

	fmt.Printf("uploaded %s (%s)\n", key, units.HumanSize(float64(info.Size())))
	return nil
}

func removeObject(ctx context.Context, store storage.ObjectStore, key string) error {
	if err := store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	fmt.Printf("deleted %s\n", key)
	return nil
}

func hashPassword(password string) error {
	if password == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	fmt.Println(string(hash))
	return nil
}
