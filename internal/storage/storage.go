package storage

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// ObjectStore is the set of bucket operations the front-end and CLI use.
// Keys are presented without any backend prefix.
type ObjectStore interface {
	List(ctx context.Context) ([]ObjectInfo, error)
	Get(ctx context.Context, key string) (*Object, error)
	// Put stores body under key. size is -1 when unknown.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Object is a downloaded object. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// SortByKeyFold orders objects case-insensitively by key; keys that differ
// only in case keep byte order.
func SortByKeyFold(objects []ObjectInfo) {
	sort.SliceStable(objects, func(i, j int) bool {
		a, b := strings.ToLower(objects[i].Key), strings.ToLower(objects[j].Key)
		if a != b {
			return a < b
		}
		return objects[i].Key < objects[j].Key
	})
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}
