package web

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"s3drive/internal/config"
	"s3drive/internal/storage"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of storage.ObjectStore.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	args := m.Called(ctx)
	objects, _ := args.Get(0).([]storage.ObjectInfo)
	return objects, args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, key string) (*storage.Object, error) {
	args := m.Called(ctx, key)
	obj, _ := args.Get(0).(*storage.Object)
	return obj, args.Error(1)
}

func (m *MockStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, _ = io.Copy(io.Discard, body)
	args := m.Called(ctx, key, size, contentType)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Backend = config.BackendLocal
	cfg.Local.Root = "test-bucket"
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, store storage.ObjectStore) (*Server, *test.Hook) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return New(cfg, store, logger), hook
}

func newLocalTestServer(t *testing.T) (*Server, *storage.LocalClient) {
	t.Helper()
	store := storage.NewLocalClient(t.TempDir())
	s, _ := newTestServer(t, nil, store)
	return s, store
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func putObject(t *testing.T, store storage.ObjectStore, key string, body string) {
	t.Helper()
	if err := store.Put(context.Background(), key, strings.NewReader(body), int64(len(body)), ""); err != nil {
		t.Fatalf("put %q: %v", key, err)
	}
}

func newUploadRequest(t *testing.T, field string, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("note", "ignored"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newDeleteRequest(key string) *http.Request {
	form := url.Values{}
	if key != "" {
		form.Set("file", key)
	}
	req := httptest.NewRequest(http.MethodPost, "/delete", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func redirectQuery(t *testing.T, rr *httptest.ResponseRecorder) url.Values {
	t.Helper()
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d body=%s", rr.Code, rr.Body.String())
	}
	loc, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if loc.Path != "/" {
		t.Fatalf("expected redirect to /, got %q", loc.Path)
	}
	return loc.Query()
}
