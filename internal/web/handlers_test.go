package web

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"s3drive/internal/storage"

	"github.com/stretchr/testify/mock"
)

func listKeys(t *testing.T, store storage.ObjectStore) []string {
	t.Helper()
	objects, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	return keys
}

func TestIndexListsFilesCaseInsensitively(t *testing.T) {
	s, store := newLocalTestServer(t)
	putObject(t, store, "banana.txt", "b")
	putObject(t, store, "Apple.txt", "a")
	putObject(t, store, "cherry.txt", "c")

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}

	body := rr.Body.String()
	apple := strings.Index(body, "Apple.txt")
	banana := strings.Index(body, "banana.txt")
	cherry := strings.Index(body, "cherry.txt")
	if apple < 0 || banana < 0 || cherry < 0 {
		t.Fatalf("expected every key in page, body=%s", body)
	}
	if !(apple < banana && banana < cherry) {
		t.Fatalf("expected Apple < banana < cherry, got %d %d %d", apple, banana, cherry)
	}
	if !strings.Contains(body, "Files (3)") {
		t.Fatalf("expected file count in page")
	}
}

func TestIndexEmptyBucket(t *testing.T) {
	s, _ := newLocalTestServer(t)

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "No files") {
		t.Fatalf("expected empty state, body=%s", rr.Body.String())
	}
}

func TestIndexEscapesKeys(t *testing.T) {
	s, store := newLocalTestServer(t)
	putObject(t, store, `<script>alert("x")</script>.txt`, "x")

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	body := rr.Body.String()
	if strings.Contains(body, `<script>alert("x")</script>`) {
		t.Fatalf("key rendered unescaped: %s", body)
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Fatalf("expected escaped key in page")
	}
	if !strings.Contains(body, "/download?file=%3cscript%3e") {
		t.Fatalf("expected query-escaped download link, body=%s", body)
	}
}

func TestIndexShowsBannerAndNoticeFromQuery(t *testing.T) {
	s, _ := newLocalTestServer(t)

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/?error=Upload+failed%3A+boom&notice=Deleted+a.txt", nil))
	body := rr.Body.String()
	if !strings.Contains(body, "Upload failed: boom") {
		t.Fatalf("expected error banner, body=%s", body)
	}
	if !strings.Contains(body, "Deleted a.txt") {
		t.Fatalf("expected notice, body=%s", body)
	}
}

func TestIndexListFailureRendersBanner(t *testing.T) {
	store := new(MockStore)
	store.On("List", mock.Anything).Return(nil, errors.New("access denied"))
	s, hook := newTestServer(t, nil, store)

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "S3 list failed: access denied") || !strings.Contains(body, "No files") {
		t.Fatalf("expected list failure banner with empty list, body=%s", body)
	}
	store.AssertExpectations(t)

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "list bucket failed" {
			warned = true
		}
	}
	if !warned {
		t.Fatal("expected list failure to be logged")
	}
}

func TestIndexAppliesTheme(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Theme = "dark"
	cfg.Server.Title = "Team Drive"
	s, _ := newTestServer(t, cfg, storage.NewLocalClient(t.TempDir()))

	body := serve(s, httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	for _, want := range []string{`class="theme-dark"`, "<title>Team Drive</title>", "test-bucket"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in page", want)
		}
	}
}

func TestUploadThenDownloadRoundTrip(t *testing.T) {
	s, store := newLocalTestServer(t)
	content := bytes.Repeat([]byte{0x00, 0xff, 'a', '\n'}, 4096)

	q := redirectQuery(t, serve(s, newUploadRequest(t, "file", "my report.bin", content)))
	if q.Get("notice") != "Uploaded my report.bin" {
		t.Fatalf("unexpected notice %q", q.Get("notice"))
	}
	if keys := listKeys(t, store); !reflect.DeepEqual(keys, []string{"my report.bin"}) {
		t.Fatalf("unexpected keys after upload: %v", keys)
	}

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/download?file=my+report.bin", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="my report.bin"` {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if !bytes.Equal(rr.Body.Bytes(), content) {
		t.Fatalf("downloaded bytes differ from upload: got %d bytes want %d", rr.Body.Len(), len(content))
	}
}

func TestUploadedDotNamesAreListedAndDeletable(t *testing.T) {
	s, store := newLocalTestServer(t)

	q := redirectQuery(t, serve(s, newUploadRequest(t, "file", ".upload-notes.txt", []byte("n"))))
	if q.Get("notice") != "Uploaded .upload-notes.txt" {
		t.Fatalf("unexpected notice %q", q.Get("notice"))
	}
	if keys := listKeys(t, store); !reflect.DeepEqual(keys, []string{".upload-notes.txt"}) {
		t.Fatalf("uploaded key missing from listing: %v", keys)
	}
	if body := serve(s, httptest.NewRequest(http.MethodGet, "/", nil)).Body.String(); !strings.Contains(body, ".upload-notes.txt") {
		t.Fatalf("uploaded key missing from page")
	}

	redirectQuery(t, serve(s, newDeleteRequest(".upload-notes.txt")))
	if keys := listKeys(t, store); len(keys) != 0 {
		t.Fatalf("expected empty bucket after delete, got %v", keys)
	}
}

func TestUploadOverwritesExistingKey(t *testing.T) {
	s, store := newLocalTestServer(t)
	putObject(t, store, "notes.txt", "old")

	redirectQuery(t, serve(s, newUploadRequest(t, "file", "notes.txt", []byte("new"))))

	obj, err := store.Get(context.Background(), "notes.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "new" {
		t.Fatalf("expected overwritten content, got %q", data)
	}
}

func TestUploadStripsDirectoryComponents(t *testing.T) {
	cases := []struct {
		filename string
		want     string
	}{
		{filename: "report.pdf", want: "report.pdf"},
		{filename: "dir/sub/report.pdf", want: "report.pdf"},
		{filename: `C:\Users\me\report.pdf`, want: "report.pdf"},
		{filename: "  spaced.txt ", want: "spaced.txt"},
		{filename: "dir/", want: ""},
		{filename: "..", want: ""},
		{filename: "", want: ""},
	}
	for _, tc := range cases {
		if got := uploadKey(tc.filename); got != tc.want {
			t.Fatalf("uploadKey(%q) = %q, want %q", tc.filename, got, tc.want)
		}
	}
}

func TestUploadRejectsBadForms(t *testing.T) {
	s, _ := newLocalTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("file=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := serve(s, req)
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "Invalid form (expected multipart/form-data)") {
		t.Fatalf("expected 400 invalid form, got %d %q", rr.Code, rr.Body.String())
	}

	rr = serve(s, newUploadRequest(t, "other", "a.txt", []byte("x")))
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "No file selected") {
		t.Fatalf("expected 400 no file selected for missing part, got %d %q", rr.Code, rr.Body.String())
	}

	rr = serve(s, newUploadRequest(t, "file", "", []byte("x")))
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "No file selected") {
		t.Fatalf("expected 400 no file selected for empty filename, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxUploadMB = 1
	store := storage.NewLocalClient(t.TempDir())
	s, _ := newTestServer(t, cfg, store)

	rr := serve(s, newUploadRequest(t, "file", "big.bin", bytes.Repeat([]byte("x"), 2<<20)))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d %q", rr.Code, rr.Body.String())
	}
	if keys := listKeys(t, store); len(keys) != 0 {
		t.Fatalf("partial upload must not be stored, got %v", keys)
	}
}

func TestUploadLimitZeroIsUnlimited(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxUploadMB = 0
	store := storage.NewLocalClient(t.TempDir())
	s, _ := newTestServer(t, cfg, store)

	redirectQuery(t, serve(s, newUploadRequest(t, "file", "big.bin", bytes.Repeat([]byte("x"), 2<<20))))
	if keys := listKeys(t, store); !reflect.DeepEqual(keys, []string{"big.bin"}) {
		t.Fatalf("expected upload without limit to be stored, got %v", keys)
	}
}

func TestUploadStorageFailureRedirectsWithError(t *testing.T) {
	store := new(MockStore)
	store.On("Put", mock.Anything, "a.txt", int64(-1), mock.Anything).Return(errors.New("bucket is read-only"))
	s, _ := newTestServer(t, nil, store)

	q := redirectQuery(t, serve(s, newUploadRequest(t, "file", "a.txt", []byte("x"))))
	if got := q.Get("error"); got != "Upload failed: bucket is read-only" {
		t.Fatalf("unexpected error param %q", got)
	}
	store.AssertExpectations(t)
}

func TestDownloadErrors(t *testing.T) {
	store := new(MockStore)
	store.On("Get", mock.Anything, "gone.txt").Return(nil, storage.ErrNotFound)
	store.On("Get", mock.Anything, "broken.txt").Return(nil, errors.New("connection reset"))
	s, _ := newTestServer(t, nil, store)

	cases := []struct {
		name   string
		target string
		code   int
		body   string
	}{
		{name: "missing param", target: "/download", code: http.StatusBadRequest, body: "Missing file name"},
		{name: "blank param", target: "/download?file=", code: http.StatusBadRequest, body: "Missing file name"},
		{name: "not found", target: "/download?file=gone.txt", code: http.StatusNotFound, body: "File not found: gone.txt"},
		{name: "storage failure", target: "/download?file=broken.txt", code: http.StatusInternalServerError, body: "Download failed: connection reset"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(s, httptest.NewRequest(http.MethodGet, tc.target, nil))
			if rr.Code != tc.code {
				t.Fatalf("status: got %d want %d", rr.Code, tc.code)
			}
			if !strings.Contains(rr.Body.String(), tc.body) {
				t.Fatalf("body %q does not contain %q", rr.Body.String(), tc.body)
			}
		})
	}
	store.AssertExpectations(t)
}

func TestDeleteRemovesObject(t *testing.T) {
	s, store := newLocalTestServer(t)
	putObject(t, store, "a.txt", "a")
	putObject(t, store, "b.txt", "b")

	q := redirectQuery(t, serve(s, newDeleteRequest("a.txt")))
	if q.Get("notice") != "Deleted a.txt" {
		t.Fatalf("unexpected notice %q", q.Get("notice"))
	}
	if keys := listKeys(t, store); !reflect.DeepEqual(keys, []string{"b.txt"}) {
		t.Fatalf("unexpected keys after delete: %v", keys)
	}
	if body := serve(s, httptest.NewRequest(http.MethodGet, "/", nil)).Body.String(); strings.Contains(body, "a.txt") {
		t.Fatalf("deleted key still rendered")
	}
}

func TestDeleteUsesRawKey(t *testing.T) {
	store := new(MockStore)
	store.On("Delete", mock.Anything, "Tom &amp; Jerry.txt").Return(nil)
	s, _ := newTestServer(t, nil, store)

	redirectQuery(t, serve(s, newDeleteRequest("Tom &amp; Jerry.txt")))
	store.AssertExpectations(t)
}

func TestDeleteErrors(t *testing.T) {
	store := new(MockStore)
	store.On("Delete", mock.Anything, "locked.txt").Return(errors.New("access denied"))
	s, _ := newTestServer(t, nil, store)

	rr := serve(s, newDeleteRequest(""))
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "Missing file name") {
		t.Fatalf("expected 400 missing file name, got %d %q", rr.Code, rr.Body.String())
	}

	q := redirectQuery(t, serve(s, newDeleteRequest("locked.txt")))
	if got := q.Get("error"); got != "Delete failed: access denied" {
		t.Fatalf("unexpected error param %q", got)
	}
	store.AssertExpectations(t)
}

func TestUnknownPathsAndMethods(t *testing.T) {
	s, _ := newLocalTestServer(t)

	cases := []struct {
		method string
		target string
		code   int
	}{
		{method: http.MethodGet, target: "/nope", code: http.StatusNotFound},
		{method: http.MethodPost, target: "/", code: http.StatusMethodNotAllowed},
		{method: http.MethodGet, target: "/upload", code: http.StatusMethodNotAllowed},
		{method: http.MethodGet, target: "/delete", code: http.StatusMethodNotAllowed},
		{method: http.MethodPost, target: "/download", code: http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		rr := serve(s, httptest.NewRequest(tc.method, tc.target, nil))
		if rr.Code != tc.code {
			t.Fatalf("%s %s: got %d want %d", tc.method, tc.target, rr.Code, tc.code)
		}
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	s, _ := newLocalTestServer(t)

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("unexpected health response: %d %q", rr.Code, rr.Body.String())
	}

	serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	rr = serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", rr.Code)
	}
	if want := `s3drive_storage_operations_total{op="list",result="ok"} 1`; !strings.Contains(rr.Body.String(), want) {
		t.Fatalf("expected %q in metrics output", want)
	}
}

func TestMetricsMovedToSeparateListener(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MetricsAddr = "127.0.0.1:9090"
	s, _ := newTestServer(t, cfg, storage.NewLocalClient(t.TempDir()))

	if rr := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil)); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on main listener, got %d", rr.Code)
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	s, hook := newTestServer(t, nil, storage.NewLocalClient(t.TempDir()))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rr := serve(s, req)
	if got := rr.Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("unexpected request id header %q", got)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a request log entry")
	}
	if entry.Message != "request" || entry.Data["request_id"] != "req-123" || entry.Data["status"] != http.StatusOK {
		t.Fatalf("unexpected log entry: %s %v", entry.Message, entry.Data)
	}

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := rr.Header().Get(requestIDHeader); len(got) != 36 {
		t.Fatalf("expected generated uuid request id, got %q", got)
	}
}

func TestCORSHeadersWhenOriginsConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AllowedOrigins = []string{"https://drive.example.com"}
	s, _ := newTestServer(t, cfg, storage.NewLocalClient(t.TempDir()))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://drive.example.com")
	if got := serve(s, req).Header().Get("Access-Control-Allow-Origin"); got != "https://drive.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	if got := serve(s, req).Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow origin for unknown site, got %q", got)
	}
}
