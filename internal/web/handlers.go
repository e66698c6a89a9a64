package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"s3drive/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

const maxDeleteFormBytes = 1 << 20

func (s *Server) newHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	if origins := s.cfg.Server.AllowedOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Disposition", requestIDHeader},
			AllowCredentials: true,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})

	r.Get("/healthz", s.handleHealth)
	if s.cfg.Server.MetricsAddr == "" {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Use(s.rejectCrossSite)
		r.Get("/", s.handleIndex)
		r.Get("/download", s.handleDownload)
		r.Post("/upload", s.handleUpload)
		r.Post("/delete", s.handleDelete)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := s.newPageData(r)

	start := time.Now()
	objects, err := s.store.List(r.Context())
	s.metrics.ObserveStorage("list", start, err)
	if err != nil {
		s.logger(r).WithError(err).Warn("list bucket failed")
		data.Errors = append(data.Errors, fmt.Sprintf("S3 list failed: %v", err))
	} else {
		storage.SortByKeyFold(objects)
		data.Files = fileRows(objects)
	}

	s.renderPage(w, r, data)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("file")
	if strings.TrimSpace(key) == "" {
		http.Error(w, "Missing file name", http.StatusBadRequest)
		return
	}

	start := time.Now()
	obj, err := s.store.Get(r.Context(), key)
	s.metrics.ObserveStorage("get", start, err)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, fmt.Sprintf("File not found: %s", key), http.StatusNotFound)
		case errors.Is(err, storage.ErrInvalidKey):
			http.Error(w, fmt.Sprintf("Invalid file name: %s", key), http.StatusBadRequest)
		default:
			s.logger(r).WithError(err).WithField("key", key).Warn("download failed")
			http.Error(w, fmt.Sprintf("Download failed: %v", err), http.StatusInternalServerError)
		}
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", attachmentDisposition(key))
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		s.logger(r).WithError(err).WithField("key", key).Warn("download interrupted")
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if limit := s.maxUploadBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		http.Error(w, "Invalid form (expected multipart/form-data)", http.StatusBadRequest)
		return
	}
	reader, err := r.MultipartReader()
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid form: %v", err), http.StatusBadRequest)
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			http.Error(w, "No file selected", http.StatusBadRequest)
			return
		}
		if err != nil {
			s.writeUploadReadError(w, err)
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		key := uploadKey(part.FileName())
		if key == "" {
			part.Close()
			http.Error(w, "No file selected", http.StatusBadRequest)
			return
		}

		start := time.Now()
		err = s.store.Put(r.Context(), key, part, -1, part.Header.Get("Content-Type"))
		s.metrics.ObserveStorage("put", start, err)
		part.Close()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, fmt.Sprintf("Upload failed: file exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
				return
			}
			s.logger(r).WithError(err).WithField("key", key).Warn("upload failed")
			redirectHome(w, r, "error", fmt.Sprintf("Upload failed: %v", err))
			return
		}

		s.logger(r).WithFields(logrus.Fields{"key": key}).Info("uploaded")
		redirectHome(w, r, "notice", fmt.Sprintf("Uploaded %s", key))
		return
	}
}

func (s *Server) writeUploadReadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, fmt.Sprintf("Upload failed: file exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, fmt.Sprintf("Invalid form: %v", err), http.StatusBadRequest)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDeleteFormBytes)
	key := r.PostFormValue("file")
	if strings.TrimSpace(key) == "" {
		http.Error(w, "Missing file name", http.StatusBadRequest)
		return
	}

	start := time.Now()
	err := s.store.Delete(r.Context(), key)
	s.metrics.ObserveStorage("delete", start, err)
	if err != nil {
		s.logger(r).WithError(err).WithField("key", key).Warn("delete failed")
		redirectHome(w, r, "error", fmt.Sprintf("Delete failed: %v", err))
		return
	}

	s.logger(r).WithField("key", key).Info("deleted")
	redirectHome(w, r, "notice", fmt.Sprintf("Deleted %s", key))
}

func (s *Server) maxUploadBytes() int64 {
	return s.cfg.Server.MaxUploadMB << 20
}

func redirectHome(w http.ResponseWriter, r *http.Request, param string, message string) {
	q := url.Values{}
	q.Set(param, message)
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}

// uploadKey reduces a client-supplied filename to its last path element.
// Some browsers send full Windows paths.
func uploadKey(filename string) string {
	name := strings.TrimSpace(filename)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "." || name == ".." {
		return ""
	}
	return name
}

func attachmentDisposition(key string) string {
	name := path.Base(key)
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
