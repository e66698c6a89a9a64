package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"s3drive/internal/config"
	"s3drive/internal/storage"

	"github.com/docker/go-units"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

const modifiedLayout = "2006-01-02 15:04 UTC"

type pageData struct {
	Title  string
	Bucket string
	Addr   string
	Theme  string
	Files  []fileRow
	Errors []string
	Notice string
}

type fileRow struct {
	Key      string
	Size     string
	Modified string
}

func (s *Server) newPageData(r *http.Request) pageData {
	theme := s.cfg.Server.Theme
	if theme != config.ThemeDark {
		theme = config.ThemeLight
	}
	data := pageData{
		Title:  s.cfg.Server.Title,
		Bucket: s.cfg.BucketLabel(),
		Addr:   s.cfg.Server.Addr,
		Theme:  theme,
	}
	q := r.URL.Query()
	if msg := strings.TrimSpace(q.Get("error")); msg != "" {
		data.Errors = append(data.Errors, msg)
	}
	data.Notice = strings.TrimSpace(q.Get("notice"))
	return data
}

func fileRows(objects []storage.ObjectInfo) []fileRow {
	rows := make([]fileRow, 0, len(objects))
	for _, obj := range objects {
		row := fileRow{
			Key:  obj.Key,
			Size: units.HumanSize(float64(obj.Size)),
		}
		if !obj.LastModified.IsZero() {
			row.Modified = obj.LastModified.UTC().Format(modifiedLayout)
		}
		rows = append(rows, row)
	}
	return rows
}

// renderPage executes into a buffer so template failures still yield a clean 500.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, data pageData) {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		s.logger(r).WithError(err).Error("render page failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
