package handler

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xilidan/voicelog/pkg/logger"
	"github.com/xilidan/voicelog/services/voicelog/entity"
)

//go:embed templates/*.html
var templateFS embed.FS

func parseTemplates(recordingsURL string) (*template.Template, error) {
	funcs := template.FuncMap{
		"datetime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Local().Format("2006-01-02 15:04:05")
		},
		"audioURL": func(filename string) string {
			return strings.TrimRight(recordingsURL, "/") + "/" + url.PathEscape(filename)
		},
	}

	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}

// render executes the page into a buffer first so a template error never
// leaves a half-written response.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		logger.FromContext(r.Context()).Error("failed to render template", "template", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

type errorPage struct {
	Status  int
	Title   string
	Message string
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := http.StatusInternalServerError, "内部エラーが発生しました。"
	switch {
	case errors.Is(err, entity.ErrNotFound):
		status, message = http.StatusNotFound, "指定された録音が見つかりません。"
	case errors.Is(err, entity.ErrInvalidInput):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, entity.ErrGenerationFailed):
		status, message = http.StatusBadGateway, entity.MessageGenerationFailed
	default:
		logger.FromContext(r.Context()).Error("review request failed", "error", err)
	}

	h.render(w, r, status, "error.html", errorPage{
		Status:  status,
		Title:   http.StatusText(status),
		Message: message,
	})
}
