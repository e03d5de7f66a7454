package handler

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/xilidan/voicelog/pkg/json"
	"github.com/xilidan/voicelog/services/voicelog/entity"
	"github.com/xilidan/voicelog/services/voicelog/usecase"
)

const (
	defaultRealm           = "voicelog"
	defaultPipelineTimeout = 5 * time.Minute
)

// WebhookParser verifies a webhook request and returns its audio events.
type WebhookParser interface {
	ParseWebhook(r *http.Request) ([]*entity.AudioEvent, error)
}

type Options struct {
	Credentials Credentials
	Realm       string
	// RecordingsURL is the URL prefix stored audio is served under.
	RecordingsURL  string
	AllowedOrigins []string
	// PipelineTimeout caps the run of one webhook event.
	PipelineTimeout time.Duration
}

type Handler struct {
	uc        usecase.Usecase
	webhook   WebhookParser
	templates *template.Template
	opts      Options
	log       *slog.Logger
}

func New(uc usecase.Usecase, webhook WebhookParser, opts Options, log *slog.Logger) (*Handler, error) {
	if opts.Realm == "" {
		opts.Realm = defaultRealm
	}
	if opts.RecordingsURL == "" {
		opts.RecordingsURL = "/recordings/"
	}
	if opts.PipelineTimeout <= 0 {
		opts.PipelineTimeout = defaultPipelineTimeout
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	tmpl, err := parseTemplates(opts.RecordingsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	log.Debug("handler created",
		slog.String("realm", opts.Realm),
		slog.String("recordings_url", opts.RecordingsURL),
		slog.Bool("hashed_password", opts.Credentials.PasswordHash != ""))

	return &Handler{
		uc:        uc,
		webhook:   webhook,
		templates: tmpl,
		opts:      opts,
		log:       log,
	}, nil
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Post("/callback", h.Callback)

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.opts.AllowedOrigins,
			AllowedMethods: []string{"POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Post("/upload", h.Upload)
		r.Options("/upload", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(BasicAuth(h.opts.Realm, h.opts.Credentials))
		r.Get("/", http.RedirectHandler("/list/", http.StatusFound).ServeHTTP)
		r.Get("/list", http.RedirectHandler("/list/", http.StatusMovedPermanently).ServeHTTP)
		r.Get("/list/", h.List)
		r.Get("/generate_facing_sheet/{recording_id}", h.FacingSheet)
		r.Get("/support_log/{recording_id}", h.SupportLogForm)
		r.Post("/support_log/{recording_id}", h.SupportLogSubmit)
		r.Post("/support_log_batch", h.SupportLogBatch)
	})

	h.log.Info("all routes registered successfully")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	json.WriteJSON(w, http.StatusOK, map[string]bool{"status": true})
}
