package voicelog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	config "github.com/xilidan/voicelog/config/voicelog"
	"github.com/xilidan/voicelog/gateways/voicelog/clients/archive"
	"github.com/xilidan/voicelog/gateways/voicelog/clients/line"
	"github.com/xilidan/voicelog/gateways/voicelog/clients/openai"
	"github.com/xilidan/voicelog/gateways/voicelog/handler"
	"github.com/xilidan/voicelog/pkg/logger"
	"github.com/xilidan/voicelog/services/voicelog/storage"
	"github.com/xilidan/voicelog/services/voicelog/usecase"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	cfg     *config.Config
	paths   *config.Paths
	log     *slog.Logger
	handler *handler.Handler
}

// New wires the external clients, the pipeline and the HTTP handlers. stg is
// owned by the caller.
func New(ctx context.Context, cfg *config.Config, paths *config.Paths, stg storage.Storage, log *slog.Logger) (*Server, error) {
	log.Info("creating voicelog server")

	lineClient, err := line.New(line.Config{
		ChannelAccessToken: cfg.Line.ChannelAccessToken,
		ChannelSecret:      cfg.Line.ChannelSecret,
		APIURL:             cfg.Line.APIURL,
		DataAPIURL:         cfg.Line.DataAPIURL,
		Timeout:            cfg.External.Timeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create line client: %w", err)
	}

	transcriber, err := openai.NewTranscriber(openai.Config{
		APIKey:     cfg.OpenAI.WhisperAPIKey,
		Model:      cfg.OpenAI.WhisperModel,
		BaseURL:    cfg.OpenAI.BaseURL,
		MaxRetries: cfg.OpenAI.MaxRetries,
		Timeout:    cfg.External.Timeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}

	generator, err := openai.NewGenerator(openai.Config{
		APIKey:     cfg.OpenAI.ChatAPIKey,
		Model:      cfg.OpenAI.ChatModel,
		BaseURL:    cfg.OpenAI.BaseURL,
		MaxRetries: cfg.OpenAI.MaxRetries,
		Timeout:    cfg.External.Timeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	opts := usecase.Options{
		Storage:       stg,
		Transcriber:   transcriber,
		Generator:     generator,
		Messenger:     lineClient,
		RecordingsDir: paths.RecordingsDir,
		Mode:          usecase.Mode(cfg.Pipeline.Mode),
	}

	if cfg.ArchiveEnabled() {
		arc, err := archive.New(ctx, archive.Config{
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Prefix:    cfg.Archive.Prefix,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive: %w", err)
		}
		opts.Archiver = arc
	}

	h, err := handler.New(usecase.New(opts), lineClient, handler.Options{
		Credentials: handler.Credentials{
			Username:     cfg.Review.Username,
			Password:     cfg.Review.Password,
			PasswordHash: cfg.Review.PasswordHash,
		},
		RecordingsURL:   cfg.Storage.URLPrefix,
		PipelineTimeout: cfg.Pipeline.Timeout,
	}, log)
	if err != nil {
		return nil, err
	}

	log.Info("voicelog server created",
		slog.String("pipeline_mode", cfg.Pipeline.Mode),
		slog.Bool("archive_enabled", cfg.ArchiveEnabled()))

	return &Server{cfg: cfg, paths: paths, log: log, handler: h}, nil
}

// Router builds the full route tree: API, review pages and stored audio.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(s.log))
	r.Use(middleware.Recoverer)

	s.handler.RegisterRoutes(r)

	prefix := s.cfg.Storage.URLPrefix
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(s.paths.RecordingsDir)))
	r.Get(prefix+"*", noDirectoryListing(files).ServeHTTP)

	return r
}

// Start serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.HTTP.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
		IdleTimeout:  s.cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("voicelog gateway started", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down HTTP server gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("forcing server close", slog.String("error", err.Error()))
			srv.Close()
			return fmt.Errorf("failed to gracefully shutdown server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	s.log.Info("server stopped cleanly")
	return nil
}

func noDirectoryListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
