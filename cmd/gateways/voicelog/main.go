package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	config "github.com/xilidan/voicelog/config/voicelog"
	"github.com/xilidan/voicelog/gateways/voicelog"
	"github.com/xilidan/voicelog/pkg/logger"
	"github.com/xilidan/voicelog/services/voicelog/storage"
)

func main() {
	log := logger.Default()

	cfg := config.MustLoad()

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn("unknown log level, using info", slog.String("level", cfg.Log.Level))
	}
	log = logger.New(logger.Config{
		Level:      level,
		Output:     os.Stderr,
		AddSource:  true,
		JSONFormat: cfg.Log.JSON,
	})
	log.Info("configuration loaded",
		slog.Int("port", cfg.HTTP.Port),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("pipeline_mode", cfg.Pipeline.Mode),
		slog.Bool("line_secret_set", cfg.Line.ChannelSecret != ""),
		slog.Bool("whisper_api_key_set", cfg.OpenAI.WhisperAPIKey != ""),
		slog.Bool("chatgpt_api_key_set", cfg.OpenAI.ChatAPIKey != ""))

	ctx := logger.WithContext(context.Background(), log)

	rootCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("failed to run()", slog.String("error", err.Error()))
		return
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	paths, err := cfg.Prepare()
	if err != nil {
		return err
	}
	log.Info("directories prepared",
		slog.String("recordings_dir", paths.RecordingsDir),
		slog.String("database_dir", paths.DatabaseDir))

	stg, err := storage.Open(ctx, cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return err
	}
	defer stg.Close()

	srv, err := voicelog.New(ctx, cfg, paths, stg, log)
	if err != nil {
		return err
	}

	return srv.Start(ctx)
}
