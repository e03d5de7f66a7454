package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	Timeout    time.Duration
}

func (c Config) requestOptions() ([]option.RequestOption, error) {
	if c.APIKey == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	if c.Model == "" {
		return nil, errors.New("openai: model must not be empty")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(c.APIKey),
		option.WithMaxRetries(c.MaxRetries),
	}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	if c.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: c.Timeout}))
	}

	return opts, nil
}

// Transcriber turns audio into text with the speech-to-text endpoint.
type Transcriber struct {
	client oai.Client
	model  string
	log    *slog.Logger
}

func NewTranscriber(cfg Config, log *slog.Logger) (*Transcriber, error) {
	opts, err := cfg.requestOptions()
	if err != nil {
		return nil, err
	}

	log.Debug("creating transcription client",
		slog.String("model", cfg.Model),
		slog.Bool("custom_base_url", cfg.BaseURL != ""))

	return &Transcriber{client: oai.NewClient(opts...), model: cfg.Model, log: log}, nil
}

func (t *Transcriber) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	res, err := t.client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(t.model),
		File:  oai.File(audio, filename, audioContentType(filename)),
	})
	if err != nil {
		return "", fmt.Errorf("openai: transcription: %w", err)
	}

	t.log.Debug("audio transcribed", slog.String("filename", filename), slog.Int("length", len(res.Text)))
	return res.Text, nil
}

// Generator sends a single user prompt to the chat completion endpoint.
type Generator struct {
	client oai.Client
	model  string
	log    *slog.Logger
}

func NewGenerator(cfg Config, log *slog.Logger) (*Generator, error) {
	opts, err := cfg.requestOptions()
	if err != nil {
		return nil, err
	}

	log.Debug("creating chat client",
		slog.String("model", cfg.Model),
		slog.Bool("custom_base_url", cfg.BaseURL != ""))

	return &Generator{client: oai.NewClient(opts...), model: cfg.Model, log: log}, nil
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices in response")
	}

	return resp.Choices[0].Message.Content, nil
}

func audioContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".mp3", ".mpga", ".mpeg":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".webm":
		return "audio/webm"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
