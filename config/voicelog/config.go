package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	ModeCorrect = "correct"
	ModeReply   = "reply"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Line     LineConfig     `yaml:"line"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Review   ReviewConfig   `yaml:"review"`
	Archive  ArchiveConfig  `yaml:"archive"`
	External ExternalConfig `yaml:"external"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port"             env:"HTTP_PORT"             env-default:"8000"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"HTTP_READ_TIMEOUT"     env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"HTTP_WRITE_TIMEOUT"    env-default:"5m"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"HTTP_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	JSON  bool   `yaml:"json"  env:"LOG_JSON"  env-default:"false"`
}

type DatabaseConfig struct {
	Dir    string `yaml:"dir"    env:"DATABASE_DIR"    env-default:"./db"`
	Driver string `yaml:"driver" env:"DATABASE_DRIVER" env-default:"sqlite3"`
	File   string `yaml:"file"   env:"DATABASE_FILE"   env-default:"app.db"`
	DSN    string `yaml:"dsn"    env:"DATABASE_DSN"`
}

type StorageConfig struct {
	RecordingsDir string `yaml:"recordings_dir" env:"RECORDINGS_DIR"        env-default:"./recordings"`
	URLPrefix     string `yaml:"url_prefix"     env:"RECORDINGS_URL_PREFIX" env-default:"/recordings/"`
}

type LineConfig struct {
	ChannelAccessToken string `yaml:"channel_access_token" env:"LINE_CHANNEL_ACCESS_TOKEN"`
	ChannelSecret      string `yaml:"channel_secret"       env:"LINE_CHANNEL_SECRET"`
	APIURL             string `yaml:"api_url"              env:"LINE_API_URL"      env-default:"https://api.line.me"`
	DataAPIURL         string `yaml:"data_api_url"         env:"LINE_DATA_API_URL" env-default:"https://api-data.line.me"`
}

type OpenAIConfig struct {
	WhisperAPIKey string        `yaml:"whisper_api_key" env:"WHISPER_API_KEY"`
	WhisperModel  string        `yaml:"whisper_model"   env:"WHISPER_MODEL"      env-default:"whisper-1"`
	ChatAPIKey    string        `yaml:"chat_api_key"    env:"CHATGPT_API_KEY"`
	ChatModel     string        `yaml:"chat_model"      env:"CHATGPT_MODEL"      env-default:"gpt-3.5-turbo"`
	BaseURL       string        `yaml:"base_url"        env:"OPENAI_BASE_URL"`
	MaxRetries    int           `yaml:"max_retries"     env:"OPENAI_MAX_RETRIES" env-default:"0"`
}

// ExternalConfig bounds calls to the messaging platform and the OpenAI APIs.
type ExternalConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"EXTERNAL_TIMEOUT" env-default:"60s"`
}

type PipelineConfig struct {
	Mode string `yaml:"mode" env:"PIPELINE_MODE" env-default:"correct"`
	// Timeout caps one webhook pipeline run. It is detached from the
	// inbound request, so a dropped connection does not abort it.
	Timeout time.Duration `yaml:"timeout" env:"PIPELINE_TIMEOUT" env-default:"5m"`
}

type ReviewConfig struct {
	Username     string `yaml:"username"      env:"REVIEW_USERNAME"`
	Password     string `yaml:"password"      env:"REVIEW_PASSWORD"`
	PasswordHash string `yaml:"password_hash" env:"REVIEW_PASSWORD_HASH"`
}

type ArchiveConfig struct {
	Bucket    string `yaml:"bucket"     env:"ARCHIVE_S3_BUCKET"`
	Region    string `yaml:"region"     env:"ARCHIVE_S3_REGION" env-default:"us-east-1"`
	Endpoint  string `yaml:"endpoint"   env:"ARCHIVE_S3_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"ARCHIVE_S3_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"ARCHIVE_S3_SECRET_KEY"`
	Prefix    string `yaml:"prefix"     env:"ARCHIVE_S3_PREFIX"`
}

// Load reads CONFIG_PATH (yaml or .env) when it is set and falls back to the
// environment otherwise. Environment values win over file values.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	return cfg
}

func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http port %d out of range", c.HTTP.Port))
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.File == "" {
			errs = append(errs, errors.New("DATABASE_FILE is required for sqlite3"))
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}

	if c.Storage.RecordingsDir == "" {
		errs = append(errs, errors.New("RECORDINGS_DIR is required"))
	}
	if !strings.HasPrefix(c.Storage.URLPrefix, "/") || !strings.HasSuffix(c.Storage.URLPrefix, "/") {
		errs = append(errs, fmt.Errorf("RECORDINGS_URL_PREFIX %q must start and end with /", c.Storage.URLPrefix))
	}

	if c.Line.ChannelSecret == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_SECRET is required"))
	}
	if c.Line.ChannelAccessToken == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_ACCESS_TOKEN is required"))
	}
	if c.OpenAI.WhisperAPIKey == "" {
		errs = append(errs, errors.New("WHISPER_API_KEY is required"))
	}
	if c.OpenAI.ChatAPIKey == "" {
		errs = append(errs, errors.New("CHATGPT_API_KEY is required"))
	}
	if c.External.Timeout <= 0 {
		errs = append(errs, errors.New("EXTERNAL_TIMEOUT must be positive"))
	}
	if c.OpenAI.MaxRetries < 0 {
		errs = append(errs, errors.New("OPENAI_MAX_RETRIES must not be negative"))
	}

	if c.Pipeline.Mode != ModeCorrect && c.Pipeline.Mode != ModeReply {
		errs = append(errs, fmt.Errorf("unknown pipeline mode %q", c.Pipeline.Mode))
	}
	if c.Pipeline.Timeout <= 0 {
		errs = append(errs, errors.New("PIPELINE_TIMEOUT must be positive"))
	}

	if c.Review.Username == "" {
		errs = append(errs, errors.New("REVIEW_USERNAME is required"))
	}
	if c.Review.Password == "" && c.Review.PasswordHash == "" {
		errs = append(errs, errors.New("one of REVIEW_PASSWORD or REVIEW_PASSWORD_HASH is required"))
	}

	return errors.Join(errs...)
}

// DatabaseDSN returns the connection string for the configured driver. For
// sqlite the database file lives in Database.Dir with foreign keys enabled.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == DriverPostgres {
		return c.Database.DSN
	}
	path := filepath.Join(c.Database.Dir, c.Database.File)
	return "file:" + path + "?_fk=1&_busy_timeout=5000"
}

func (c *Config) ArchiveEnabled() bool {
	return c.Archive.Bucket != ""
}
