package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "line-token")
	t.Setenv("LINE_CHANNEL_SECRET", "line-secret")
	t.Setenv("WHISPER_API_KEY", "whisper-key")
	t.Setenv("CHATGPT_API_KEY", "chat-key")
	t.Setenv("REVIEW_USERNAME", "admin")
	t.Setenv("REVIEW_PASSWORD", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	validEnv(t)
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.HTTP.Port)
	require.Equal(t, 5*time.Minute, cfg.HTTP.WriteTimeout)
	require.Equal(t, DriverSQLite, cfg.Database.Driver)
	require.Equal(t, "./db", cfg.Database.Dir)
	require.Equal(t, "./recordings", cfg.Storage.RecordingsDir)
	require.Equal(t, "/recordings/", cfg.Storage.URLPrefix)
	require.Equal(t, "whisper-1", cfg.OpenAI.WhisperModel)
	require.Equal(t, "gpt-3.5-turbo", cfg.OpenAI.ChatModel)
	require.Equal(t, 60*time.Second, cfg.External.Timeout)
	require.Equal(t, ModeCorrect, cfg.Pipeline.Mode)
	require.Equal(t, 5*time.Minute, cfg.Pipeline.Timeout)
	require.False(t, cfg.ArchiveEnabled())
}

func TestLoad_MissingSecrets(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("LINE_CHANNEL_SECRET", "")
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "")
	t.Setenv("WHISPER_API_KEY", "")
	t.Setenv("CHATGPT_API_KEY", "")
	t.Setenv("REVIEW_USERNAME", "")
	t.Setenv("REVIEW_PASSWORD", "")
	t.Setenv("REVIEW_PASSWORD_HASH", "")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "LINE_CHANNEL_SECRET")
	require.Contains(t, err.Error(), "REVIEW_USERNAME")
}

func TestLoad_FromFile(t *testing.T) {
	validEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
http:
  port: 9090
pipeline:
  mode: reply
database:
  driver: postgres
  dsn: "postgres://u:p@localhost:5432/voicelog?sslmode=disable"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.HTTP.Port)
	require.Equal(t, ModeReply, cfg.Pipeline.Mode)
	require.Equal(t, DriverPostgres, cfg.Database.Driver)
	require.Equal(t, "postgres://u:p@localhost:5432/voicelog?sslmode=disable", cfg.DatabaseDSN())
}

func TestValidate_RejectsUnknownModeAndDriver(t *testing.T) {
	validEnv(t)
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("PIPELINE_MODE", "summarize")
	t.Setenv("DATABASE_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "summarize")
	require.Contains(t, err.Error(), "mysql")
}

func TestLoad_ExternalTimeoutFromEnv(t *testing.T) {
	validEnv(t)
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("EXTERNAL_TIMEOUT", "15s")
	t.Setenv("PIPELINE_TIMEOUT", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 15*time.Second, cfg.External.Timeout)
	require.Equal(t, 2*time.Minute, cfg.Pipeline.Timeout)
}

func TestValidate_PasswordHashIsEnough(t *testing.T) {
	validEnv(t)
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("REVIEW_PASSWORD", "")
	t.Setenv("REVIEW_PASSWORD_HASH", "$2a$10$abcdefghijklmnopqrstuv")

	_, err := Load()
	require.NoError(t, err)
}

func TestDatabaseDSN_SQLite(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Driver: DriverSQLite, Dir: "/var/data/db", File: "app.db"}}
	require.Equal(t, "file:/var/data/db/app.db?_fk=1&_busy_timeout=5000", cfg.DatabaseDSN())
}

func TestPrepare_CreatesDirectories(t *testing.T) {
	tmp := t.TempDir()
	cfg := &Config{
		Database: DatabaseConfig{Driver: DriverSQLite, Dir: filepath.Join(tmp, "db")},
		Storage:  StorageConfig{RecordingsDir: filepath.Join(tmp, "recordings")},
	}

	paths, err := cfg.Prepare()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(tmp, "db"), paths.DatabaseDir)
	require.Equal(t, filepath.Join(tmp, "recordings"), paths.RecordingsDir)

	for _, dir := range []string{paths.DatabaseDir, paths.RecordingsDir} {
		fi, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, fi.IsDir())
	}

	again, err := cfg.Prepare()
	require.NoError(t, err)
	require.Equal(t, paths, again)
}

func TestPrepare_SkipsDatabaseDirForPostgres(t *testing.T) {
	tmp := t.TempDir()
	cfg := &Config{
		Database: DatabaseConfig{Driver: DriverPostgres, Dir: filepath.Join(tmp, "db")},
		Storage:  StorageConfig{RecordingsDir: filepath.Join(tmp, "recordings")},
	}

	paths, err := cfg.Prepare()
	require.NoError(t, err)
	require.Empty(t, paths.DatabaseDir)

	_, err = os.Stat(filepath.Join(tmp, "db"))
	require.True(t, os.IsNotExist(err))
}

func TestPrepare_FailsIfFileExists(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "recordings")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	cfg := &Config{
		Database: DatabaseConfig{Driver: DriverPostgres},
		Storage:  StorageConfig{RecordingsDir: path},
	}

	_, err := cfg.Prepare()
	require.Error(t, err)
}
